package jsonapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCollection() ErrorCollection {
	ops := []Operation{
		NewUpdateOperation(Resource{Type: "transport-orders", ID: "1"}),
		NewUpdateOperation(Resource{Type: "goods-rows", ID: "5"}),
	}
	return FromResponseErrors([]ResponseError{
		{Detail: "name taken", Source: &ErrorSource{Pointer: "/atomic:operations/0/data/attributes/name"}},
		{Detail: "customer missing", Source: &ErrorSource{Pointer: "/atomic:operations/0/customer_id"}},
		{Detail: "weight invalid", Source: &ErrorSource{Pointer: "/atomic:operations/1/data/attributes/weight"}},
		{Detail: "try later"},
	}, ops)
}

func TestErrorCollectionFilters(t *testing.T) {
	c := sampleCollection()
	order := Identifier{Type: "transport-orders", ID: "1"}

	assert.Equal(t, []string{"name taken", "customer missing"}, c.ForResource(order).Messages())
	assert.Equal(t, []string{"weight invalid", "try later"}, c.ExceptForResource(&order).Messages())
	assert.Len(t, c.ExceptForResource(nil), 4)
	assert.Equal(t, []string{"weight invalid"}, c.ForResourceTypes("goods-rows").Messages())
	assert.Equal(t, []string{"try later"}, c.WithoutResource().Messages())
	assert.Equal(t, []string{"customer missing"}, c.ForField("customerId").Messages())
	assert.Equal(t, []string{"name taken", "weight invalid"}, c.ForFields("name", "weight").Messages())
	assert.Equal(t, []string{"try later"}, c.WithoutField().Messages())
	assert.Equal(t, []string{"customer missing", "try later"}, c.ExceptForFields("name", "weight").Messages())
}

func TestErrorCollectionRemapAndAppend(t *testing.T) {
	c := sampleCollection()

	remapped := c.RemapFields(map[string]string{"customerId": "customer"})
	assert.Equal(t, []string{"customer missing"}, remapped.ForField("customer").Messages())
	assert.Equal(t, "customerId", c[1].FieldName, "RemapFields must not modify the receiver")

	joined := c.WithoutField().Append(c.ForField("name"))
	assert.Equal(t, []string{"try later", "name taken"}, joined.Messages())
}

func TestExtractDisplayableErrors(t *testing.T) {
	raw := []ResponseError{{Detail: "bad", Source: &ErrorSource{Pointer: "/data/attributes/name"}}}

	for _, status := range []int{http.StatusConflict, http.StatusUnprocessableEntity, http.StatusTooManyRequests} {
		err := fmt.Errorf("save: %w", &APIError{Status: status, Errors: raw})
		got, ok := ExtractDisplayableErrors(err, nil)
		require.True(t, ok, "status %d", status)
		assert.Equal(t, "name", got[0].FieldName)
	}

	_, ok := ExtractDisplayableErrors(&APIError{Status: http.StatusInternalServerError, Errors: raw}, nil)
	assert.False(t, ok)

	_, ok = ExtractDisplayableErrors(&APIError{Status: http.StatusUnprocessableEntity}, nil)
	assert.False(t, ok, "a response without errors has nothing to display")

	_, ok = ExtractDisplayableErrors(errors.New("network down"), nil)
	assert.False(t, ok)
}

func TestWithDisplayableErrors(t *testing.T) {
	ops := []Operation{NewUpdateOperation(Resource{Type: "transport-orders", ID: "7"})}
	apiErr := &APIError{Status: http.StatusUnprocessableEntity, Errors: []ResponseError{
		{Detail: "outside service area", Source: &ErrorSource{Pointer: "/atomic:operations/0/data/attributes/pickup_lat"}},
	}}

	err := WithDisplayableErrors(fmt.Errorf("move stops: %w", apiErr), ops)

	var de *DisplayableError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusUnprocessableEntity, de.Status)
	assert.Equal(t, "7", de.Errors[0].ResourceID)
	assert.Equal(t, "pickup_lat", de.Errors[0].FieldName)
	assert.ErrorIs(t, err, apiErr)

	plain := errors.New("network down")
	assert.Same(t, plain, WithDisplayableErrors(plain, ops))
}
