package jsonapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardHandle(t *testing.T) {
	slot := &ErrorSlot{}
	signedOut := 0
	g := &Guard{Slot: slot, OnUnauthenticated: func(context.Context) { signedOut++ }}
	ctx := context.Background()

	assert.NoError(t, g.Handle(ctx, nil))

	unauthorized := fmt.Errorf("list: %w", &APIError{Status: http.StatusUnauthorized})
	assert.NoError(t, g.Handle(ctx, unauthorized))
	assert.Equal(t, 1, signedOut)
	assert.Nil(t, slot.Get())

	assert.NoError(t, g.Handle(ctx, fmt.Errorf("list: %w", context.Canceled)))
	assert.Nil(t, slot.Get())

	timeout := fmt.Errorf("list: %w", context.DeadlineExceeded)
	assert.ErrorIs(t, g.Handle(ctx, timeout), context.DeadlineExceeded)
	assert.Equal(t, timeout, slot.Get())

	server := &APIError{Status: http.StatusInternalServerError}
	assert.Equal(t, server, g.Handle(ctx, server))
	assert.Equal(t, server, slot.Get())

	slot.Clear()
	assert.Nil(t, slot.Get())
}

func TestCall(t *testing.T) {
	g := &Guard{Slot: &ErrorSlot{}}
	ctx := context.Background()

	v, err := Call(ctx, g, func(context.Context) (int, error) { return 42, nil })
	assert.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = Call(ctx, g, func(context.Context) (int, error) { return 7, context.Canceled })
	assert.NoError(t, err)
	assert.Zero(t, v)

	boom := errors.New("boom")
	_, err = Call(ctx, g, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}
