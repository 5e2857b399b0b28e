package jsonapi

import (
	"errors"
	"net/http"
	"slices"
)

// ErrorCollection filters return new collections and never modify the receiver.
type ErrorCollection []Error

func FromResponseErrors(raw []ResponseError, operations []Operation) ErrorCollection {
	out := make(ErrorCollection, 0, len(raw))
	for _, r := range raw {
		out = append(out, NewError(r, operations))
	}
	return out
}

func (c ErrorCollection) filter(keep func(Error) bool) ErrorCollection {
	out := make(ErrorCollection, 0, len(c))
	for _, e := range c {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (c ErrorCollection) ForResourceTypes(types ...string) ErrorCollection {
	return c.filter(func(e Error) bool {
		return e.ResourceType != "" && slices.Contains(types, e.ResourceType)
	})
}

func (c ErrorCollection) ForResource(id Identifier) ErrorCollection {
	return c.filter(func(e Error) bool { return e.IsForResource(id) })
}

// ExceptForResource drops the errors of id. A nil id keeps everything.
func (c ErrorCollection) ExceptForResource(id *Identifier) ErrorCollection {
	if id == nil {
		return c
	}
	return c.filter(func(e Error) bool { return !e.IsForResource(*id) })
}

func (c ErrorCollection) WithoutResource() ErrorCollection {
	return c.filter(func(e Error) bool { return e.ResourceType == "" && e.ResourceID == "" })
}

func (c ErrorCollection) ForFields(fields ...string) ErrorCollection {
	return c.filter(func(e Error) bool {
		return e.FieldName != "" && slices.Contains(fields, e.FieldName)
	})
}

func (c ErrorCollection) ForField(field string) ErrorCollection {
	return c.ForFields(field)
}

func (c ErrorCollection) WithoutField() ErrorCollection {
	return c.filter(func(e Error) bool { return e.FieldName == "" })
}

func (c ErrorCollection) ExceptForFields(fields ...string) ErrorCollection {
	return c.filter(func(e Error) bool { return !slices.Contains(fields, e.FieldName) })
}

// RemapFields renames field names found in fieldMap.
func (c ErrorCollection) RemapFields(fieldMap map[string]string) ErrorCollection {
	out := make(ErrorCollection, len(c))
	for i, e := range c {
		if to, ok := fieldMap[e.FieldName]; ok && e.FieldName != "" {
			e.FieldName = to
		}
		out[i] = e
	}
	return out
}

func (c ErrorCollection) Append(other ErrorCollection) ErrorCollection {
	out := make(ErrorCollection, 0, len(c)+len(other))
	out = append(out, c...)
	return append(out, other...)
}

// Messages lists the messages of the collection in order.
func (c ErrorCollection) Messages() []string {
	out := make([]string, len(c))
	for i, e := range c {
		out[i] = e.Message
	}
	return out
}

var displayableStatuses = []int{
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusTooManyRequests,
}

// ExtractDisplayableErrors returns the validation errors carried by err, if
// it is an API response that has any to show.
func ExtractDisplayableErrors(err error, operations []Operation) (ErrorCollection, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	if !slices.Contains(displayableStatuses, apiErr.Status) || apiErr.Errors == nil {
		return nil, false
	}
	return FromResponseErrors(apiErr.Errors, operations), true
}

// DisplayableError is a rejected request whose validation errors can be shown
// next to the fields they concern.
type DisplayableError struct {
	Status int
	Errors ErrorCollection
	Err    error
}

func (e *DisplayableError) Error() string { return e.Err.Error() }

func (e *DisplayableError) Unwrap() error { return e.Err }

// WithDisplayableErrors wraps err in a *DisplayableError when it carries
// validation errors for operations. Other errors are returned unchanged.
func WithDisplayableErrors(err error, operations []Operation) error {
	errs, ok := ExtractDisplayableErrors(err, operations)
	if !ok {
		return err
	}
	var apiErr *APIError
	errors.As(err, &apiErr)
	return &DisplayableError{Status: apiErr.Status, Errors: errs, Err: err}
}
