package jsonapi

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ResponseError is an entry of the "errors" member of an API response.
type ResponseError struct {
	Code   string       `json:"code,omitempty"`
	Title  string       `json:"title,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

type ErrorSource struct {
	Pointer string `json:"pointer,omitempty"`
}

// Error is a response error resolved to the resource and field it concerns.
type Error struct {
	// ID is generated locally so errors can be told apart in lists.
	ID     string
	Code   string
	Title  string
	Detail string
	Source *ErrorSource

	ResourceType string
	ResourceID   string
	FieldName    string

	Message string
}

// Accepted pointer shapes:
//
//	/data/attributes/name
//	/data/relationships/customer/data
//	/atomic:operations/0/data/attributes/name
//	/atomic:operations/0/customer_id (malformed, sent by the API for some relationships)
var pointerPattern = regexp.MustCompile(`^((/atomic:operations/)(?P<operationIndex>\d+))?/(?P<prefix>data/(attributes|relationships)/)?(?P<fieldName>[^/]+)(?P<suffix>/.+)?$`)

// NewError resolves raw against the operations of the request it answers.
func NewError(raw ResponseError, operations []Operation) Error {
	e := Error{
		ID:     uuid.NewString(),
		Code:   raw.Code,
		Title:  raw.Title,
		Detail: raw.Detail,
	}
	e.Message = e.message()

	if raw.Source != nil {
		e.Source = &ErrorSource{Pointer: raw.Source.Pointer}
		e.setSourceParts(operations)
	}
	return e
}

func (e Error) Error() string { return e.Message }

func (e Error) message() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Title != "":
		return e.Title
	case e.Code != "":
		return e.Code
	}
	return "Unknown error"
}

func (e *Error) setSourceParts(operations []Operation) {
	if e.Source.Pointer == "" {
		return
	}

	m := pointerPattern.FindStringSubmatch(e.Source.Pointer)
	if m == nil {
		return
	}
	group := func(name string) string { return m[pointerPattern.SubexpIndex(name)] }

	if idx := group("operationIndex"); idx != "" {
		i, err := strconv.Atoi(idx)
		if err == nil && i < len(operations) {
			e.ResourceType = operations[i].ResourceType()
			e.ResourceID = operations[i].ResourceID()
		}
	}

	field := group("fieldName")
	if group("prefix") == "" && strings.HasSuffix(field, "_id") {
		field = camelize(field)
	}
	e.FieldName = field
}

func (e Error) IsForResource(id Identifier) bool {
	return e.ResourceType == id.Type && e.ResourceID == id.ID
}

// camelize turns snake_case or kebab-case into camelCase.
func camelize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	upper := false
	for _, r := range s {
		if r == '_' || r == '-' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
