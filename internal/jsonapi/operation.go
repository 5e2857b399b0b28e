package jsonapi

type OperationType string

const (
	OperationAdd    OperationType = "add"
	OperationUpdate OperationType = "update"
	OperationRemove OperationType = "remove"
)

type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Relationship struct {
	Data any `json:"data"`
}

type Resource struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id,omitempty"`
	Attributes    map[string]any          `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Operation is one entry of an atomic operations request. Remove operations
// carry an identifier, the others a resource.
type Operation struct {
	Type       OperationType
	Resource   *Resource
	Identifier *Identifier
}

func NewAddOperation(r Resource) Operation {
	return Operation{Type: OperationAdd, Resource: &r}
}

func NewUpdateOperation(r Resource) Operation {
	return Operation{Type: OperationUpdate, Resource: &r}
}

func NewRemoveOperation(id Identifier) Operation {
	return Operation{Type: OperationRemove, Identifier: &id}
}

func (o Operation) ResourceType() string {
	if o.Resource != nil {
		return o.Resource.Type
	}
	if o.Identifier != nil {
		return o.Identifier.Type
	}
	return ""
}

func (o Operation) ResourceID() string {
	if o.Resource != nil {
		return o.Resource.ID
	}
	if o.Identifier != nil {
		return o.Identifier.ID
	}
	return ""
}

// RequestBody renders the operation as it is sent to the API.
func (o Operation) RequestBody() map[string]any {
	if o.Type == OperationRemove {
		return map[string]any{"op": o.Type, "ref": o.Identifier}
	}
	return map[string]any{"op": o.Type, "data": o.Resource}
}
