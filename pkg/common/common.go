package common

// TypeTag is the semantic type of a field as derived from its raw descriptor.
type TypeTag string

const (
	TypeText       TypeTag = "text"
	TypeLookup     TypeTag = "lookup"
	TypeDateTime   TypeTag = "dateTime"
	TypeNumber     TypeTag = "number"
	TypeChoice     TypeTag = "choice"
	TypeBoolean    TypeTag = "boolean"
	TypePerson     TypeTag = "person"
	TypeCalculated TypeTag = "calculated"
	TypeUnknown    TypeTag = "unknown"
)

// TypeClassification pairs a field's type tag with the type-specific detail
// object returned by the metadata source. Only lookup details are inspected
// further (for the target collection id); everything else is carried opaquely.
type TypeClassification struct {
	Tag    TypeTag        `json:"type"`
	Detail map[string]any `json:"details"`
}

// Collection is a named grouping of typed records in the remote store
// (a SharePoint list). A Collection is built once per graph run and never
// mutated afterwards.
type Collection struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Field is a typed attribute of a collection (a SharePoint column).
type Field struct {
	ID       string             `json:"id,omitempty"`
	Name     string             `json:"name"`
	Required bool               `json:"required"`
	Type     TypeClassification `json:"type_details"`
}

// Relationship is a candidate edge produced by a lookup field. TargetID is
// the raw identity taken from the lookup detail and has not been resolved yet.
type Relationship struct {
	Source   string `json:"source"`
	TargetID string `json:"target_id"`
	Field    string `json:"field"`
}

// GraphModel is the renderable node/edge structure handed to a GraphRenderer.
//
// Nodes and Edges are ordered: collections in source order, edges in
// collection-then-field order. Renderers must not reorder them.
type GraphModel struct {
	Direction string `json:"direction"`
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
}

// Node is one collection rendered as an attribute table. Label holds the
// HTML-like table markup, Fields the same rows in structured form.
type Node struct {
	Name   string      `json:"name"`
	Label  string      `json:"label"`
	Shape  string      `json:"shape"`
	Fields []NodeField `json:"fields"`
}

type NodeField struct {
	Name string  `json:"name"`
	Type TypeTag `json:"type"`
}

// Edge is a resolved relationship, directed source -> target and labeled
// with the lookup field name.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// DiagnosticKind classifies a recovered failure.
type DiagnosticKind string

const (
	DiagSourceUnavailable        DiagnosticKind = "source_unavailable"
	DiagPartialFieldFetchFailure DiagnosticKind = "partial_field_fetch_failure"
	DiagMalformedDescriptor      DiagnosticKind = "malformed_descriptor"
	DiagDanglingRelationship     DiagnosticKind = "dangling_relationship"
	DiagDuplicateCollectionName  DiagnosticKind = "duplicate_collection_name"
)

// Diagnostic records a failure that was recovered locally so the run could
// continue with a partial, well-defined result.
type Diagnostic struct {
	Kind       DiagnosticKind `json:"kind"`
	Collection string         `json:"collection,omitempty"`
	Field      string         `json:"field,omitempty"`
	Message    string         `json:"message"`
}
