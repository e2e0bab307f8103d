package graph

import "github.com/OFFIS-RIT/schemagraph/pkg/common"

// DefaultTargetKey is the lookup detail key holding the target list id.
const DefaultTargetKey = "listId"

// Resolver extracts candidate relationships from lookup fields. It only
// follows one hop; chained lookups are not expanded.
type Resolver struct {
	TargetKey string
}

// NewResolver creates a Resolver reading the target id from DefaultTargetKey.
func NewResolver() Resolver {
	return Resolver{TargetKey: DefaultTargetKey}
}

// Resolve returns one relationship per lookup field of c that names a target
// collection, in field order. Targets are not checked against known collections.
func (r Resolver) Resolve(c common.Collection) []common.Relationship {
	key := r.TargetKey
	if key == "" {
		key = DefaultTargetKey
	}

	var rels []common.Relationship
	for _, field := range c.Fields {
		if field.Type.Tag != common.TypeLookup {
			continue
		}
		target, ok := field.Type.Detail[key].(string)
		if !ok || target == "" {
			continue
		}
		rels = append(rels, common.Relationship{
			Source:   c.Name,
			TargetID: target,
			Field:    field.Name,
		})
	}
	return rels
}

// ResolveAll resolves every collection in order.
func (r Resolver) ResolveAll(collections []common.Collection) []common.Relationship {
	var rels []common.Relationship
	for _, c := range collections {
		rels = append(rels, r.Resolve(c)...)
	}
	return rels
}
