package graph

import (
	"fmt"

	"github.com/OFFIS-RIT/schemagraph/pkg/common"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
)

const (
	// DirectionLR lays the graph out left to right.
	DirectionLR = "LR"
	// ShapeTable draws the node as its HTML label only, without an outline.
	ShapeTable = "plaintext"
)

// Assemble builds the GraphModel for collections and their candidate
// relationships.
//
// Relationships whose target id is not one of collections are dropped and
// reported as DanglingRelationship diagnostics; this is expected whenever the
// target list was filtered out. Parallel edges between the same pair of
// collections are all kept.
func Assemble(collections []common.Collection, rels []common.Relationship) (common.GraphModel, []common.Diagnostic) {
	model := common.GraphModel{
		Direction: DirectionLR,
		Nodes:     make([]common.Node, 0, len(collections)),
		Edges:     make([]common.Edge, 0, len(rels)),
	}

	names := make(map[string]string, len(collections))
	for _, c := range collections {
		names[c.ID] = c.Name

		fields := make([]common.NodeField, 0, len(c.Fields))
		for _, f := range c.Fields {
			fields = append(fields, common.NodeField{Name: f.Name, Type: f.Type.Tag})
		}
		logger.Info("[Graph] Generating table", "collection", c.Name)
		model.Nodes = append(model.Nodes, common.Node{
			Name:   c.Name,
			Label:  tableLabel(c.Name, fields),
			Shape:  ShapeTable,
			Fields: fields,
		})
	}

	var diags []common.Diagnostic
	for _, rel := range rels {
		target, ok := names[rel.TargetID]
		if !ok {
			logger.Debug("[Graph] Dropping relationship to unknown collection", "source", rel.Source, "field", rel.Field, "target_id", rel.TargetID)
			diags = append(diags, common.Diagnostic{
				Kind:       common.DiagDanglingRelationship,
				Collection: rel.Source,
				Field:      rel.Field,
				Message:    fmt.Sprintf("target collection %s is not part of the graph", rel.TargetID),
			})
			continue
		}
		model.Edges = append(model.Edges, common.Edge{
			Source: rel.Source,
			Target: target,
			Label:  rel.Field,
		})
	}

	return model, diags
}
