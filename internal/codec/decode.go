package codec

import (
	"sort"

	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/pkg/schema"
)

// Node layout constants for the deterministic vertical stack. Position is
// cosmetic; any deterministic placement is acceptable.
const (
	stackX       = 240.0
	stackTop     = 80.0
	stackSpacing = 140.0
)

// Decode rebuilds the editable graph from a persisted definition.
//
// It is defensive: the definition is validated first and all issues are
// returned, but the graph is still built so the operator can repair a
// broken definition in the editor. Steps with an unrecognized type are kept
// as opaque nodes rather than dropped (the CodecMismatch case); edges whose
// endpoint does not exist are skipped.
//
// Returns an error only when the definition cannot be represented at all.
func (c *Codec) Decode(def *schema.WorkflowDefinition, opts ...graph.Option) (*graph.Graph, *schema.ValidationResult, error) {
	if def == nil {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}

	result := c.validator.Validate(def)

	g := graph.New(opts...)

	// Nodes: one per step, stacked vertically by sorted id so the layout is
	// stable across loads.
	ids := make([]string, 0, len(def.Steps))
	for id := range def.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		node := &graph.Node{
			ID:   id,
			Step: def.Steps[id].Clone(),
			Position: graph.Position{
				X: stackX,
				Y: stackTop + float64(i)*stackSpacing,
			},
		}
		if err := g.InsertNode(node); err != nil {
			return nil, result, err
		}
	}

	// Edges: depends_on entries become plain edges; conditional branch
	// targets become branch edges.
	for _, id := range ids {
		step := def.Steps[id]
		for _, dep := range step.DependsOn {
			if g.Node(dep) == nil {
				continue // dangling reference, already reported
			}
			g.InsertEdge(dep, id, "")
		}
		cond, ok := step.Payload.(*schema.ConditionalPayload)
		if !ok {
			continue
		}
		if cond.IfTrue != "" && g.Node(cond.IfTrue) != nil {
			g.InsertEdge(id, cond.IfTrue, graph.BranchTrue)
		}
		if cond.IfFalse != "" && g.Node(cond.IfFalse) != nil {
			g.InsertEdge(id, cond.IfFalse, graph.BranchFalse)
		}
	}

	return g, result, nil
}
