package codec

import (
	"fmt"

	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/pkg/schema"
)

// Encode converts a graph into a persisted definition.
//
// Edge existence is the only source of truth for dependencies: each step's
// depends_on is recomputed from the plain edges targeting it, and a
// conditional's if_true/if_false are set strictly from its branch edges.
// A deleted branch edge therefore clears the field, but only when the stale
// target is still a node in the graph: a payload naming a step the graph
// does not contain is a dangling reference and is reported, never silently
// dropped. Positions are dropped.
//
// The candidate definition is validated before being returned; when invalid
// the full violation list travels in both the result and the error, and no
// partial definition is emitted.
func (c *Codec) Encode(g *graph.Graph, info WorkflowInfo) (*schema.WorkflowDefinition, *schema.ValidationResult, error) {
	if g == nil {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "graph is nil")
	}

	def := &schema.WorkflowDefinition{
		ID:          info.ID,
		Name:        info.Name,
		Description: info.Description,
		Metadata:    info.Metadata,
		Steps:       make(map[string]*schema.StepDefinition, g.Len()),
		CreatedAt:   info.CreatedAt,
		UpdatedAt:   info.UpdatedAt,
	}

	dangling := &schema.ValidationResult{}
	for _, node := range g.Nodes() {
		step := node.Step.Clone()
		step.DependsOn = nil
		if sources := g.PlainSources(node.ID); len(sources) > 0 {
			step.DependsOn = sources
		}

		if cond, ok := step.Payload.(*schema.ConditionalPayload); ok {
			checkBranchTarget(g, node.ID, "if_true", cond.IfTrue, dangling)
			checkBranchTarget(g, node.ID, "if_false", cond.IfFalse, dangling)
			cond.IfTrue = ""
			cond.IfFalse = ""
			for _, e := range g.EdgesFrom(node.ID) {
				switch e.Branch {
				case graph.BranchTrue:
					cond.IfTrue = e.Target
				case graph.BranchFalse:
					cond.IfFalse = e.Target
				}
			}
		}

		def.Steps[node.ID] = step
	}
	if !dangling.Valid() {
		return nil, dangling, dangling.ToError()
	}

	result := c.validator.Validate(def)
	if !result.Valid() {
		return nil, result, result.ToError()
	}
	return def, result, nil
}

// checkBranchTarget reports a conditional payload branch target that names a
// step the graph does not contain. Targets that exist but have lost their
// edge are the legitimate edge-deletion case and pass through for clearing.
func checkBranchTarget(g *graph.Graph, stepID, field, target string, result *schema.ValidationResult) {
	if target == "" || g.Node(target) != nil {
		return
	}
	result.AddStepError(stepID, fmt.Sprintf("steps[%s].%s", stepID, field),
		schema.ErrCodeDanglingReference,
		fmt.Sprintf("step %q %s references non-existent step %q", stepID, field, target))
}
