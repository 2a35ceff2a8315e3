package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loomworks/loom/pkg/schema"
)

// validateDAG performs graph analysis over the full dependency relation
// (depends_on plus conditional branch targets): cycle detection via Kahn's
// algorithm with the offending id sequence extracted by DFS, and dead-step
// reachability (BFS from roots) as warnings.
func validateDAG(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	stepIDs := make(map[string]bool, len(def.Steps))
	for id := range def.Steps {
		stepIDs[id] = true
	}

	// deps[id] = ids that must run before id; reverse[id] = ids gated on id.
	deps := make(map[string][]string, len(def.Steps))
	reverse := make(map[string][]string, len(def.Steps))

	addDep := func(before, after string) {
		if !stepIDs[before] || !stepIDs[after] {
			return // dangling refs already reported by semantic
		}
		for _, d := range deps[after] {
			if d == before {
				return
			}
		}
		deps[after] = append(deps[after], before)
		reverse[before] = append(reverse[before], after)
	}

	for _, id := range sortedStepIDs(def) {
		step := def.Steps[id]
		for _, dep := range step.DependsOn {
			addDep(dep, id)
		}
		// A branch target runs after its conditional.
		if cond, ok := step.Payload.(*schema.ConditionalPayload); ok {
			if cond.IfTrue != "" {
				addDep(id, cond.IfTrue)
			}
			if cond.IfFalse != "" {
				addDep(id, cond.IfFalse)
			}
		}
	}

	// Kahn's algorithm for cycle detection.
	inDegree := make(map[string]int, len(stepIDs))
	for id := range stepIDs {
		inDegree[id] = len(deps[id])
	}

	queue := make([]string, 0, len(stepIDs))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range reverse[node] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if visited != len(stepIDs) {
		cycle := extractCycle(deps, inDegree)
		result.AddError("steps", schema.ErrCodeCycleDetected,
			fmt.Sprintf("workflow contains a dependency cycle: %s", strings.Join(cycle, " -> ")))
		return result // cycle makes reachability analysis meaningless
	}

	// Reachability: BFS from root steps through reverse edges.
	var roots []string
	for id := range stepIDs {
		if len(deps[id]) == 0 {
			roots = append(roots, id)
		}
	}

	reachable := make(map[string]bool, len(stepIDs))
	bfsQueue := append([]string(nil), roots...)
	for _, r := range roots {
		reachable[r] = true
	}
	for len(bfsQueue) > 0 {
		node := bfsQueue[0]
		bfsQueue = bfsQueue[1:]
		for _, dep := range reverse[node] {
			if !reachable[dep] {
				reachable[dep] = true
				bfsQueue = append(bfsQueue, dep)
			}
		}
	}

	for _, id := range sortedStepIDs(def) {
		if !reachable[id] {
			result.AddStepWarning(id, fmt.Sprintf("steps[%s]", id),
				schema.ErrCodeValidation,
				fmt.Sprintf("step %q is unreachable from any root step", id))
		}
	}

	return result
}

// extractCycle runs DFS over the steps Kahn could not remove and returns one
// concrete cycle as an id sequence ending where it starts.
func extractCycle(deps map[string][]string, inDegree map[string]int) []string {
	// Restrict to nodes still holding a positive in-degree; every cycle lies
	// entirely inside this set.
	remaining := make(map[string]bool)
	for id, deg := range inDegree {
		if deg > 0 {
			remaining[id] = true
		}
	}

	starts := make([]string, 0, len(remaining))
	for id := range remaining {
		starts = append(starts, id)
	}
	sort.Strings(starts)

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(remaining))
	var stack []string

	var dfs func(id string) []string
	dfs = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		next := append([]string(nil), deps[id]...)
		sort.Strings(next)
		for _, dep := range next {
			if !remaining[dep] {
				continue
			}
			switch color[dep] {
			case white:
				if cycle := dfs(dep); cycle != nil {
					return cycle
				}
			case gray:
				// Found it: slice the stack from the first occurrence of dep.
				for i, s := range stack {
					if s == dep {
						return append(append([]string(nil), stack[i:]...), dep)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range starts {
		if color[id] == white {
			stack = stack[:0]
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
