package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loomworks/loom/pkg/schema"
)

// validateSemantic performs reference and payload analysis on a definition:
// output-key uniqueness, depends_on / if_true / if_false resolvability,
// per-kind required payload fields, conditional completeness, and the
// optional condition / template / schedule lints.
func validateSemantic(def *schema.WorkflowDefinition, conditions ConditionChecker, schedule ScheduleChecker) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	ids := sortedStepIDs(def)

	checkOutputKeys(def, ids, result)

	for _, id := range ids {
		step := def.Steps[id]
		path := fmt.Sprintf("steps[%s]", id)
		checkReferences(def, id, step, path, result)
		checkPayload(id, step, path, conditions, result)
	}

	checkScheduleHint(def, schedule, result)

	return result
}

func sortedStepIDs(def *schema.WorkflowDefinition) []string {
	ids := make([]string, 0, len(def.Steps))
	for id := range def.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// checkOutputKeys reports each non-empty output key claimed by more than one
// step, naming every claimant.
func checkOutputKeys(def *schema.WorkflowDefinition, ids []string, result *schema.ValidationResult) {
	claims := make(map[string][]string)
	for _, id := range ids {
		if key := def.Steps[id].OutputKey; key != "" {
			claims[key] = append(claims[key], id)
		}
	}

	keys := make([]string, 0, len(claims))
	for key := range claims {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		owners := claims[key]
		if len(owners) < 2 {
			continue
		}
		result.AddError("steps", schema.ErrCodeDuplicateOutputKey,
			fmt.Sprintf("output key %q is claimed by steps %s", key, strings.Join(owners, ", ")))
	}
}

// checkReferences verifies every step ID referenced by a step resolves.
func checkReferences(def *schema.WorkflowDefinition, id string, step *schema.StepDefinition, path string, result *schema.ValidationResult) {
	for j, dep := range step.DependsOn {
		if _, exists := def.Steps[dep]; !exists {
			result.AddStepError(id, fmt.Sprintf("%s.depends_on[%d]", path, j),
				schema.ErrCodeDanglingReference,
				fmt.Sprintf("step %q depends on non-existent step %q", id, dep))
		}
	}

	cond, ok := step.Payload.(*schema.ConditionalPayload)
	if !ok {
		return
	}
	if cond.IfTrue != "" {
		if _, exists := def.Steps[cond.IfTrue]; !exists {
			result.AddStepError(id, path+".if_true", schema.ErrCodeDanglingReference,
				fmt.Sprintf("step %q if_true references non-existent step %q", id, cond.IfTrue))
		}
	}
	if cond.IfFalse != "" {
		if _, exists := def.Steps[cond.IfFalse]; !exists {
			result.AddStepError(id, path+".if_false", schema.ErrCodeDanglingReference,
				fmt.Sprintf("step %q if_false references non-existent step %q", id, cond.IfFalse))
		}
	}
}

// checkPayload verifies per-kind required fields. The switch is exhaustive
// over the payload union; an unrecognized type is a warning, not an error,
// because such steps are preserved verbatim for forward compatibility.
func checkPayload(id string, step *schema.StepDefinition, path string, conditions ConditionChecker, result *schema.ValidationResult) {
	switch p := step.Payload.(type) {
	case *schema.EnvironmentActionPayload:
		if p.Environment == "" {
			result.AddStepError(id, path+".environment", schema.ErrCodeMalformedPayload,
				fmt.Sprintf("step %q is missing environment", id))
		}
		if len(p.Action) == 0 {
			result.AddStepError(id, path+".action", schema.ErrCodeMalformedPayload,
				fmt.Sprintf("step %q is missing action", id))
		}

	case *schema.AgentTaskPayload:
		if p.Agent == "" {
			result.AddStepError(id, path+".agent", schema.ErrCodeMalformedPayload,
				fmt.Sprintf("step %q is missing agent", id))
		}

	case *schema.ConditionalPayload:
		if p.Condition == "" {
			result.AddStepError(id, path+".condition", schema.ErrCodeMalformedPayload,
				fmt.Sprintf("step %q is missing condition", id))
		} else if conditions != nil {
			if err := conditions.CheckCondition(p.Condition); err != nil {
				result.AddStepError(id, path+".condition", schema.ErrCodeMalformedPayload,
					fmt.Sprintf("step %q condition does not compile: %v", id, err))
			}
		}
		// An open branch terminates that path; legal but worth surfacing.
		if (p.IfTrue == "") != (p.IfFalse == "") {
			result.AddStepWarning(id, path, schema.ErrCodeValidation,
				fmt.Sprintf("conditional %q has only one branch target set", id))
		}

	case *schema.ParallelPayload:
		// No required payload fields.

	case *schema.McpAgentPayload:
		if p.McpServer == "" {
			result.AddStepError(id, path+".mcp_server", schema.ErrCodeMalformedPayload,
				fmt.Sprintf("step %q is missing mcp_server", id))
		}
		if p.Tool == "" {
			result.AddStepError(id, path+".tool", schema.ErrCodeMalformedPayload,
				fmt.Sprintf("step %q is missing tool", id))
		}

	case *schema.BrowserActionPayload:
		if p.BrowserAction == "" {
			result.AddStepError(id, path+".browser_action", schema.ErrCodeMalformedPayload,
				fmt.Sprintf("step %q is missing browser_action", id))
		}

	case *schema.UnknownPayload:
		result.AddStepWarning(id, path+".type", schema.ErrCodeCodecMismatch,
			fmt.Sprintf("step %q has unrecognized type %q; preserved verbatim", id, p.Type))

	case nil:
		result.AddStepError(id, path, schema.ErrCodeMalformedPayload,
			fmt.Sprintf("step %q has no payload", id))
	}

	if step.RetryCount != nil && *step.RetryCount > 10 {
		result.AddStepWarning(id, path+".retry_count", schema.ErrCodeValidation,
			fmt.Sprintf("high retry count (%d) may cause excessive delays", *step.RetryCount))
	}
}

// checkScheduleHint lints the optional metadata.schedule cron expression.
// Scheduling itself belongs to the engine; only the syntax is checked here.
func checkScheduleHint(def *schema.WorkflowDefinition, schedule ScheduleChecker, result *schema.ValidationResult) {
	if schedule == nil || def.Metadata == nil {
		return
	}
	spec, ok := def.Metadata["schedule"].(string)
	if !ok || spec == "" {
		return
	}
	if err := schedule.CheckSchedule(spec); err != nil {
		result.AddError("metadata.schedule", schema.ErrCodeValidation,
			fmt.Sprintf("invalid schedule %q: %v", spec, err))
	}
}
