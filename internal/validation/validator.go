// Package validation enforces the consistency invariants of a workflow
// definition before it may be persisted or after it is loaded: unique ids,
// unique output keys, resolvable references, acyclicity, and well-formed
// kind payloads.
package validation

import "github.com/loomworks/loom/pkg/schema"

// Validator validates workflow definitions.
type Validator interface {
	// Validate runs the full pipeline and returns all issues.
	Validate(def *schema.WorkflowDefinition) *schema.ValidationResult

	// ValidateDefinition returns an error carrying the full issue list if
	// the definition is invalid, nil otherwise.
	ValidateDefinition(def *schema.WorkflowDefinition) error
}

// ConditionChecker compile-checks a conditional step's expression.
// Implementations must not evaluate the expression.
type ConditionChecker interface {
	CheckCondition(expression string) error
}

// TemplateChecker lints {{outputKey.path}} references in step payloads
// against the definition's declared output keys.
type TemplateChecker interface {
	CheckTemplates(def *schema.WorkflowDefinition) *schema.ValidationResult
}

// ScheduleChecker parses an authoring-time cron schedule hint.
type ScheduleChecker interface {
	CheckSchedule(spec string) error
}
