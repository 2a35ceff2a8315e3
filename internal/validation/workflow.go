package validation

import "github.com/loomworks/loom/pkg/schema"

// WorkflowValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (output keys, references, payloads, lints)
// 3. DAG (cycles, reachability)
//
// A failing stage short-circuits the later ones, but all instances within a
// stage are collected.
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	conditions ConditionChecker
	templates  TemplateChecker
	schedule   ScheduleChecker
}

// ValidatorOption configures optional lint hooks on a WorkflowValidator.
type ValidatorOption func(*WorkflowValidator)

// WithConditionChecker enables compile-checking of conditional expressions.
func WithConditionChecker(c ConditionChecker) ValidatorOption {
	return func(v *WorkflowValidator) { v.conditions = c }
}

// WithTemplateChecker enables linting of {{outputKey.path}} references.
func WithTemplateChecker(t TemplateChecker) ValidatorOption {
	return func(v *WorkflowValidator) { v.templates = t }
}

// WithScheduleChecker enables linting of the metadata.schedule cron hint.
func WithScheduleChecker(s ScheduleChecker) ValidatorOption {
	return func(v *WorkflowValidator) { v.schedule = s }
}

// NewWorkflowValidator creates a WorkflowValidator. All lint hooks are
// optional; nil hooks skip their checks.
func NewWorkflowValidator(opts ...ValidatorOption) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	wv := &WorkflowValidator{jsonSchema: jsv}
	for _, opt := range opts {
		opt(wv)
	}
	return wv, nil
}

// Validate runs the full pipeline and returns an aggregated result.
func (wv *WorkflowValidator) Validate(def *schema.WorkflowDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow definition is nil")
		return r
	}

	// Stage 1: Structural (JSON Schema).
	result := validateStructural(wv.jsonSchema, def)
	if !result.Valid() {
		return result
	}

	// Stage 2: Semantic.
	result.Merge(validateSemantic(def, wv.conditions, wv.schedule))
	if wv.templates != nil {
		result.Merge(wv.templates.CheckTemplates(def))
	}

	// Stage 3: DAG (skip if semantic errors — the graph may be unresolvable).
	if result.Valid() {
		result.Merge(validateDAG(def))
	}

	return result
}

// ValidateDefinition satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	return wv.Validate(def).ToError()
}

// validateStructural wraps JSONSchemaValidator.ValidateDefinition, converting
// its error output into a ValidationResult.
func validateStructural(v *JSONSchemaValidator, def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDefinition(def)
	if err == nil {
		return result
	}

	lerr, ok := err.(*schema.LoomError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if lerr.Details != nil {
		if violations, ok := lerr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, lerr.Message)
	return result
}
