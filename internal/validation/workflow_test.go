package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/schema"
)

// --- Test fixtures ---

func envStep(name string, deps ...string) *schema.StepDefinition {
	return &schema.StepDefinition{
		Name:      name,
		Type:      schema.KindEnvironmentAction,
		DependsOn: deps,
		Payload: &schema.EnvironmentActionPayload{
			Environment: "prod",
			Action:      map[string]any{"operation": "noop"},
		},
	}
}

func condStep(name, condition, ifTrue, ifFalse string) *schema.StepDefinition {
	return &schema.StepDefinition{
		Name: name,
		Type: schema.KindConditional,
		Payload: &schema.ConditionalPayload{
			Condition: condition,
			IfTrue:    ifTrue,
			IfFalse:   ifFalse,
		},
	}
}

func validDef(steps map[string]*schema.StepDefinition) *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		ID:    "wf-test",
		Name:  "test workflow",
		Steps: steps,
	}
}

func newValidator(t *testing.T, opts ...ValidatorOption) *WorkflowValidator {
	t.Helper()
	wv, err := NewWorkflowValidator(opts...)
	require.NoError(t, err)
	return wv
}

func errorCodes(r *schema.ValidationResult) []string {
	var codes []string
	for _, e := range r.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}

// rejectingChecker fails every expression; used to prove the hook is wired.
type rejectingChecker struct{}

func (rejectingChecker) CheckCondition(expression string) error {
	return fmt.Errorf("no expression compiles here: %s", expression)
}

// --- Interface compliance ---

func TestWorkflowValidator_ImplementsValidator(t *testing.T) {
	var _ Validator = (*WorkflowValidator)(nil)
}

// --- Full pipeline ---

func TestWorkflowValidator_FullValid(t *testing.T) {
	wv := newValidator(t)

	def := validDef(map[string]*schema.StepDefinition{
		"s1": envStep("s1"),
		"s2": envStep("s2", "s1"),
	})
	result := wv.Validate(def)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestWorkflowValidator_NilDef(t *testing.T) {
	wv := newValidator(t)
	result := wv.Validate(nil)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "nil")
}

// --- Short-circuit ---

func TestWorkflowValidator_StructuralFailShortCircuits(t *testing.T) {
	wv := newValidator(t)

	// No id, no name: structural errors. Semantic/DAG never run, so the
	// dangling depends_on below is not reported.
	def := &schema.WorkflowDefinition{
		Steps: map[string]*schema.StepDefinition{
			"s1": envStep("s1", "ghost"),
		},
	}
	result := wv.Validate(def)
	require.False(t, result.Valid())
	assert.NotContains(t, errorCodes(result), schema.ErrCodeDanglingReference)
}

func TestWorkflowValidator_SemanticErrorsSkipDAG(t *testing.T) {
	wv := newValidator(t)

	// s1/s2 form a cycle, but s1 also has a dangling ref. DAG is skipped.
	def := validDef(map[string]*schema.StepDefinition{
		"s1": envStep("s1", "s2", "ghost"),
		"s2": envStep("s2", "s1"),
	})
	result := wv.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, errorCodes(result), schema.ErrCodeDanglingReference)
	assert.NotContains(t, errorCodes(result), schema.ErrCodeCycleDetected,
		"DAG stage runs only when semantic is clean")
}

// --- Output keys ---

func TestWorkflowValidator_DuplicateOutputKey(t *testing.T) {
	wv := newValidator(t)

	a := envStep("a")
	a.OutputKey = "result"
	b := envStep("b")
	b.OutputKey = "result"
	c := envStep("c")
	c.OutputKey = "unique"

	result := wv.Validate(validDef(map[string]*schema.StepDefinition{"a": a, "b": b, "c": c}))
	require.False(t, result.Valid())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeDuplicateOutputKey, result.Errors[0].Code)
	// Every claimant is named so the operator can fix either one.
	assert.Contains(t, result.Errors[0].Message, "a")
	assert.Contains(t, result.Errors[0].Message, "b")
}

// --- References ---

func TestWorkflowValidator_DanglingDependsOn(t *testing.T) {
	wv := newValidator(t)

	result := wv.Validate(validDef(map[string]*schema.StepDefinition{
		"s1": envStep("s1", "missing"),
	}))
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeDanglingReference, result.Errors[0].Code)
	assert.Equal(t, "s1", result.Errors[0].StepID)
}

func TestWorkflowValidator_DanglingBranchTargets(t *testing.T) {
	wv := newValidator(t)

	result := wv.Validate(validDef(map[string]*schema.StepDefinition{
		"gate": condStep("gate", "outputs.ok", "missing_true", "missing_false"),
	}))
	require.False(t, result.Valid())

	codes := errorCodes(result)
	count := 0
	for _, c := range codes {
		if c == schema.ErrCodeDanglingReference {
			count++
		}
	}
	assert.Equal(t, 2, count, "both branch targets reported")
}

// --- Payloads ---

func TestWorkflowValidator_MissingRequiredFields(t *testing.T) {
	wv := newValidator(t)

	def := validDef(map[string]*schema.StepDefinition{
		"env": {Name: "env", Type: schema.KindEnvironmentAction, Payload: &schema.EnvironmentActionPayload{}},
		"mcp": {Name: "mcp", Type: schema.KindMcpAgent, Payload: &schema.McpAgentPayload{}},
	})
	result := wv.Validate(def)
	require.False(t, result.Valid())
	// environment + action + mcp_server + tool
	assert.Len(t, result.Errors, 4)
	for _, e := range result.Errors {
		assert.Equal(t, schema.ErrCodeMalformedPayload, e.Code)
	}
}

func TestWorkflowValidator_ConditionCheckerWired(t *testing.T) {
	wv := newValidator(t, WithConditionChecker(rejectingChecker{}))

	target := envStep("target")
	def := validDef(map[string]*schema.StepDefinition{
		"gate":   condStep("gate", "whatever", "target", "target"),
		"target": target,
	})
	result := wv.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "does not compile")
}

func TestWorkflowValidator_SingleBranchWarning(t *testing.T) {
	wv := newValidator(t)

	def := validDef(map[string]*schema.StepDefinition{
		"gate":   condStep("gate", "outputs.ok", "target", ""),
		"target": envStep("target"),
	})
	result := wv.Validate(def)
	assert.True(t, result.Valid(), "open branch is legal")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "one branch")
}

func TestWorkflowValidator_UnknownTypeWarnsNotErrors(t *testing.T) {
	wv := newValidator(t)

	def := validDef(map[string]*schema.StepDefinition{
		"future": {
			Name: "future",
			Type: "quantum_leap",
			Payload: &schema.UnknownPayload{
				Type: "quantum_leap",
				Raw:  []byte(`{"name":"future","type":"quantum_leap"}`),
			},
		},
	})
	result := wv.Validate(def)
	assert.True(t, result.Valid())
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, schema.ErrCodeCodecMismatch, result.Warnings[0].Code)
}

func TestWorkflowValidator_HighRetryCountWarning(t *testing.T) {
	wv := newValidator(t)

	step := envStep("s1")
	retries := 25
	step.RetryCount = &retries

	result := wv.Validate(validDef(map[string]*schema.StepDefinition{"s1": step}))
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "retry")
}

// --- DAG ---

func TestWorkflowValidator_CycleDetectedWithPath(t *testing.T) {
	wv := newValidator(t)

	def := validDef(map[string]*schema.StepDefinition{
		"s1": envStep("s1", "s3"),
		"s2": envStep("s2", "s1"),
		"s3": envStep("s3", "s2"),
	})
	result := wv.Validate(def)
	require.False(t, result.Valid())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeCycleDetected, result.Errors[0].Code)
	// The offending sequence is spelled out.
	assert.Contains(t, result.Errors[0].Message, "->")
	for _, id := range []string{"s1", "s2", "s3"} {
		assert.Contains(t, result.Errors[0].Message, id)
	}
}

func TestWorkflowValidator_SelfCycle(t *testing.T) {
	wv := newValidator(t)

	def := validDef(map[string]*schema.StepDefinition{
		"s1": envStep("s1", "s1"),
	})
	result := wv.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, errorCodes(result), schema.ErrCodeCycleDetected)
}

func TestWorkflowValidator_BranchTargetsCountAsDependencies(t *testing.T) {
	wv := newValidator(t)

	// gate -> target via if_true, target -> gate via depends_on: a cycle
	// even though no depends_on mentions target.
	gate := condStep("gate", "outputs.ok", "target", "")
	def := validDef(map[string]*schema.StepDefinition{
		"gate":   gate,
		"target": envStep("target", "gate"),
	})
	// depends_on gate AND if_true target both gate->target: no cycle there.
	// Make it circular: gate depends on target.
	gate.DependsOn = []string{"target"}
	result := wv.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, errorCodes(result), schema.ErrCodeCycleDetected)
}

func TestWorkflowValidator_CleanDAGNoWarnings(t *testing.T) {
	wv := newValidator(t)

	def := validDef(map[string]*schema.StepDefinition{
		"s1": envStep("s1"),
		"s2": envStep("s2", "s1"),
	})
	result := wv.Validate(def)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

// --- ValidateDefinition ---

func TestWorkflowValidator_ValidateDefinitionError(t *testing.T) {
	wv := newValidator(t)

	err := wv.ValidateDefinition(validDef(map[string]*schema.StepDefinition{
		"s1": envStep("s1", "s1"),
	}))
	require.Error(t, err)

	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeCycleDetected, lerr.Code)
}
