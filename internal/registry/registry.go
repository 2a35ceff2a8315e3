// Package registry is the step type registry: the authoritative table of
// step kinds, their payload field specs, and their creation defaults.
package registry

import (
	"github.com/loomworks/loom/pkg/schema"
)

// FieldType describes the JSON type of a payload field.
type FieldType string

const (
	FieldString     FieldType = "string"
	FieldNumber     FieldType = "number"
	FieldBool       FieldType = "bool"
	FieldObject     FieldType = "object"
	FieldStringList FieldType = "string_list"
)

// FieldSpec describes one kind-specific payload field.
type FieldSpec struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// KindSpec describes one step kind: its label for freshly created steps,
// its payload fields, and a factory for the default payload.
type KindSpec struct {
	Kind       schema.StepKind
	Label      string
	Fields     []FieldSpec
	newPayload func() schema.StepPayload
}

// Defaults returns a fresh default payload for the kind. Each call returns
// a new value; callers may mutate it freely.
func (ks KindSpec) Defaults() schema.StepPayload {
	return ks.newPayload()
}

// kinds is the closed registry table, one entry per StepKind. The factories
// return concrete payload variants, so a new kind cannot be registered here
// without a matching schema union variant.
var kinds = []KindSpec{
	{
		Kind:  schema.KindEnvironmentAction,
		Label: "Environment Action",
		Fields: []FieldSpec{
			{Name: "environment", Type: FieldString, Required: true},
			{Name: "action", Type: FieldObject, Required: true},
		},
		newPayload: func() schema.StepPayload {
			return &schema.EnvironmentActionPayload{
				Action: map[string]any{"operation": ""},
			}
		},
	},
	{
		Kind:  schema.KindAgentTask,
		Label: "Agent Task",
		Fields: []FieldSpec{
			{Name: "agent", Type: FieldString, Required: true},
			{Name: "task_input", Type: FieldObject, Required: false},
			{Name: "description", Type: FieldString, Required: false},
		},
		newPayload: func() schema.StepPayload {
			return &schema.AgentTaskPayload{
				TaskInput: map[string]any{},
			}
		},
	},
	{
		Kind:  schema.KindConditional,
		Label: "Conditional",
		Fields: []FieldSpec{
			{Name: "condition", Type: FieldString, Required: true},
			{Name: "if_true", Type: FieldString, Required: false},
			{Name: "if_false", Type: FieldString, Required: false},
		},
		newPayload: func() schema.StepPayload {
			return &schema.ConditionalPayload{}
		},
	},
	{
		Kind:  schema.KindParallel,
		Label: "Parallel",
		Fields: []FieldSpec{
			{Name: "steps", Type: FieldStringList, Required: false},
			{Name: "wait_for_all", Type: FieldBool, Required: false},
		},
		newPayload: func() schema.StepPayload {
			waitForAll := true
			return &schema.ParallelPayload{WaitForAll: &waitForAll}
		},
	},
	{
		Kind:  schema.KindMcpAgent,
		Label: "MCP Agent",
		Fields: []FieldSpec{
			{Name: "mcp_server", Type: FieldString, Required: true},
			{Name: "tool", Type: FieldString, Required: true},
			{Name: "arguments", Type: FieldObject, Required: false},
		},
		newPayload: func() schema.StepPayload {
			return &schema.McpAgentPayload{
				Arguments: map[string]any{},
			}
		},
	},
	{
		Kind:  schema.KindBrowserAction,
		Label: "Browser Action",
		Fields: []FieldSpec{
			{Name: "browser_action", Type: FieldString, Required: true},
			{Name: "url", Type: FieldString, Required: false},
			{Name: "selector", Type: FieldString, Required: false},
			{Name: "value", Type: FieldString, Required: false},
		},
		newPayload: func() schema.StepPayload {
			return &schema.BrowserActionPayload{}
		},
	},
}

var byKind = func() map[schema.StepKind]KindSpec {
	m := make(map[schema.StepKind]KindSpec, len(kinds))
	for _, ks := range kinds {
		m[ks.Kind] = ks
	}
	return m
}()

// Lookup returns the spec for a kind.
func Lookup(kind schema.StepKind) (KindSpec, bool) {
	ks, ok := byKind[kind]
	return ks, ok
}

// Specs returns all kind specs in declaration order.
func Specs() []KindSpec {
	out := make([]KindSpec, len(kinds))
	copy(out, kinds)
	return out
}

// RequiredFields returns the required payload fields for a kind.
func RequiredFields(kind schema.StepKind) []FieldSpec {
	ks, ok := byKind[kind]
	if !ok {
		return nil
	}
	var required []FieldSpec
	for _, f := range ks.Fields {
		if f.Required {
			required = append(required, f)
		}
	}
	return required
}
