package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepKind enumerates the kinds of steps in a workflow. The set is closed:
// adding a kind requires a payload variant here, a registry entry, and a
// codec branch, all of which fail to compile until updated.
type StepKind string

const (
	KindEnvironmentAction StepKind = "environment_action"
	KindAgentTask         StepKind = "agent_task"
	KindConditional       StepKind = "conditional"
	KindParallel          StepKind = "parallel"
	KindMcpAgent          StepKind = "mcp_agent"
	KindBrowserAction     StepKind = "browser_action"
)

// Kinds returns all recognized step kinds in declaration order.
func Kinds() []StepKind {
	return []StepKind{
		KindEnvironmentAction,
		KindAgentTask,
		KindConditional,
		KindParallel,
		KindMcpAgent,
		KindBrowserAction,
	}
}

// WorkflowDefinition is the persisted, declarative workflow format consumed
// by the execution engine. Steps are keyed by step ID; insertion order is
// not significant.
type WorkflowDefinition struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Steps       map[string]*StepDefinition `json:"steps"`
	Metadata    map[string]any             `json:"metadata,omitempty"`
	CreatedAt   time.Time                  `json:"created_at,omitzero"`
	UpdatedAt   time.Time                  `json:"updated_at,omitzero"`
}

// StepDefinition describes a single step. Common fields are shared across
// all kinds; the kind-specific configuration lives in Payload and is
// flattened into the step object on the wire.
type StepDefinition struct {
	Name       string      `json:"name"`
	Type       StepKind    `json:"type"`
	DependsOn  []string    `json:"depends_on,omitempty"`
	OutputKey  string      `json:"output_key,omitempty"`
	Timeout    *float64    `json:"timeout,omitempty"`
	RetryCount *int        `json:"retry_count,omitempty"`
	RetryDelay *float64    `json:"retry_delay,omitempty"`
	Payload    StepPayload `json:"-"`
}

// StepPayload is the closed union of kind-specific step configurations.
type StepPayload interface {
	Kind() StepKind
	Clone() StepPayload
}

// EnvironmentActionPayload configures a step that performs an operation in
// an external environment.
type EnvironmentActionPayload struct {
	Environment string         `json:"environment"`
	Action      map[string]any `json:"action,omitempty"`
}

func (p *EnvironmentActionPayload) Kind() StepKind { return KindEnvironmentAction }

func (p *EnvironmentActionPayload) Clone() StepPayload {
	cp := *p
	cp.Action = cloneMap(p.Action)
	return &cp
}

// AgentTaskPayload configures a step that delegates a task to an agent.
type AgentTaskPayload struct {
	Agent       string         `json:"agent"`
	TaskInput   map[string]any `json:"task_input,omitempty"`
	Description string         `json:"description,omitempty"`
}

func (p *AgentTaskPayload) Kind() StepKind { return KindAgentTask }

func (p *AgentTaskPayload) Clone() StepPayload {
	cp := *p
	cp.TaskInput = cloneMap(p.TaskInput)
	return &cp
}

// ConditionalPayload configures a branching step. IfTrue/IfFalse hold the
// step IDs that run for each outcome; either may be empty (open branch
// terminates that path).
type ConditionalPayload struct {
	Condition string `json:"condition"`
	IfTrue    string `json:"if_true,omitempty"`
	IfFalse   string `json:"if_false,omitempty"`
}

func (p *ConditionalPayload) Kind() StepKind { return KindConditional }

func (p *ConditionalPayload) Clone() StepPayload {
	cp := *p
	return &cp
}

// ParallelPayload configures a fan-out step. Steps is informational for the
// engine; dependency gating still comes from depends_on of the children.
type ParallelPayload struct {
	Steps      []string `json:"steps,omitempty"`
	WaitForAll *bool    `json:"wait_for_all,omitempty"`
}

func (p *ParallelPayload) Kind() StepKind { return KindParallel }

func (p *ParallelPayload) Clone() StepPayload {
	cp := *p
	if p.Steps != nil {
		cp.Steps = append([]string(nil), p.Steps...)
	}
	if p.WaitForAll != nil {
		v := *p.WaitForAll
		cp.WaitForAll = &v
	}
	return &cp
}

// McpAgentPayload configures a step that invokes a tool on an MCP server.
type McpAgentPayload struct {
	McpServer string         `json:"mcp_server"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func (p *McpAgentPayload) Kind() StepKind { return KindMcpAgent }

func (p *McpAgentPayload) Clone() StepPayload {
	cp := *p
	cp.Arguments = cloneMap(p.Arguments)
	return &cp
}

// BrowserActionPayload configures a browser automation step.
type BrowserActionPayload struct {
	BrowserAction string `json:"browser_action"`
	URL           string `json:"url,omitempty"`
	Selector      string `json:"selector,omitempty"`
	Value         string `json:"value,omitempty"`
}

func (p *BrowserActionPayload) Kind() StepKind { return KindBrowserAction }

func (p *BrowserActionPayload) Clone() StepPayload {
	cp := *p
	return &cp
}

// UnknownPayload preserves a step whose type tag is not recognized by this
// version of loom (authored by a newer one). The raw step object is kept so
// the unrecognized keys survive an edit-and-save round trip untouched; the
// common fields are still live on the enclosing StepDefinition.
type UnknownPayload struct {
	Type string
	Raw  json.RawMessage
}

func (p *UnknownPayload) Kind() StepKind { return StepKind(p.Type) }

func (p *UnknownPayload) Clone() StepPayload {
	cp := *p
	cp.Raw = append(json.RawMessage(nil), p.Raw...)
	return &cp
}

// NewPayload returns the zero payload for a recognized kind, or nil for an
// unknown kind. The switch is exhaustive over the closed set.
func NewPayload(kind StepKind) StepPayload {
	switch kind {
	case KindEnvironmentAction:
		return &EnvironmentActionPayload{}
	case KindAgentTask:
		return &AgentTaskPayload{}
	case KindConditional:
		return &ConditionalPayload{}
	case KindParallel:
		return &ParallelPayload{}
	case KindMcpAgent:
		return &McpAgentPayload{}
	case KindBrowserAction:
		return &BrowserActionPayload{}
	}
	return nil
}

// Clone returns a deep copy of the step definition.
func (s *StepDefinition) Clone() *StepDefinition {
	cp := *s
	if s.DependsOn != nil {
		cp.DependsOn = append([]string(nil), s.DependsOn...)
	}
	if s.Timeout != nil {
		v := *s.Timeout
		cp.Timeout = &v
	}
	if s.RetryCount != nil {
		v := *s.RetryCount
		cp.RetryCount = &v
	}
	if s.RetryDelay != nil {
		v := *s.RetryDelay
		cp.RetryDelay = &v
	}
	if s.Payload != nil {
		cp.Payload = s.Payload.Clone()
	}
	return &cp
}

// Clone returns a deep copy of the workflow definition.
func (w *WorkflowDefinition) Clone() *WorkflowDefinition {
	cp := *w
	cp.Metadata = cloneMap(w.Metadata)
	if w.Steps != nil {
		cp.Steps = make(map[string]*StepDefinition, len(w.Steps))
		for id, s := range w.Steps {
			cp.Steps[id] = s.Clone()
		}
	}
	return &cp
}

// stepCommon mirrors the common wire fields of a step object.
type stepCommon struct {
	Name       string   `json:"name"`
	Type       StepKind `json:"type"`
	DependsOn  []string `json:"depends_on,omitempty"`
	OutputKey  string   `json:"output_key,omitempty"`
	Timeout    *float64 `json:"timeout,omitempty"`
	RetryCount *int     `json:"retry_count,omitempty"`
	RetryDelay *float64 `json:"retry_delay,omitempty"`
}

// commonWireKeys are the step-level keys owned by StepDefinition itself.
var commonWireKeys = []string{
	"name", "type", "depends_on", "output_key", "timeout", "retry_count", "retry_delay",
}

// MarshalJSON flattens the kind-specific payload fields into the step
// object alongside the common fields. For unknown payloads the unrecognized
// keys are emitted verbatim from Raw, but the common fields come from the
// struct: edits and recomputed depends_on made after decode must reach the
// wire even when the kind is not understood.
func (s *StepDefinition) MarshalJSON() ([]byte, error) {
	if u, ok := s.Payload.(*UnknownPayload); ok {
		out := map[string]any{}
		if len(u.Raw) > 0 {
			if err := json.Unmarshal(u.Raw, &out); err != nil {
				return nil, NewErrorf(ErrCodeMalformedPayload,
					"re-encode step of type %q: %v", u.Type, err).WithCause(err)
			}
		}
		for _, k := range commonWireKeys {
			delete(out, k)
		}
		if err := remarshal(s.common(), &out); err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}

	out := map[string]any{}
	if err := remarshal(s.common(), &out); err != nil {
		return nil, err
	}
	if s.Payload != nil {
		if s.Payload.Kind() != s.Type {
			return nil, NewErrorf(ErrCodeMalformedPayload,
				"step type %q does not match payload kind %q", s.Type, s.Payload.Kind())
		}
		if err := remarshal(s.Payload, &out); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

func (s *StepDefinition) common() stepCommon {
	return stepCommon{
		Name:       s.Name,
		Type:       s.Type,
		DependsOn:  s.DependsOn,
		OutputKey:  s.OutputKey,
		Timeout:    s.Timeout,
		RetryCount: s.RetryCount,
		RetryDelay: s.RetryDelay,
	}
}

// UnmarshalJSON reads the common fields, then dispatches on the type tag to
// decode the kind-specific payload from the same object. An unrecognized tag
// is preserved as an UnknownPayload rather than rejected, so definitions
// authored by newer versions still load.
func (s *StepDefinition) UnmarshalJSON(data []byte) error {
	var common stepCommon
	if err := json.Unmarshal(data, &common); err != nil {
		return err
	}
	s.Name = common.Name
	s.Type = common.Type
	s.DependsOn = common.DependsOn
	s.OutputKey = common.OutputKey
	s.Timeout = common.Timeout
	s.RetryCount = common.RetryCount
	s.RetryDelay = common.RetryDelay

	payload := NewPayload(common.Type)
	if payload == nil {
		s.Payload = &UnknownPayload{
			Type: string(common.Type),
			Raw:  append(json.RawMessage(nil), data...),
		}
		return nil
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return NewErrorf(ErrCodeMalformedPayload, "decode %s payload: %v", common.Type, err).
			WithCause(err)
	}
	s.Payload = payload
	return nil
}

// remarshal merges the JSON form of v into dst.
func remarshal(v any, dst *map[string]any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("remarshal: %w", err)
	}
	return json.Unmarshal(b, dst)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
