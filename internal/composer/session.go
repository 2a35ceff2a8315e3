// Package composer owns the editing lifecycle of a workflow: one session
// per workflow being edited, the mutation operations on its graph, and the
// save path that turns the graph back into a validated definition.
package composer

import (
	"sync"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/codec"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/registry"
	"github.com/loomworks/loom/pkg/schema"
)

// StepState tracks a step's configuration lifecycle within a session.
type StepState string

const (
	StateDraft      StepState = "draft"      // just created, defaults only
	StateConfigured StepState = "configured" // payload edited
	StateValidated  StepState = "validated"  // passed all checks at save time
	StatePersisted  StepState = "persisted"  // included in a saved definition
)

// Session is one editing session over one workflow. Mutations are applied
// synchronously; the lock exists because HTTP and MCP frontends may share a
// session, not because the graph supports concurrent editing.
type Session struct {
	ID string

	mu     sync.Mutex
	info   codec.WorkflowInfo
	graph  *graph.Graph
	drafts map[string]map[string]any // per-step staged config, merged on apply
	states map[string]StepState
	saving bool
}

// newSession wires an empty session around an existing graph.
func newSession(info codec.WorkflowInfo, g *graph.Graph) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		info:   info,
		graph:  g,
		drafts: make(map[string]map[string]any),
		states: make(map[string]StepState),
	}
	for _, node := range g.Nodes() {
		s.states[node.ID] = StatePersisted
	}
	return s
}

// WorkflowID returns the ID of the workflow being edited.
func (s *Session) WorkflowID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.ID
}

// Info returns a copy of the definition-level fields.
func (s *Session) Info() codec.WorkflowInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Rename updates the workflow's name and description.
func (s *Session) Rename(name, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		s.info.Name = name
	}
	s.info.Description = description
}

// AddStep creates a step of the given kind with registry defaults at the
// given position. Fails only on an unknown kind.
func (s *Session) AddStep(kind schema.StepKind, pos graph.Position) (*graph.Node, error) {
	spec, ok := registry.Lookup(kind)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown step kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.graph.AddNode(kind, pos, spec.Defaults())
	node.Step.Name = spec.Label
	s.states[node.ID] = StateDraft
	return node, nil
}

// RemoveStep removes a step and all edges touching it. No-op if absent.
func (s *Session) RemoveStep(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.RemoveNode(id)
	delete(s.states, id)
	delete(s.drafts, id)
}

// MoveStep updates a step's canvas position.
func (s *Session) MoveStep(id string, pos graph.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.MoveNode(id, pos)
}

// Connect adds a dependency edge. For conditional sources, branch selects
// the slot and a second edge on the same slot replaces the previous target.
func (s *Session) Connect(source, target, branch string) (*graph.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.AddEdge(source, target, branch)
}

// Disconnect removes an edge. No-op if absent.
func (s *Session) Disconnect(edgeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.RemoveEdge(edgeID)
}

// StageConfig merges a patch into the step's draft buffer without touching
// the authoritative step. Nothing is validated here: drafts absorb every
// keystroke and only Apply commits.
func (s *Session) StageConfig(stepID string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graph.Node(stepID) == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "step %q not found", stepID).WithStep(stepID)
	}
	draft := s.drafts[stepID]
	if draft == nil {
		draft = make(map[string]any, len(patch))
		s.drafts[stepID] = draft
	}
	for k, v := range patch {
		draft[k] = v
	}
	return nil
}

// Draft returns a copy of the staged patch for a step, or nil.
func (s *Session) Draft(stepID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.drafts[stepID]
	if draft == nil {
		return nil
	}
	cp := make(map[string]any, len(draft))
	for k, v := range draft {
		cp[k] = v
	}
	return cp
}

// ApplyConfig commits the staged draft into the authoritative step and
// marks the step configured. Semantic validation stays deferred to save.
func (s *Session) ApplyConfig(stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[stepID]
	if !ok {
		return nil
	}
	if err := s.graph.UpdateNode(stepID, draft); err != nil {
		return err
	}
	delete(s.drafts, stepID)
	s.states[stepID] = StateConfigured
	return nil
}

// UpdateConfig merges a patch straight into the authoritative step,
// bypassing the draft buffer. Used by non-interactive callers (MCP, API).
func (s *Session) UpdateConfig(stepID string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.graph.UpdateNode(stepID, patch); err != nil {
		return err
	}
	s.states[stepID] = StateConfigured
	return nil
}

// StepState returns the lifecycle state of a step, or "" if unknown.
func (s *Session) StepState(stepID string) StepState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[stepID]
}

// Graph returns the underlying graph. Callers must treat it as owned by the
// session and mutate only through session methods.
func (s *Session) Graph() *graph.Graph {
	return s.graph
}

// beginSave marks a save in flight. Returns false when one already is:
// at most one concurrent save per session.
func (s *Session) beginSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saving {
		return false
	}
	s.saving = true
	return true
}

// endSave clears the in-flight flag and, on success, promotes step states.
func (s *Session) endSave(persisted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if !persisted {
		return
	}
	for id := range s.states {
		s.states[id] = StatePersisted
	}
}

// markValidated promotes every step after a fully clean validation.
func (s *Session) markValidated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.states {
		s.states[id] = StateValidated
	}
}
