// Package graph is the in-memory editing representation of a workflow:
// nodes wrapping step definitions with presentation-only positions, and
// directed edges that are the single source of truth for dependencies.
//
// The graph is mutated synchronously by one editing session; it is not safe
// for concurrent use and does not need to be.
package graph

import (
	"encoding/json"

	"github.com/loomworks/loom/pkg/schema"
)

// Branch labels for edges leaving a conditional step.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Position is the canvas placement of a node. Presentation only: dropped on
// encode, defaulted on decode.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node wraps a step definition with its canvas position.
type Node struct {
	ID       string                 `json:"id"`
	Step     *schema.StepDefinition `json:"step"`
	Position Position               `json:"position"`
}

// Unsupported reports whether the node carries a step of an unrecognized
// type, preserved opaquely for forward compatibility.
func (n *Node) Unsupported() bool {
	_, ok := n.Step.Payload.(*schema.UnknownPayload)
	return ok
}

// Edge is a directed dependency between two nodes. Branch is set only on
// edges leaving a conditional step.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Branch string `json:"branch,omitempty"`
}

// Graph holds nodes and edges in insertion order.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
	ids       IDGenerator
}

// Option configures a Graph.
type Option func(*Graph)

// WithIDGenerator overrides the default uuid-backed step ID generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(g *Graph) { g.ids = gen }
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		ids:   NewUUIDGenerator(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode creates a step of the given kind with the supplied default payload
// and a fresh unique ID, and inserts it. It never fails: candidate IDs are
// regenerated until one is unused.
func (g *Graph) AddNode(kind schema.StepKind, pos Position, defaults schema.StepPayload) *Node {
	id := g.ids.StepID(kind)
	for _, exists := g.nodes[id]; exists; _, exists = g.nodes[id] {
		id = g.ids.StepID(kind)
	}

	node := &Node{
		ID: id,
		Step: &schema.StepDefinition{
			Name:    string(kind),
			Type:    kind,
			Payload: defaults,
		},
		Position: pos,
	}
	g.nodes[id] = node
	g.nodeOrder = append(g.nodeOrder, id)
	return node
}

// InsertNode inserts a node with an explicit ID (used when loading a
// persisted definition). Fails on a duplicate ID.
func (g *Graph) InsertNode(node *Node) error {
	if node == nil || node.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "node has empty id")
	}
	if _, exists := g.nodes[node.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeDuplicateID, "duplicate step id %q", node.ID).
			WithStep(node.ID)
	}
	g.nodes[node.ID] = node
	g.nodeOrder = append(g.nodeOrder, node.ID)
	return nil
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the node count.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// RemoveNode removes the node and every edge where it is source or target.
// No-op if the ID is absent.
func (g *Graph) RemoveNode(id string) {
	if _, exists := g.nodes[id]; !exists {
		return
	}
	delete(g.nodes, id)
	g.nodeOrder = removeString(g.nodeOrder, id)

	for _, edgeID := range append([]string(nil), g.edgeOrder...) {
		e := g.edges[edgeID]
		if e.Source == id || e.Target == id {
			g.RemoveEdge(edgeID)
		}
	}
}

// MoveNode updates a node's canvas position. No-op if the ID is absent.
func (g *Graph) MoveNode(id string, pos Position) {
	if node, exists := g.nodes[id]; exists {
		node.Position = pos
	}
}

// Common step fields accepted by UpdateNode patches. Everything else in a
// patch is shallow-merged into the kind-specific payload.
var commonPatchKeys = map[string]bool{
	"name":        true,
	"output_key":  true,
	"timeout":     true,
	"retry_count": true,
	"retry_delay": true,
}

// UpdateNode shallow-merges a patch into a node's step. Common fields
// (name, output_key, timeout, retry_count, retry_delay) update the step
// directly; remaining keys merge into the payload. Semantic validation is
// deferred to save time — only a patch the payload cannot structurally
// absorb is rejected here.
func (g *Graph) UpdateNode(id string, patch map[string]any) error {
	node, exists := g.nodes[id]
	if !exists {
		return schema.NewErrorf(schema.ErrCodeNotFound, "step %q not found", id).WithStep(id)
	}

	payloadPatch := make(map[string]any, len(patch))
	commonPatch := make(map[string]any, len(patch))
	for k, v := range patch {
		if commonPatchKeys[k] {
			commonPatch[k] = v
		} else {
			payloadPatch[k] = v
		}
	}

	step := node.Step.Clone()
	if len(commonPatch) > 0 {
		if err := mergeInto(step, commonPatch); err != nil {
			return schema.NewErrorf(schema.ErrCodeMalformedPayload,
				"step %q: %v", id, err).WithStep(id).WithCause(err)
		}
	}
	if len(payloadPatch) > 0 {
		merged, err := mergePayload(step, payloadPatch)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeMalformedPayload,
				"step %q: %v", id, err).WithStep(id).WithCause(err)
		}
		step.Payload = merged
	}

	node.Step = step
	return nil
}

// mergeInto applies a patch to the common step fields via a JSON round trip.
// The step's own UnmarshalJSON would rebuild the payload from the type tag,
// so the patch decodes into a plain shadow struct instead.
func mergeInto(step *schema.StepDefinition, patch map[string]any) error {
	b, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	var c struct {
		Name       *string  `json:"name"`
		OutputKey  *string  `json:"output_key"`
		Timeout    *float64 `json:"timeout"`
		RetryCount *int     `json:"retry_count"`
		RetryDelay *float64 `json:"retry_delay"`
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return err
	}
	if c.Name != nil {
		step.Name = *c.Name
	}
	if c.OutputKey != nil {
		step.OutputKey = *c.OutputKey
	}
	if c.Timeout != nil {
		step.Timeout = c.Timeout
	}
	if c.RetryCount != nil {
		step.RetryCount = c.RetryCount
	}
	if c.RetryDelay != nil {
		step.RetryDelay = c.RetryDelay
	}
	return nil
}

// mergePayload shallow-merges a patch into the step's kind-specific payload.
// For unknown payloads the patch merges into the preserved raw object.
func mergePayload(step *schema.StepDefinition, patch map[string]any) (schema.StepPayload, error) {
	if u, ok := step.Payload.(*schema.UnknownPayload); ok {
		var raw map[string]any
		if err := json.Unmarshal(u.Raw, &raw); err != nil {
			return nil, err
		}
		for k, v := range patch {
			raw[k] = v
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		return &schema.UnknownPayload{Type: u.Type, Raw: b}, nil
	}

	current := make(map[string]any)
	if step.Payload != nil {
		b, err := json.Marshal(step.Payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &current); err != nil {
			return nil, err
		}
	}
	for k, v := range patch {
		current[k] = v
	}

	merged := schema.NewPayload(step.Type)
	if merged == nil {
		return nil, schema.NewErrorf(schema.ErrCodeCodecMismatch, "unknown step type %q", step.Type)
	}
	b, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// AddEdge connects source to target. For a conditional source, branch is
// required and at most one edge per (source, branch) pair exists: a second
// edge with the same branch replaces the previous target (a conditional
// output is single-valued). For other kinds, branch must be empty and a
// duplicate (source, target) is returned as-is.
func (g *Graph) AddEdge(source, target, branch string) (*Edge, error) {
	src, exists := g.nodes[source]
	if !exists {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "edge source %q not found", source)
	}
	if _, exists := g.nodes[target]; !exists {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "edge target %q not found", target)
	}

	if src.Step.Type == schema.KindConditional {
		if branch != BranchTrue && branch != BranchFalse {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"edge from conditional %q requires branch %q or %q", source, BranchTrue, BranchFalse)
		}
		// Last-write-wins on the (source, branch) slot.
		for _, id := range g.edgeOrder {
			e := g.edges[id]
			if e.Source == source && e.Branch == branch {
				g.RemoveEdge(id)
				break
			}
		}
	} else if branch != "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"step %q is not conditional; edge cannot carry a branch", source)
	}

	id := EdgeID(source, target, branch)
	if existing, ok := g.edges[id]; ok {
		return existing, nil
	}

	edge := &Edge{ID: id, Source: source, Target: target, Branch: branch}
	g.edges[id] = edge
	g.edgeOrder = append(g.edgeOrder, id)
	return edge, nil
}

// InsertEdge restores an edge with its deterministic ID, bypassing the
// interactive branch rules of AddEdge. Used when rebuilding a graph from a
// persisted definition; duplicates are returned as-is.
func (g *Graph) InsertEdge(source, target, branch string) *Edge {
	id := EdgeID(source, target, branch)
	if existing, ok := g.edges[id]; ok {
		return existing
	}
	edge := &Edge{ID: id, Source: source, Target: target, Branch: branch}
	g.edges[id] = edge
	g.edgeOrder = append(g.edgeOrder, id)
	return edge
}

// RemoveEdge removes an edge by ID. No-op if absent.
func (g *Graph) RemoveEdge(id string) {
	if _, exists := g.edges[id]; !exists {
		return
	}
	delete(g.edges, id)
	g.edgeOrder = removeString(g.edgeOrder, id)
}

// Edge returns the edge with the given ID, or nil.
func (g *Graph) Edge(id string) *Edge {
	return g.edges[id]
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, g.edges[id])
	}
	return out
}

// EdgesFrom returns the edges whose source is the given node, in insertion
// order.
func (g *Graph) EdgesFrom(source string) []*Edge {
	var out []*Edge
	for _, id := range g.edgeOrder {
		if e := g.edges[id]; e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

// PlainSources returns the sources of non-branch edges into target, in
// insertion order. This is the depends_on set at encode time.
func (g *Graph) PlainSources(target string) []string {
	var out []string
	for _, id := range g.edgeOrder {
		if e := g.edges[id]; e.Target == target && e.Branch == "" {
			out = append(out, e.Source)
		}
	}
	return out
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
