package graph

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/schema"
)

// IDGenerator produces candidate step IDs. The graph collision-checks every
// candidate, so a generator only has to be unique in practice, not by proof.
// Injected so tests can use a deterministic sequence instead of randomness.
type IDGenerator interface {
	StepID(kind schema.StepKind) string
}

// uuidGenerator is the default generator: kind prefix plus a short uuid
// fragment, e.g. "conditional-3f8a1c2d".
type uuidGenerator struct{}

// NewUUIDGenerator returns the default uuid-backed generator.
func NewUUIDGenerator() IDGenerator {
	return uuidGenerator{}
}

func (uuidGenerator) StepID(kind schema.StepKind) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s", kind, raw[:8])
}

// SequenceGenerator produces "kind-1", "kind-2", ... across all kinds.
// Deterministic; safe for concurrent use.
type SequenceGenerator struct {
	n atomic.Int64
}

// NewSequenceGenerator returns a SequenceGenerator starting at 1.
func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{}
}

func (g *SequenceGenerator) StepID(kind schema.StepKind) string {
	return fmt.Sprintf("%s-%d", kind, g.n.Add(1))
}

// EdgeID derives the deterministic edge ID from its endpoints. The tuple
// (source, target, branch) is unique within a graph, so the ID is too.
func EdgeID(source, target, branch string) string {
	if branch != "" {
		return fmt.Sprintf("%s->%s:%s", source, target, branch)
	}
	return fmt.Sprintf("%s->%s", source, target)
}
