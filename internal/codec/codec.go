// Package codec converts between the interactive graph representation and
// the persisted workflow definition.
//
// The conversion is asymmetric by design: plain dependency edges become
// depends_on entries, while branch edges from conditional steps fold into
// the if_true/if_false fields of the conditional's payload. Preserving that
// split exactly is what makes the round trip lossless.
package codec

import (
	"time"

	"github.com/loomworks/loom/internal/validation"
)

// WorkflowInfo carries the definition-level fields that do not live in the
// graph itself.
type WorkflowInfo struct {
	ID          string
	Name        string
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Codec converts graphs to definitions and back, validating on both paths.
type Codec struct {
	validator validation.Validator
}

// New creates a Codec backed by the given validator.
func New(v validation.Validator) *Codec {
	return &Codec{validator: v}
}

// Validator exposes the underlying validator for standalone checks.
func (c *Codec) Validator() validation.Validator {
	return c.validator
}
