// Package store persists workflow definitions. Saving is always a full
// replace of the definition, never a delta, which is what makes abandoned
// in-flight saves harmless.
package store

import (
	"context"
	"time"

	"github.com/loomworks/loom/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// SaveWorkflow inserts or fully replaces a definition by its ID.
	SaveWorkflow(ctx context.Context, def *schema.WorkflowDefinition) error
	GetWorkflow(ctx context.Context, id string) (*schema.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.WorkflowDefinition, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	Name   string     `json:"name,omitempty"` // substring match
	Since  *time.Time `json:"since,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}
