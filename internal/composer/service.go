package composer

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/catalog"
	"github.com/loomworks/loom/internal/codec"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/logging"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/pkg/schema"
)

// Deps holds the dependencies for creating a Service.
type Deps struct {
	Store    store.Store
	Codec    *codec.Codec
	Runner   engine.Runner
	Catalogs *catalog.Client
	IDs      graph.IDGenerator // optional; default uuid-backed
	Logger   *slog.Logger
}

// Service orchestrates editing sessions around the store, the codec, and
// the external engine.
type Service struct {
	store    store.Store
	codec    *codec.Codec
	runner   engine.Runner
	catalogs *catalog.Client
	ids      graph.IDGenerator
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	ids := deps.IDs
	if ids == nil {
		ids = graph.NewUUIDGenerator()
	}
	return &Service{
		store:    deps.Store,
		codec:    deps.Codec,
		runner:   deps.Runner,
		catalogs: deps.Catalogs,
		ids:      ids,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// CreateSession starts an editing session over a brand new workflow.
func (svc *Service) CreateSession(name, description string) *Session {
	info := codec.WorkflowInfo{
		ID:          "wf-" + uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	session := newSession(info, graph.New(graph.WithIDGenerator(svc.ids)))

	svc.mu.Lock()
	svc.sessions[session.ID] = session
	svc.mu.Unlock()

	svc.logger.Info("session created", "session_id", session.ID, "workflow_id", info.ID)
	return session
}

// OpenSession loads a persisted workflow and starts an editing session over
// its decoded graph. Validation issues found while loading are returned so
// the caller can surface them; they do not block editing.
func (svc *Service) OpenSession(ctx context.Context, workflowID string) (*Session, *schema.ValidationResult, error) {
	ctx = logging.WithWorkflowID(ctx, workflowID)

	def, err := svc.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	g, result, err := svc.codec.Decode(def, graph.WithIDGenerator(svc.ids))
	if err != nil {
		return nil, result, err
	}

	info := codec.WorkflowInfo{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Metadata:    def.Metadata,
		CreatedAt:   def.CreatedAt,
		UpdatedAt:   def.UpdatedAt,
	}
	session := newSession(info, g)

	svc.mu.Lock()
	svc.sessions[session.ID] = session
	svc.mu.Unlock()

	svc.logger.InfoContext(ctx, "session opened",
		"session_id", session.ID, "steps", g.Len(), "warnings", len(result.Warnings))
	return session, result, nil
}

// ImportDefinition starts an editing session over a definition supplied by
// the caller (e.g. a YAML import) instead of one loaded from the store. The
// definition gets a fresh ID when it carries none.
func (svc *Service) ImportDefinition(ctx context.Context, def *schema.WorkflowDefinition) (*Session, *schema.ValidationResult, error) {
	if def == nil {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "definition is nil")
	}
	if def.ID == "" {
		def.ID = "wf-" + uuid.NewString()
	}
	ctx = logging.WithWorkflowID(ctx, def.ID)

	g, result, err := svc.codec.Decode(def, graph.WithIDGenerator(svc.ids))
	if err != nil {
		return nil, result, err
	}

	info := codec.WorkflowInfo{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Metadata:    def.Metadata,
		CreatedAt:   def.CreatedAt,
		UpdatedAt:   def.UpdatedAt,
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}
	session := newSession(info, g)

	svc.mu.Lock()
	svc.sessions[session.ID] = session
	svc.mu.Unlock()

	svc.logger.InfoContext(ctx, "definition imported",
		"session_id", session.ID, "steps", g.Len(), "warnings", len(result.Warnings))
	return session, result, nil
}

// Session returns an open session by ID, or nil.
func (svc *Service) Session(id string) *Session {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.sessions[id]
}

// CloseSession discards a session. Unsaved edits are lost, by design: the
// graph lives only as long as the session.
func (svc *Service) CloseSession(id string) {
	svc.mu.Lock()
	delete(svc.sessions, id)
	svc.mu.Unlock()
}

// Validate dry-runs the encode path over the session's graph and returns
// every issue found, without touching the store.
func (svc *Service) Validate(session *Session) *schema.ValidationResult {
	_, result, _ := svc.codec.Encode(session.Graph(), session.Info())
	if result != nil && result.Valid() {
		session.markValidated()
	}
	return result
}

// Save encodes the session's graph and persists the definition. The graph
// is never modified by a save, so a failed save leaves the session exactly
// as it was. At most one save per session may be in flight.
func (svc *Service) Save(ctx context.Context, session *Session) (*schema.WorkflowDefinition, *schema.ValidationResult, error) {
	if !session.beginSave() {
		return nil, nil, schema.NewError(schema.ErrCodeConflict, "a save is already in flight for this session")
	}

	persisted := false
	defer func() { session.endSave(persisted) }()

	info := session.Info()
	info.UpdatedAt = time.Now().UTC()
	ctx = logging.WithWorkflowID(ctx, info.ID)

	def, result, err := svc.codec.Encode(session.Graph(), info)
	if err != nil {
		svc.logger.WarnContext(ctx, "save rejected by validation", "errors", len(result.Errors))
		return nil, result, err
	}
	session.markValidated()

	if err := svc.store.SaveWorkflow(ctx, def); err != nil {
		// Single retryable failure; the in-memory graph is untouched.
		return nil, result, schema.NewError(schema.ErrCodeStore, "save failed, retry").WithCause(err)
	}

	persisted = true
	session.mu.Lock()
	session.info.UpdatedAt = info.UpdatedAt
	session.mu.Unlock()

	svc.logger.InfoContext(ctx, "workflow saved", "steps", len(def.Steps))
	return def, result, nil
}

// ValidateDefinition runs the full validation pipeline over a raw definition
// without creating a session or touching the store.
func (svc *Service) ValidateDefinition(def *schema.WorkflowDefinition) *schema.ValidationResult {
	return svc.codec.Validator().Validate(def)
}

// GetWorkflow loads a persisted definition.
func (svc *Service) GetWorkflow(ctx context.Context, id string) (*schema.WorkflowDefinition, error) {
	return svc.store.GetWorkflow(ctx, id)
}

// ListWorkflows lists persisted definitions.
func (svc *Service) ListWorkflows(ctx context.Context, filter store.WorkflowFilter) ([]*schema.WorkflowDefinition, error) {
	return svc.store.ListWorkflows(ctx, filter)
}

// DeleteWorkflow removes a persisted definition.
func (svc *Service) DeleteWorkflow(ctx context.Context, id string) error {
	return svc.store.DeleteWorkflow(ctx, id)
}

// Execute hands a saved workflow to the execution engine.
func (svc *Service) Execute(ctx context.Context, workflowID string, input map[string]any) (*engine.ExecutionStatus, error) {
	if svc.runner == nil {
		return nil, schema.NewError(schema.ErrCodeEngine, "no execution engine configured")
	}
	ctx = logging.WithWorkflowID(ctx, workflowID)

	// The engine runs the persisted definition; refuse IDs we never saved.
	if _, err := svc.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return svc.runner.Execute(ctx, workflowID, input)
}

// ListEnvironments returns the environment catalog (possibly stale or
// empty; catalog failure never blocks editing).
func (svc *Service) ListEnvironments(ctx context.Context) []catalog.Environment {
	if svc.catalogs == nil {
		return nil
	}
	return svc.catalogs.ListEnvironments(ctx)
}

// ListAgents returns the agent catalog with the same degradation policy.
func (svc *Service) ListAgents(ctx context.Context) []catalog.Agent {
	if svc.catalogs == nil {
		return nil
	}
	return svc.catalogs.ListAgents(ctx)
}
