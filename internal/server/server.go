// Package server exposes the composer over a JSON REST API: workflow CRUD,
// editing sessions with graph mutations, validation, and the execute proxy.
package server

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/loomworks/loom/internal/composer"
)

// Server serves the composer API.
type Server struct {
	svc    *composer.Service
	logger *slog.Logger
}

// NewServer creates a Server around a composer service.
func NewServer(svc *composer.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{svc: svc, logger: logger}
}

// Handler returns the HTTP handler for all API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Catalogs.
	mux.HandleFunc("GET /api/environments", s.handleListEnvironments)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)

	// Step kind registry.
	mux.HandleFunc("GET /api/step-kinds", s.handleListStepKinds)

	// Persisted workflows.
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{id}", s.handleDeleteWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}/yaml", s.handleExportYAML)
	mux.HandleFunc("POST /api/workflows/yaml", s.handleImportYAML)
	mux.HandleFunc("POST /api/workflows/{id}/execute", s.handleExecuteWorkflow)

	// Editing sessions.
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /api/sessions/{id}/steps", s.handleAddStep)
	mux.HandleFunc("PATCH /api/sessions/{id}/steps/{stepID}", s.handleUpdateStep)
	mux.HandleFunc("DELETE /api/sessions/{id}/steps/{stepID}", s.handleRemoveStep)
	mux.HandleFunc("POST /api/sessions/{id}/edges", s.handleConnect)
	mux.HandleFunc("DELETE /api/sessions/{id}/edges/{edgeID}", s.handleDisconnect)
	mux.HandleFunc("POST /api/sessions/{id}/validate", s.handleValidate)
	mux.HandleFunc("POST /api/sessions/{id}/save", s.handleSave)

	return mux
}
