package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/loomworks/loom/internal/codec"
	"github.com/loomworks/loom/internal/composer"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/registry"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/pkg/schema"
)

// --- Views ---

type nodeView struct {
	ID          string                 `json:"id"`
	Step        *schema.StepDefinition `json:"step"`
	Position    graph.Position         `json:"position"`
	Unsupported bool                   `json:"unsupported,omitempty"`
	State       composer.StepState     `json:"state,omitempty"`
}

type sessionView struct {
	SessionID   string                   `json:"session_id"`
	WorkflowID  string                   `json:"workflow_id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Nodes       []nodeView               `json:"nodes"`
	Edges       []*graph.Edge            `json:"edges"`
	Issues      *schema.ValidationResult `json:"issues,omitempty"`
}

func (s *Server) sessionView(session *composer.Session, issues *schema.ValidationResult) sessionView {
	info := session.Info()
	g := session.Graph()

	nodes := make([]nodeView, 0, g.Len())
	for _, n := range g.Nodes() {
		nodes = append(nodes, nodeView{
			ID:          n.ID,
			Step:        n.Step,
			Position:    n.Position,
			Unsupported: n.Unsupported(),
			State:       session.StepState(n.ID),
		})
	}

	return sessionView{
		SessionID:   session.ID,
		WorkflowID:  info.ID,
		Name:        info.Name,
		Description: info.Description,
		Nodes:       nodes,
		Edges:       g.Edges(),
		Issues:      issues,
	}
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) *composer.Session {
	session := s.svc.Session(r.PathValue("id"))
	if session == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", r.PathValue("id")))
		return nil
	}
	return session
}

// --- Catalogs & registry ---

func (s *Server) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListEnvironments(r.Context()))
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListAgents(r.Context()))
}

func (s *Server) handleListStepKinds(w http.ResponseWriter, _ *http.Request) {
	type kindView struct {
		Kind   schema.StepKind      `json:"kind"`
		Label  string               `json:"label"`
		Fields []registry.FieldSpec `json:"fields"`
	}
	specs := registry.Specs()
	out := make([]kindView, 0, len(specs))
	for _, ks := range specs {
		out = append(out, kindView{Kind: ks.Kind, Label: ks.Label, Fields: ks.Fields})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Persisted workflows ---

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter := store.WorkflowFilter{Name: r.URL.Query().Get("name")}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	defs, err := s.svc.ListWorkflows(r.Context(), filter)
	if err != nil {
		writeLoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := s.svc.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		writeLoomError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportYAML(w http.ResponseWriter, r *http.Request) {
	def, err := s.svc.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLoomError(w, err)
		return
	}
	out, err := codec.ToYAML(def)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(out)
}

func (s *Server) handleImportYAML(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	def, err := codec.FromYAML(body)
	if err != nil {
		writeLoomError(w, err)
		return
	}
	session, result, err := s.svc.ImportDefinition(r.Context(), def)
	if err != nil {
		writeLoomError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionView(session, result))
}

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Input map[string]any `json:"input"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
	}
	status, err := s.svc.Execute(r.Context(), r.PathValue("id"), body.Input)
	if err != nil {
		writeLoomError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

// --- Sessions ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkflowID  string `json:"workflow_id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if body.WorkflowID != "" {
		session, result, err := s.svc.OpenSession(r.Context(), body.WorkflowID)
		if err != nil {
			writeLoomError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s.sessionView(session, result))
		return
	}

	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required for a new workflow")
		return
	}
	session := s.svc.CreateSession(body.Name, body.Description)
	writeJSON(w, http.StatusCreated, s.sessionView(session, nil))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(session, nil))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	s.svc.CloseSession(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddStep(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}

	var body struct {
		Kind     schema.StepKind `json:"kind"`
		Position graph.Position  `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	node, err := session.AddStep(body.Kind, body.Position)
	if err != nil {
		writeLoomError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nodeView{
		ID:       node.ID,
		Step:     node.Step,
		Position: node.Position,
		State:    session.StepState(node.ID),
	})
}

func (s *Server) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	stepID := r.PathValue("stepID")
	if err := session.UpdateConfig(stepID, patch); err != nil {
		writeLoomError(w, err)
		return
	}

	node := session.Graph().Node(stepID)
	writeJSON(w, http.StatusOK, nodeView{
		ID:       node.ID,
		Step:     node.Step,
		Position: node.Position,
		State:    session.StepState(node.ID),
	})
}

func (s *Server) handleRemoveStep(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	session.RemoveStep(r.PathValue("stepID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}

	var body struct {
		Source string `json:"source"`
		Target string `json:"target"`
		Branch string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	edge, err := session.Connect(body.Source, body.Target, body.Branch)
	if err != nil {
		writeLoomError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	session.Disconnect(r.PathValue("edgeID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Validate(session))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}

	def, result, err := s.svc.Save(r.Context(), session)
	if err != nil {
		// Validation failures carry the full issue list; surface it.
		if result != nil && !result.Valid() {
			writeJSON(w, http.StatusUnprocessableEntity, result)
			return
		}
		writeLoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow": def,
		"issues":   result,
	})
}
