package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/pkg/schema"
)

// handleDefine validates a definition and persists it. Invalid definitions
// are rejected with the full issue list; nothing partial is ever saved.
func (s *LoomServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}

	def, defErr := parseDefinition(req)
	if defErr != nil {
		return mcp.NewToolResultError(defErr.Error()), nil
	}
	def.Name = name
	def.Description = req.GetString("description", def.Description)

	session, _, importErr := s.svc.ImportDefinition(ctx, def)
	if importErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("definition rejected: %v", importErr)), nil
	}
	defer s.svc.CloseSession(session.ID)

	saved, result, saveErr := s.svc.Save(ctx, session)
	if saveErr != nil {
		if result != nil && !result.Valid() {
			return marshalResult(map[string]any{
				"valid":  false,
				"issues": result,
			})
		}
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", saveErr)), nil
	}

	return marshalResult(map[string]any{
		"valid":       true,
		"workflow_id": saved.ID,
		"steps":       len(saved.Steps),
		"warnings":    result.Warnings,
	})
}

// handleValidate dry-runs the validation pipeline over a definition.
func (s *LoomServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, defErr := parseDefinition(req)
	if defErr != nil {
		return mcp.NewToolResultError(defErr.Error()), nil
	}

	result := s.svc.ValidateDefinition(def)
	return marshalResult(map[string]any{
		"valid":  result.Valid(),
		"issues": result,
	})
}

// handleGet fetches a saved workflow definition.
func (s *LoomServer) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	def, getErr := s.svc.GetWorkflow(ctx, workflowID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", getErr)), nil
	}
	return marshalResult(def)
}

// handleQuery lists saved workflows with optional filters.
func (s *LoomServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := mcp.ParseStringMap(req, "filter", nil)

	wf := store.WorkflowFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if name, ok := filter["name"].(string); ok {
		wf.Name = name
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			wf.Since = &t
		}
	}

	workflows, err := s.svc.ListWorkflows(ctx, wf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"workflows": workflows})
}

// handleDelete removes a saved workflow definition.
func (s *LoomServer) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	if delErr := s.svc.DeleteWorkflow(ctx, workflowID); delErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", delErr)), nil
	}
	return marshalResult(map[string]any{
		"ok":          true,
		"workflow_id": workflowID,
	})
}

// handleExecute hands a saved workflow to the execution engine.
func (s *LoomServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	input := mcp.ParseStringMap(req, "input", nil)

	status, runErr := s.svc.Execute(ctx, workflowID, input)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execution failed: %v", runErr)), nil
	}
	return marshalResult(status)
}

// --- Helpers ---

// parseDefinition extracts the "definition" object argument and decodes it
// into a WorkflowDefinition through its canonical JSON shape.
func parseDefinition(req mcp.CallToolRequest) (*schema.WorkflowDefinition, error) {
	raw := mcp.ParseStringMap(req, "definition", nil)
	if raw == nil {
		return nil, fmt.Errorf("definition is required")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	return &def, nil
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	switch v := filter[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return defaultVal
}

// marshalResult converts a value to a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
