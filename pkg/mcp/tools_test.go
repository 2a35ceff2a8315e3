package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/codec"
	"github.com/loomworks/loom/internal/composer"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/validation"
)

func newTestServer(t *testing.T) *LoomServer {
	t.Helper()
	wv, err := validation.NewWorkflowValidator()
	require.NoError(t, err)
	svc := composer.NewService(composer.Deps{
		Store: store.NewMemoryStore(),
		Codec: codec.New(wv),
		IDs:   graph.NewSequenceGenerator(),
	})
	return NewLoomServer(LoomServerDeps{Service: svc})
}

func newRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, result.IsError, "tool returned error: %+v", result.Content)
	require.NotEmpty(t, result.Content)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(mcp.GetTextFromContent(result.Content[0])), &out))
	return out
}

func validDefinition() map[string]any {
	return map[string]any{
		"steps": map[string]any{
			"fetch": map[string]any{
				"name":           "fetch",
				"type":           "browser_action",
				"browser_action": "navigate",
				"url":            "https://example.com",
			},
			"report": map[string]any{
				"name":       "report",
				"type":       "agent_task",
				"agent":      "writer",
				"depends_on": []string{"fetch"},
			},
		},
	}
}

// --- loom.define ---

func TestDefineTool_SavesValidDefinition(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleDefine(context.Background(), newRequest("loom.define", map[string]any{
		"name":       "scrape and report",
		"definition": validDefinition(),
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, float64(2), out["steps"])

	workflowID, _ := out["workflow_id"].(string)
	require.NotEmpty(t, workflowID)

	_, err = s.svc.GetWorkflow(context.Background(), workflowID)
	assert.NoError(t, err)
}

func TestDefineTool_RejectsInvalidDefinition(t *testing.T) {
	s := newTestServer(t)

	def := validDefinition()
	def["steps"].(map[string]any)["fetch"].(map[string]any)["depends_on"] = []string{"report"} // cycle

	result, err := s.handleDefine(context.Background(), newRequest("loom.define", map[string]any{
		"name":       "circular",
		"definition": def,
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, false, out["valid"])
	assert.NotNil(t, out["issues"])

	// Nothing saved.
	defs, err := s.svc.ListWorkflows(context.Background(), store.WorkflowFilter{})
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestDefineTool_MissingArguments(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleDefine(context.Background(), newRequest("loom.define", map[string]any{
		"definition": validDefinition(),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleDefine(context.Background(), newRequest("loom.define", map[string]any{
		"name": "no definition",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- loom.validate ---

func TestValidateTool_ReportsIssuesWithoutSaving(t *testing.T) {
	s := newTestServer(t)

	def := validDefinition()
	def["id"] = "wf-x"
	def["name"] = "check me"
	def["steps"].(map[string]any)["report"].(map[string]any)["depends_on"] = []string{"ghost"}

	result, err := s.handleValidate(context.Background(), newRequest("loom.validate", map[string]any{
		"definition": def,
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, false, out["valid"])

	defs, err := s.svc.ListWorkflows(context.Background(), store.WorkflowFilter{})
	require.NoError(t, err)
	assert.Empty(t, defs)
}

// --- loom.get / loom.query / loom.delete ---

func TestGetQueryDeleteTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	defineResult, err := s.handleDefine(ctx, newRequest("loom.define", map[string]any{
		"name":       "persisted",
		"definition": validDefinition(),
	}))
	require.NoError(t, err)
	workflowID := resultJSON(t, defineResult)["workflow_id"].(string)

	getResult, err := s.handleGet(ctx, newRequest("loom.get", map[string]any{
		"workflow_id": workflowID,
	}))
	require.NoError(t, err)
	got := resultJSON(t, getResult)
	assert.Equal(t, "persisted", got["name"])

	queryResult, err := s.handleQuery(ctx, newRequest("loom.query", map[string]any{
		"filter": map[string]any{"name": "persist"},
	}))
	require.NoError(t, err)
	listed := resultJSON(t, queryResult)["workflows"].([]any)
	assert.Len(t, listed, 1)

	deleteResult, err := s.handleDelete(ctx, newRequest("loom.delete", map[string]any{
		"workflow_id": workflowID,
	}))
	require.NoError(t, err)
	assert.Equal(t, true, resultJSON(t, deleteResult)["ok"])

	getResult, err = s.handleGet(ctx, newRequest("loom.get", map[string]any{
		"workflow_id": workflowID,
	}))
	require.NoError(t, err)
	assert.True(t, getResult.IsError)
}

// --- loom.execute ---

func TestExecuteTool_NoEngineConfigured(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleExecute(context.Background(), newRequest("loom.execute", map[string]any{
		"workflow_id": "wf-any",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Registration ---

func TestNewLoomServer_RegistersTools(t *testing.T) {
	s := newTestServer(t)
	require.NotNil(t, s.MCPServer())
	assert.Len(t, s.tools(), 6)
}
