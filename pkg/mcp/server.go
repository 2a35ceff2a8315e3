// Package mcp exposes the workflow composer to agents over the Model
// Context Protocol: defining, validating, querying, and executing
// workflow definitions as MCP tools.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/loomworks/loom/internal/composer"
)

// LoomServerDeps holds the dependencies for creating a LoomServer.
type LoomServerDeps struct {
	Service *composer.Service
	Logger  *slog.Logger
}

// LoomServer wraps an MCP server with composer-backed tool handlers.
type LoomServer struct {
	svc       *composer.Service
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewLoomServer creates a LoomServer with all 6 tools registered.
func NewLoomServer(deps LoomServerDeps) *LoomServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &LoomServer{
		svc:    deps.Service,
		logger: logger,
	}

	mcpSrv := server.NewMCPServer(
		"loom",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Loom is a workflow composition service. Use loom.define to validate and save a workflow definition, loom.validate to check one without saving, loom.get to fetch a saved workflow, loom.query to list workflows, loom.delete to remove one, and loom.execute to hand a saved workflow to the execution engine."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *LoomServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *LoomServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *LoomServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: deleteTool(), Handler: s.handleDelete},
		{Tool: executeTool(), Handler: s.handleExecute},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("loom.define",
		mcp.WithDescription("Validate a workflow definition and save it. The definition must pass all consistency checks (unique ids, unique output keys, resolvable references, no cycles) before it is persisted."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition object with a steps map")),
		mcp.WithString("description", mcp.Description("Workflow description")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("loom.validate",
		mcp.WithDescription("Run the full validation pipeline over a workflow definition without saving it. Returns every error and warning found."),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition object to check")),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("loom.get",
		mcp.WithDescription("Fetch a saved workflow definition by ID"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to fetch")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("loom.query",
		mcp.WithDescription("List saved workflows, newest first"),
		mcp.WithObject("filter", mcp.Description("Filter criteria (name, since, limit)")),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("loom.delete",
		mcp.WithDescription("Delete a saved workflow definition"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to delete")),
	)
}

func executeTool() mcp.Tool {
	return mcp.NewTool("loom.execute",
		mcp.WithDescription("Hand a saved workflow to the execution engine"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to execute")),
		mcp.WithObject("input", mcp.Description("Input parameters for the run")),
	)
}
