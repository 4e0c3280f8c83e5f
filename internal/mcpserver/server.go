// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the project tracker as tools over stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/taskgraph/internal/graph"
	"github.com/starford/taskgraph/internal/models"
	"github.com/starford/taskgraph/internal/tracker"
)

// FormatURI is the resource describing the functions document.
const FormatURI = "taskgraph://functions-format"

// Server wraps the MCP server with tracker tools.
type Server struct {
	mcp *server.MCPServer
	svc *tracker.Service
}

// New creates a new MCP server with all tracker tools registered.
func New(svc *tracker.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"taskgraph",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("project_status",
		mcp.WithDescription("Progress counts per status, completion rate and the functions ready to implement."),
	), s.projectStatus)

	s.mcp.AddTool(mcp.NewTool("current_task_context",
		mcp.WithDescription("The function to work on next (an in-progress one first, otherwise the first ready one) "+
			"with its transitive dependencies and the data structures they use."),
	), s.currentTaskContext)

	s.mcp.AddTool(mcp.NewTool("architecture_overview",
		mcp.WithDescription("Project overview, technical stack, structure and all data structures."),
	), s.architectureOverview)

	s.mcp.AddTool(mcp.NewTool("task_status_update",
		mcp.WithDescription("Change the status of a function. Allowed moves: pending -> in_progress|blocked, "+
			"in_progress -> completed|pending|blocked, completed -> blocked, blocked -> pending|blocked. "+
			"Completed functions are reopened only by replace_graph when their definition changes."),
		mcp.WithString("function_id", mcp.Required(), mcp.Description("Function id (e.g. F3)")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status"),
			mcp.Enum(string(models.StatusPending), string(models.StatusInProgress),
				string(models.StatusCompleted), string(models.StatusBlocked))),
		mcp.WithString("notes", mcp.Description("Optional notes; empty keeps the previous notes")),
	), s.taskStatusUpdate)

	s.mcp.AddTool(mcp.NewTool("function_with_deps",
		mcp.WithDescription("A function with its transitive dependencies in implementation order and the data structures they use."),
		mcp.WithString("function_id", mcp.Required(), mcp.Description("Function id (e.g. F3)")),
	), s.functionWithDeps)

	s.mcp.AddTool(mcp.NewTool("implementation_order",
		mcp.WithDescription("All function ids in an order where every function follows its dependencies."),
	), s.implementationOrder)

	s.mcp.AddTool(mcp.NewTool("validate_graph",
		mcp.WithDescription("Report dependency cycles and references to missing functions or data structures."),
	), s.validateGraph)

	s.mcp.AddTool(mcp.NewTool("replace_graph",
		mcp.WithDescription("Replace the plan with a revised one. Statuses of unchanged functions are kept; "+
			"completed functions whose definition changed are reopened. Read "+FormatURI+" first."),
		mcp.WithString("graph", mcp.Required(),
			mcp.Description(`JSON object {"functions": [...], "data_structures": [...]}; omit data_structures to keep the current ones`)),
	), s.replaceGraph)

	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Functions Document Format",
			mcp.WithResourceDescription("Contract for functions.json and architecture.json."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult reports err to the model. Invalid graphs list the offending
// ids so the plan can be fixed.
func errorResult(err error) (*mcp.CallToolResult, error) {
	var invalid *graph.InvalidGraphError
	if errors.As(err, &invalid) {
		out, _ := json.Marshal(invalid)
		return mcp.NewToolResultError(fmt.Sprintf("invalid graph: %s", out)), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func (s *Server) projectStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.ProjectStatus(ctx)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(st)
}

func (s *Server) currentTaskContext(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tc, err := s.svc.CurrentTaskContext(ctx)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(tc)
}

func (s *Server) architectureOverview(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.ArchitectureOverview(ctx))
}

func (s *Server) taskStatusUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("function_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	up, err := s.svc.UpdateTaskStatus(ctx, id, status, req.GetString("notes", ""))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(up)
}

func (s *Server) functionWithDeps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("function_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fc, err := s.svc.FunctionWithDeps(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(fc)
}

func (s *Server) implementationOrder(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	order, err := s.svc.Order(ctx)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(order)
}

func (s *Server) validateGraph(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Validate(ctx))
}

func (s *Server) replaceGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("graph")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var g models.Graph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("graph is not valid JSON: %v", err)), nil
	}
	im, err := s.svc.ReplaceGraph(ctx, models.Graph{Functions: g.Functions, DataStructures: g.DataStructures})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(im)
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     FunctionsFormatContract,
		},
	}, nil
}
