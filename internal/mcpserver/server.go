// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Fehu tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/fehu/internal/api"
)

// Server wraps the MCP server with Fehu tools.
type Server struct {
	mcp *server.MCPServer
	svc *api.Service
}

// New creates a new MCP server with all Fehu tools registered.
func New(svc *api.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Fehu",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_catalog",
		mcp.WithDescription("Search the remote package catalog by free text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCatalog)

	s.mcp.AddTool(mcp.NewTool("package_status",
		mcp.WithDescription("Resolve install and update status for a package reference. "+
			"The identifier may carry a version constraint (e.g. Creator.Name.latest, "+
			"Creator.Name.min12, Creator.Name.8)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Package identifier")),
	), s.packageStatus)

	s.mcp.AddTool(mcp.NewTool("list_installed",
		mcp.WithDescription("List all packages in the local library."),
	), s.listInstalled)

	s.mcp.AddTool(mcp.NewTool("enqueue_downloads",
		mcp.WithDescription("Resolve identifiers through the catalog and enqueue them as one "+
			"download batch. Returns per-identifier outcomes and the batch id."),
		mcp.WithString("identifiers", mcp.Required(),
			mcp.Description("Comma-separated package identifiers")),
	), s.enqueueDownloads)

	s.mcp.AddTool(mcp.NewTool("download_status",
		mcp.WithDescription("Get the current state of one download task, or all tasks when id is empty."),
		mcp.WithString("id", mcp.Description("Canonical task id (optional)")),
	), s.downloadStatus)

	s.mcp.AddTool(mcp.NewTool("cancel_download",
		mcp.WithDescription("Cancel one download by canonical task id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Canonical task id")),
	), s.cancelDownload)

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

func (s *Server) searchCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.svc.SearchCatalog(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) packageStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(s.svc.Status(ctx, id), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listInstalled(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := s.svc.ListInstalled()
	if len(items) == 0 {
		return mcp.NewToolResultText("library is empty"), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) enqueueDownloads(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("identifiers")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		return mcp.NewToolResultError("no identifiers given"), nil
	}

	batchID, results := s.svc.EnqueueAll(ctx, ids)
	out, _ := json.MarshalIndent(map[string]any{
		"batch_id": batchID,
		"results":  results,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) downloadStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := ""
	if v, err := req.RequireString("id"); err == nil {
		id = v
	}

	if id == "" {
		out, _ := json.MarshalIndent(s.svc.Tasks(), "", "  ")
		return mcp.NewToolResultText(string(out)), nil
	}

	task, err := s.svc.Task(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(task, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) cancelDownload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.svc.Cancel(id)
	return mcp.NewToolResultText(fmt.Sprintf("cancellation requested: %s", id)), nil
}
