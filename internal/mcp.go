package internal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/fehu/internal/mcpserver"
)

// RunMCP serves the MCP stdio transport. Stdout carries the protocol, so the
// logger writes to stderr.
func RunMCP(opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	eng, err := buildEngine(app, logger, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(eng.svc).ServeStdio()
}
