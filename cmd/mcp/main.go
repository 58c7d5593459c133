// Command mcp serves the style review engine as MCP tools over stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/csr-style-review/internal/bootstrap"
	"github.com/kirillkom/csr-style-review/internal/config"
	"github.com/kirillkom/csr-style-review/internal/observability/logging"
)

const (
	serviceName    = "csr-style-review-mcp"
	serviceVersion = "0.1.0"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol.
	slog.SetDefault(logging.New(os.Stderr, serviceName, cfg.LogLevel, cfg.LogFormat))

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close(ctx)

	s := server.NewMCPServer(serviceName, serviceVersion, server.WithToolCapabilities(false))
	registerTools(s, newTools(app.Service))

	if err := server.ServeStdio(s); err != nil {
		slog.Error("mcp_server_failed", "error", err.Error())
	}
}
