package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/keyword-intel/internal/adapters/mcp"
	"github.com/kirillkom/keyword-intel/internal/bootstrap"
	"github.com/kirillkom/keyword-intel/internal/config"
	"github.com/kirillkom/keyword-intel/internal/observability/logging"
)

const serviceName = "mcp"

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol.
	logger := logging.New(os.Stderr, serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service: serviceName,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := mcpadapter.NewServer(mcpadapter.Config{
		Name:    cfg.MCPServerName,
		Version: cfg.MCPServerVersion,
	}, app.Serp, app.Volume, logger)

	logger.Info("mcp_serving_stdio")
	if err := server.ServeStdio(); err != nil {
		logger.Error("mcp_server_failed", "error", err)
	}
}
