package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/your-org/recall/internal/app"
	"github.com/your-org/recall/internal/config"
	"github.com/your-org/recall/internal/mcpserver"
	"github.com/your-org/recall/internal/observability"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	withVision := flag.Bool("vision", true, "load face models for process_video")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol.
	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	a, err := app.Build(context.Background(), cfg, app.Options{Vision: *withVision})
	if err != nil {
		slog.Error("build service", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	slog.Info("recall MCP server starting on stdio", "version", version)
	if err := mcpserver.Serve(mcpserver.New(a.Service, version)); err != nil {
		slog.Error("mcp server error", "error", err)
		a.Close()
		os.Exit(1)
	}
}
