package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/recall/internal/api"
	"github.com/your-org/recall/internal/api/ws"
	"github.com/your-org/recall/internal/app"
	"github.com/your-org/recall/internal/config"
	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
	"github.com/your-org/recall/internal/queue"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting recall API service", "port", cfg.Server.Port, "registry", cfg.Registry.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, app.Options{Queue: true, Vision: true})
	if err != nil {
		slog.Error("build service", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// WebSocket hub for async job results
	hub := ws.NewHub()
	go hub.Run(ctx)

	if a.Producer != nil {
		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Warn("create result consumer", "error", err)
		} else {
			defer consumer.Close()
			err = consumer.ConsumeResults(ctx, "api-results", func(ctx context.Context, res models.JobResult) error {
				hub.BroadcastResult(res)
				return nil
			})
			if err != nil {
				slog.Warn("start result consumer", "error", err)
			}
		}
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		Service:        a.Service,
		Hub:            hub,
		Checks:         a.Checks(),
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	})

	// Synchronous processing holds the request for the whole pipeline, so
	// the write timeout has to cover the rendezvous wait.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: cfg.Pipeline.RendezvousTimeout + 5*time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
