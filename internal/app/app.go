// Package app builds the service graph shared by the api, worker and mcp
// binaries from one Config. Optional backends that are not configured, or
// fail to start, leave their features unavailable instead of failing the
// process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/your-org/recall/internal/api/handlers"
	"github.com/your-org/recall/internal/config"
	"github.com/your-org/recall/internal/highlights"
	"github.com/your-org/recall/internal/llm"
	"github.com/your-org/recall/internal/memory"
	"github.com/your-org/recall/internal/pipeline"
	"github.com/your-org/recall/internal/queue"
	"github.com/your-org/recall/internal/registry"
	"github.com/your-org/recall/internal/search"
	"github.com/your-org/recall/internal/service"
	"github.com/your-org/recall/internal/storage"
	"github.com/your-org/recall/internal/vision"
)

type Options struct {
	// Queue connects the NATS producer used by async submission and workers.
	Queue bool
	// Vision loads the ONNX face models.
	Vision bool
}

type App struct {
	Config   *config.Config
	Service  *service.Service
	Badger   *storage.BadgerStore
	Postgres *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer

	closers []func()
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases everything Build opened, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Pipeline.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	kv, err := storage.NewBadgerStore(cfg.Badger)
	if err != nil {
		return nil, err
	}
	a.Badger = kv
	a.onClose(func() { _ = kv.Close() })

	regStore, err := a.registryStore(ctx)
	if err != nil {
		return nil, err
	}
	reg := registry.New(regStore, cfg.Registry.EmbeddingDim)
	mem := memory.NewStore(kv, reg)

	d := service.Deps{
		Registry: reg,
		Memory:   mem,
		Search:   search.NewEngine(mem, cfg.Server.PublicURL),
	}

	if cfg.MinIO.Endpoint != "" {
		if err := a.connectMinIO(ctx); err != nil {
			slog.Warn("object storage unavailable, face images and async uploads disabled", "error", err)
		} else {
			d.Objects = a.MinIO
		}
	}

	if opts.Queue && cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, async processing disabled", "error", err)
		} else {
			a.Producer = producer
			a.onClose(producer.Close)
			if err := producer.EnsureStreams(ctx); err != nil {
				slog.Warn("ensure nats streams", "error", err)
			}
			d.Jobs = producer
		}
	}

	var (
		structurer pipeline.Structurer
		extractor  highlights.Extractor
	)
	if gem, err := llm.NewGemini(ctx, cfg.LLM); err != nil {
		slog.Warn("gemini disabled, no dialogue structuring, summaries or highlights", "error", err)
	} else {
		structurer = gem
		extractor = gem
		d.Summarizer = gem
		d.Enricher = gem
	}

	var transcriber pipeline.Transcriber
	if w, err := llm.NewWhisperTranscriber(cfg.LLM, cfg.Pipeline.TempDir); err != nil {
		slog.Warn("transcription disabled", "error", err)
	} else {
		transcriber = w
	}

	var detector pipeline.FaceDetector
	if opts.Vision {
		if an, err := a.loadVision(); err != nil {
			slog.Warn("face analysis disabled", "error", err)
		} else {
			detector = an
			d.Analyzer = an
		}
	}

	d.Highlights = highlights.NewManager(kv, extractor, highlights.Options{
		MaxTranscriptLines: cfg.Highlights.MaxTranscriptLines,
		MaxReturned:        cfg.Highlights.MaxReturned,
		ExpiryGrace:        cfg.Highlights.ExpiryGrace,
	})
	d.Processor = pipeline.NewOrchestrator(transcriber, structurer, detector, reg, pipeline.Config{
		LiveMatchThreshold: cfg.Registry.LiveMatchThreshold,
		RendezvousTimeout:  cfg.Pipeline.RendezvousTimeout,
	})

	a.Service = service.New(d, service.Options{
		IdentifyThreshold: cfg.Registry.IdentifyThreshold,
		SummaryTail:       cfg.Search.SummaryTail,
		ExcerptWindow:     cfg.Search.ExcerptWindow,
		PublicURL:         cfg.Server.PublicURL,
		TempDir:           cfg.Pipeline.TempDir,
	})
	ok = true
	return a, nil
}

func (a *App) registryStore(ctx context.Context) (registry.Store, error) {
	switch a.Config.Registry.Backend {
	case config.RegistryBackendPostgres:
		db, err := storage.NewPostgresStore(a.Config.Database)
		if err != nil {
			return nil, err
		}
		a.Postgres = db
		a.onClose(db.Close)
		if err := db.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		slog.Info("face registry on postgres", "host", a.Config.Database.Host)
		return db, nil
	case config.RegistryBackendBadger:
		slog.Info("face registry on badger")
		return a.Badger, nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", a.Config.Registry.Backend)
	}
}

func (a *App) connectMinIO(ctx context.Context) error {
	store, err := storage.NewMinIOStore(a.Config.MinIO)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}
	a.MinIO = store
	return nil
}

func (a *App) loadVision() (*vision.Analyzer, error) {
	if a.Config.Vision.ModelsDir == "" {
		return nil, errors.New("vision.models_dir is not set")
	}
	teardown, err := vision.InitRuntime("")
	if err != nil {
		return nil, err
	}

	var crops vision.CropStore
	if a.MinIO != nil {
		crops = a.MinIO
	}
	an, err := vision.NewAnalyzer(a.Config.Vision, crops)
	if err != nil {
		teardown()
		return nil, err
	}
	a.onClose(teardown)
	a.onClose(an.Close)
	return an, nil
}

// Checks are the readiness probes of the backends Build connected.
func (a *App) Checks() map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"badger": a.Badger.Ping,
	}
	if a.Postgres != nil {
		checks["postgres"] = a.Postgres.Ping
	}
	if a.MinIO != nil {
		checks["minio"] = a.MinIO.Ping
	}
	if a.Producer != nil {
		checks["nats"] = func(context.Context) error { return a.Producer.Ping() }
	}
	return checks
}
