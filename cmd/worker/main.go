package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/mojiokoshi/transcriber/internal/config"
	"github.com/mojiokoshi/transcriber/internal/db"
	"github.com/mojiokoshi/transcriber/internal/logger"
	"github.com/mojiokoshi/transcriber/internal/metrics"
	"github.com/mojiokoshi/transcriber/internal/sentry"
	"github.com/mojiokoshi/transcriber/internal/services/gemini"
	"github.com/mojiokoshi/transcriber/internal/telemetry"
	"github.com/mojiokoshi/transcriber/internal/worker"
)

const concurrency = 4

func main() {
	defer sentry.Recover()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireCredential(); err != nil {
		log.Fatalf("Worker cannot start: %v", err)
	}

	// Initialize telemetry
	if cfg.OtelExporterOTLPEndpoint != "" {
		shutdown, err := telemetry.InitTelemetry(ctx, cfg.ServiceName+"-worker", cfg.ServiceVersion, cfg.Env, cfg.OtelExporterOTLPEndpoint, cfg.OTLPHeaders())
		if err != nil {
			slog.Warn("Failed to init telemetry", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	if err := sentry.Init(cfg.SentryDSN, cfg.Env, cfg.ServiceName+"-worker", cfg.ServiceVersion); err != nil {
		slog.Warn("Failed to init Sentry", "error", err)
	} else if cfg.SentryDSN != "" {
		defer sentry.Flush(2 * time.Second)
	}

	if err := metrics.Init(); err != nil {
		slog.Warn("Failed to init business metrics", "error", err)
	}

	slog.SetDefault(logger.New(cfg.Env))

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	workerMetrics, err := worker.NewWorkerMetrics()
	if err != nil {
		slog.Warn("Failed to init worker metrics", "error", err)
	}

	processor := worker.NewTranscriptionProcessor(db.NewJobStore(pool), func() worker.Transcriber {
		return gemini.NewOrchestrator(cfg, cfg.GeminiAPIKey)
	})

	srv, err := worker.NewServer(cfg.RedisURL, concurrency)
	if err != nil {
		log.Fatalf("Failed to create worker: %v", err)
	}
	scheduler, err := worker.NewScheduler(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	mux := worker.NewMux(processor, workerMetrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting worker", "concurrency", concurrency)
		return srv.Start(mux)
	})
	g.Go(func() error {
		return scheduler.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Worker failed", "error", err)
	}
}
