package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/mojiokoshi/transcriber/internal/api"
	"github.com/mojiokoshi/transcriber/internal/cache"
	"github.com/mojiokoshi/transcriber/internal/config"
	"github.com/mojiokoshi/transcriber/internal/db"
	"github.com/mojiokoshi/transcriber/internal/logger"
	"github.com/mojiokoshi/transcriber/internal/metrics"
	"github.com/mojiokoshi/transcriber/internal/sentry"
	"github.com/mojiokoshi/transcriber/internal/services/gemini"
	"github.com/mojiokoshi/transcriber/internal/telemetry"
	"github.com/mojiokoshi/transcriber/internal/worker"
)

func main() {
	defer sentry.Recover()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize telemetry
	if cfg.OtelExporterOTLPEndpoint != "" {
		shutdown, err := telemetry.InitTelemetry(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.Env, cfg.OtelExporterOTLPEndpoint, cfg.OTLPHeaders())
		if err != nil {
			slog.Warn("Failed to init telemetry", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	if err := sentry.Init(cfg.SentryDSN, cfg.Env, cfg.ServiceName, cfg.ServiceVersion); err != nil {
		slog.Warn("Failed to init Sentry", "error", err)
	} else if cfg.SentryDSN != "" {
		defer sentry.Flush(2 * time.Second)
	}

	if err := metrics.Init(); err != nil {
		slog.Warn("Failed to init business metrics", "error", err)
	}

	slog.SetDefault(logger.New(cfg.Env))

	if cfg.GeminiAPIKey == "" {
		slog.Warn("No Gemini API key configured; the web form will ask for one")
	} else {
		slog.Info("Gemini API key resolved", "source", cfg.CredentialSource)
	}

	// Transcript store: Redis when configured, otherwise in-process
	var backend cache.Cache = cache.NewMemoryCache()
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCacheFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()
		backend = redisCache
	}
	transcripts := cache.NewTranscriptCache(backend, cfg.Transcription.ResultTTL)

	newTranscriber := func(apiKey string) worker.Transcriber {
		return gemini.NewOrchestrator(cfg, apiKey)
	}

	var (
		jobs  api.JobStore
		queue worker.Enqueuer
	)
	if cfg.AsyncEnabled() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}

		asynqClient, err := worker.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to create queue client: %v", err)
		}
		defer asynqClient.Close()

		jobs = db.NewJobStore(pool)
		queue = asynqClient
	}

	apiServer := api.NewServer(cfg, transcripts, newTranscriber, jobs, queue)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(apiServer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting server", "port", cfg.Port, "async", apiServer.AsyncEnabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server failed", "error", err)
	}
}
