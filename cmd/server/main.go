package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/david/tender-scout/internal/api"
	"github.com/david/tender-scout/internal/broker"
	"github.com/david/tender-scout/internal/config"
	"github.com/david/tender-scout/internal/db"
	"github.com/david/tender-scout/internal/ingest"
	"github.com/david/tender-scout/internal/logger"
	"github.com/david/tender-scout/internal/metrics"
	"github.com/david/tender-scout/internal/scoring"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.Init(cfg.Logging.Level, cfg.Logging.Environment, "tender-scout")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal("database_connect_failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatal("migration_failed", zap.Error(err))
	}
	store := db.NewStore(pool)

	m := metrics.New("tender")
	reporters := ingest.MultiReporter{ingest.LogReporter{}, m}
	if cfg.Broker.URI != "" {
		pub, err := broker.NewPublisher(cfg.Broker.URI, cfg.Broker.Queue)
		if err != nil {
			log.Warn("progress_publishing_disabled", zap.Error(err))
		} else {
			defer pub.Close()
			reporters = append(reporters, pub)
			log.Info("progress_publishing_enabled", zap.String("queue", cfg.Broker.Queue))
		}
	}

	scorer := scoring.NewEngine(cfg.Scoring.ProjectTypeKeywords)
	importer := ingest.NewImporter(store, store, store, ingest.Options{
		HeaderScanRows:       cfg.Import.HeaderScanRows,
		ProgressEvery:        cfg.Import.ProgressEvery,
		DeadlineFallbackDays: cfg.Import.DeadlineFallbackDays,
		Scorer:               scorer,
		Reporter:             reporters,
	})
	fetcher := ingest.NewRemoteFetcher(ingest.FetchConfig{
		Timeout:      time.Duration(cfg.Import.Fetch.TimeoutSeconds) * time.Second,
		RateLimitRPS: cfg.Import.Fetch.RateLimitRPS,
		MaxBytes:     int64(cfg.Import.Fetch.MaxBytesMB) << 20,
		MaxRetries:   2,
	})

	srv := api.NewServer(api.Options{
		Store:          store,
		Importer:       importer,
		Scorer:         scorer,
		Fetcher:        fetcher,
		Metrics:        m,
		Logger:         log,
		MaxUploadBytes: cfg.Import.MaxUploadBytes(),
		CORSOrigins:    cfg.Server.CORSOrigins,
	})

	go func() {
		log.Info("server_starting", zap.String("port", cfg.Server.Port))
		if err := srv.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_failed", zap.Error(err))
	}
}
