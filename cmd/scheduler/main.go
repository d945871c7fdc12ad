package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"segmentation_backend/internal/adapters/storage"
	"segmentation_backend/internal/scheduler"
	"segmentation_backend/internal/segmentation"
	"segmentation_backend/platform/config"
	"segmentation_backend/platform/db"
	"segmentation_backend/platform/logger"
	"segmentation_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "cron", cfg.GetSyncCron())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	var storageSvc storage.StorageService
	if cfg.IsMinIOEnabled() {
		minioSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure sync-reports bucket", 5, 2*time.Second, func() error {
			return minioSvc.EnsureBucketExists(ctx, cfg.GetMinioBucketSyncReports())
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinioBucketSyncReports())
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		storageSvc = minioSvc
	}

	// Batch runs from any process share one Redis lock.
	syncLock, err := scheduler.NewRedisLock(cfg, log)
	if err != nil {
		log.Error("failed to initialize sync lock", "error", err)
		panic("failed to initialize sync lock: " + err.Error())
	}
	defer func() { _ = syncLock.Close() }()

	// Worker-side sync wiring (no HTTP handlers required).
	segmentationModule := segmentation.NewModule(pool, cfg, storageSvc, cfg.GetMinioBucketSyncReports(), syncLock, validator.New(), log)

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize sync schedule", "error", err)
		panic("failed to initialize sync schedule: " + err.Error())
	}
	go periodic.Run(ctx)

	retention := scheduler.NewRunRetention(segmentationModule.Repository(), log, cfg.GetRetentionInterval(), cfg.GetSyncRunRetention())
	go retention.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, segmentationModule.Orchestrator(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
