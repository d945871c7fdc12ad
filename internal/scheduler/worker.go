package scheduler

import (
	"context"
	"errors"
	"fmt"

	"segmentation_backend/internal/segmentation/service"
	"segmentation_backend/platform/config"
	"segmentation_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// SyncRunner executes one batch segment sync.
type SyncRunner interface {
	RunTriggered(ctx context.Context, trigger string) error
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner SyncRunner
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner SyncRunner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 2
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		runner: runner,
		log:    log,
	}

	mux.HandleFunc(TaskSegmentationSync, w.handleSegmentationSync)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleSegmentationSync(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSegmentationSyncPayload(task)
	if err != nil {
		return fmt.Errorf("parse sync payload: %v: %w", err, asynq.SkipRetry)
	}

	trigger := payload.Trigger
	if trigger == "" {
		trigger = service.TriggerScheduled
	}

	err = w.runner.RunTriggered(ctx, trigger)
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrSyncInProgress) {
		w.log.Info("segment sync task skipped, run already in progress", "trigger", trigger, "requestedBy", payload.RequestedBy)
		return nil
	}

	// A failed run is reported and retried by the next schedule, not by asynq.
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}
