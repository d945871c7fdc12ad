package scheduler

import (
	"context"
	"fmt"
	"time"

	"segmentation_backend/internal/segmentation/service"
	"segmentation_backend/platform/config"
	"segmentation_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the scheduled batch sync on its cron expression.
type Periodic struct {
	scheduler *asynq.Scheduler
	cronSpec  string
	entryID   string
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	cronSpec := cfg.GetSyncCron()
	if cronSpec == "" {
		return nil, fmt.Errorf("sync cron not configured")
	}

	task, err := NewSegmentationSyncTask(SegmentationSyncPayload{Trigger: service.TriggerScheduled})
	if err != nil {
		return nil, err
	}

	uniqueTTL := cfg.GetSyncLockTTL()
	if uniqueTTL <= 0 {
		uniqueTTL = defaultTaskTimeout
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	entryID, err := scheduler.Register(cronSpec, task,
		asynq.Queue(queueName(cfg)),
		asynq.Unique(uniqueTTL),
		asynq.MaxRetry(0),
		asynq.Timeout(uniqueTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("register sync schedule %q: %w", cronSpec, err)
	}

	return &Periodic{
		scheduler: scheduler,
		cronSpec:  cronSpec,
		entryID:   entryID,
		log:       log,
	}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("sync schedule failed to start", "error", err)
		return
	}
	p.log.Info("sync schedule started", "cron", p.cronSpec, "entryId", p.entryID)

	<-ctx.Done()
	p.scheduler.Shutdown()
}
