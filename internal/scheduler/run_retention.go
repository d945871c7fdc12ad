package scheduler

import (
	"context"
	"time"

	"segmentation_backend/platform/logger"
)

const (
	defaultRetentionInterval = time.Hour
	defaultRunRetention      = 90 * 24 * time.Hour
)

// RunPruner deletes finished batch runs.
type RunPruner interface {
	DeleteFinishedRunsBefore(ctx context.Context, before time.Time) (int64, error)
}

// RunRetention periodically removes old finished sync runs.
type RunRetention struct {
	repo      RunPruner
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewRunRetention(repo RunPruner, log *logger.Logger, interval, retention time.Duration) *RunRetention {
	if interval <= 0 {
		interval = defaultRetentionInterval
	}
	if retention <= 0 {
		retention = defaultRunRetention
	}

	return &RunRetention{
		repo:      repo,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (c *RunRetention) Run(ctx context.Context) {
	if c == nil || c.repo == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *RunRetention) cleanup(ctx context.Context) {
	before := c.now().Add(-c.retention)

	deleted, err := c.repo.DeleteFinishedRunsBefore(ctx, before)
	if err != nil {
		c.log.Warn("sync run retention failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("sync run retention deleted finished runs", "deleted", deleted, "before", before)
	}
}
