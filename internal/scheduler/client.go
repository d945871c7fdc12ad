package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"segmentation_backend/internal/segmentation/service"
	"segmentation_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	// manualSyncTaskID keeps at most one manual sync queued or running.
	manualSyncTaskID = "segmentation-sync-manual"

	// defaultTaskTimeout bounds a sync task when no lock TTL is configured.
	defaultTaskTimeout = time.Hour
)

type Client struct {
	client  *asynq.Client
	queue   string
	timeout time.Duration
}

// Compile-time check that Client can queue manual syncs.
var _ service.SyncEnqueuer = (*Client)(nil)

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	timeout := cfg.GetSyncLockTTL()
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}

	return &Client{
		client:  asynq.NewClient(opt),
		queue:   queueName(cfg),
		timeout: timeout,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueSync queues one manual batch run. A manual sync that is still queued
// or running reports service.ErrSyncInProgress.
func (c *Client) EnqueueSync(ctx context.Context, trigger, requestedBy string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("scheduler client not configured")
	}

	task, err := NewSegmentationSyncTask(SegmentationSyncPayload{
		Trigger:     trigger,
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(manualSyncTaskID),
		asynq.MaxRetry(0),
		asynq.Timeout(c.timeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return "", service.ErrSyncInProgress
		}
		return "", err
	}
	return info.ID, nil
}

func queueName(cfg config.SchedulerConfig) string {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	return queue
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
