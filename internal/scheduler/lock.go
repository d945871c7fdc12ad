package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"segmentation_backend/internal/segmentation/service"
	"segmentation_backend/platform/config"
	"segmentation_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const (
	syncLockKey        = "segmentation:sync:lock"
	defaultSyncLockTTL = 6 * time.Hour
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock keeps batch runs single-flight across processes.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    *logger.Logger
}

// Compile-time check that RedisLock guards batch runs.
var _ service.RunLock = (*RedisLock)(nil)

func NewRedisLock(cfg config.SchedulerConfig, log *logger.Logger) (*RedisLock, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if cfg.GetRedisTLSInsecure() {
		asynqOpt, err := redisClientOpt(redisURL, true)
		if err != nil {
			return nil, err
		}
		opt.TLSConfig = asynqOpt.TLSConfig
	}

	ttl := cfg.GetSyncLockTTL()
	if ttl <= 0 {
		ttl = defaultSyncLockTTL
	}

	return &RedisLock{
		client: redis.NewClient(opt),
		key:    syncLockKey,
		ttl:    ttl,
		log:    log,
	}, nil
}

// Acquire takes the lock when it is free. The lock expires after the TTL so
// a crashed holder cannot block syncs forever.
func (l *RedisLock) Acquire(ctx context.Context) (func(context.Context), bool, error) {
	token, err := newLockToken()
	if err != nil {
		return nil, false, err
	}

	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func(ctx context.Context) {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			l.log.Warn("failed to release sync lock", "key", l.key, "error", err)
		}
	}
	return release, true, nil
}

func (l *RedisLock) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

func newLockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
