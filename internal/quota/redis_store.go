package quota

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/resaleops/autopilot/internal/models"
)

// RedisConfig defines connection parameters for the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
}

// RedisStore counts revisions with INCR on a key scoped to
// (channel, user, window), so the increment-and-check is a single round trip
// and shared by every process.
type RedisStore struct {
	client *redis.Client
	window Window
	logger *zap.Logger
}

func NewRedisStore(cfg RedisConfig, window Window, logger *zap.Logger) *RedisStore {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		window: window,
		logger: logger.Named("quota.redis"),
	}
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) key(userID, channel string) string {
	return fmt.Sprintf("quota:%s:%s:%s", channel, userID, s.window.Key())
}

func (s *RedisStore) Check(ctx context.Context, userID, channel string) (*models.QuotaStatus, error) {
	count, err := s.client.Get(ctx, s.key(userID, channel)).Int()
	if err == redis.Nil {
		count = 0
	} else if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	return s.window.status(count), nil
}

func (s *RedisStore) Increment(ctx context.Context, userID, channel string) (int, error) {
	key := s.key(userID, channel)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("quota increment: %w", err)
	}
	if count == 1 {
		// First write of the window; expire the key a little after the window
		// closes so a clock-skewed reader never sees a stale zero.
		if err := s.client.Expire(ctx, key, s.window.TTL()+time.Hour).Err(); err != nil {
			s.logger.Warn("failed to set quota key expiry", zap.String("key", key), zap.Error(err))
		}
	}
	return int(count), nil
}

func (s *RedisStore) AcquireRunLock(ctx context.Context, userID, runType string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("runlock:%s:%s", userID, runType)
	ok, err := s.client.SetNX(ctx, key, time.Now().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) ReleaseRunLock(ctx context.Context, userID, runType string) error {
	key := fmt.Sprintf("runlock:%s:%s", userID, runType)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
