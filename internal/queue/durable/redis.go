// Package durable provides an optional Redis-backed duplicate-detection
// store for the work queue. Per spec, sms_id dedup is process-lifetime
// and in-memory by default (internal/queue's own inflight map); this
// package exists only for operators who set QUEUE_DURABLE_REDIS_ADDR and
// want dedup to survive a process restart. Grounded on the connection
// setup (ParseURL-equivalent option tuning, startup Ping with retry,
// graceful Close) of fenilsonani-email-server's internal/queue/redis.go,
// trimmed from a full persistent message queue down to a single SETNX-
// with-TTL dedup check.
package durable

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
)

// Store is a Redis-backed duplicate check for sms_id, keyed with a TTL
// so the set self-prunes without an explicit sweep.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Config configures a Store.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// New connects to Redis and verifies the connection with a bounded Ping,
// the same startup-retry shape as fenilsonani's NewRedisQueue.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "sms-bridge"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        10,
		MinIdleConns:    2,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := client.Ping(pingCtx).Err(); err == nil {
			lastErr = nil
			break
		} else {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
		}
	}
	if lastErr != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(lastErr, apperrors.Unavailable, "failed to connect to durable dedup store")
	}

	return &Store{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (s *Store) key(smsID string) string {
	return s.prefix + ":seen:" + smsID
}

// MarkIfNew atomically records smsID as seen; returns true if it was not
// already present (i.e. this call is the one that claims it).
func (s *Store) MarkIfNew(ctx context.Context, smsID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(smsID), time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.Unavailable, "durable dedup check failed")
	}
	return ok, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
