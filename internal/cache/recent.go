package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raeburnlaw/caseguard/internal/audit"
	"github.com/raeburnlaw/caseguard/internal/config"
	"github.com/raeburnlaw/caseguard/internal/logger"
	"go.uber.org/zap"
)

const recentEventsKey = "caseguard:audit:recent"

// RecentEvents keeps a bounded ring of the latest sanitized audit
// events in Redis so dashboard clients can replay history on connect.
type RecentEvents struct {
	client *redis.Client
	cfg    config.CacheConfig
	logger *logger.Logger

	pushed  int64
	dropped int64
}

// NewRecentEvents connects to Redis and verifies the connection.
func NewRecentEvents(cfg config.CacheConfig, log *logger.Logger) (*RecentEvents, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Recent-events cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int64("capacity", cfg.RecentEvents),
		zap.Duration("ttl", cfg.TTL),
	)

	return &RecentEvents{client: client, cfg: cfg, logger: log}, nil
}

// Publish pushes one sanitized event onto the ring. It satisfies
// audit.Publisher and never blocks the flush path for long: failures
// are counted and logged, not returned.
func (c *RecentEvents) Publish(event audit.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		atomic.AddInt64(&c.dropped, 1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := c.client.Pipeline()
	pipe.LPush(ctx, recentEventsKey, payload)
	pipe.LTrim(ctx, recentEventsKey, 0, c.cfg.RecentEvents-1)
	pipe.Expire(ctx, recentEventsKey, c.cfg.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		atomic.AddInt64(&c.dropped, 1)
		c.logger.Warn("Failed to cache audit event", zap.Error(err))
		return
	}
	atomic.AddInt64(&c.pushed, 1)
}

// Recent returns up to limit of the latest cached events, newest first.
func (c *RecentEvents) Recent(ctx context.Context, limit int64) ([]audit.Event, error) {
	if limit <= 0 || limit > c.cfg.RecentEvents {
		limit = c.cfg.RecentEvents
	}

	raw, err := c.client.LRange(ctx, recentEventsKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}

	events := make([]audit.Event, 0, len(raw))
	for _, item := range raw {
		var event audit.Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Stats returns push/drop counters.
func (c *RecentEvents) Stats() (pushed, dropped int64) {
	return atomic.LoadInt64(&c.pushed), atomic.LoadInt64(&c.dropped)
}

// Close closes the Redis client.
func (c *RecentEvents) Close() error {
	return c.client.Close()
}

// maskRedisURL hides credentials in a Redis URL for logging.
func maskRedisURL(url string) string {
	if at := strings.LastIndex(url, "@"); at != -1 {
		if scheme := strings.Index(url, "://"); scheme != -1 {
			return url[:scheme+3] + "***" + url[at:]
		}
	}
	return url
}
