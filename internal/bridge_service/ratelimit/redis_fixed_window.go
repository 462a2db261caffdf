package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// The window starts at the first INCR; the key expires with it.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// RedisFixedWindowLimiter shares fixed-window counters between replicas.
// On Redis failures it fails open and logs, so a Redis outage never blocks
// provider webhooks.
type RedisFixedWindowLimiter struct {
	limit  int
	window time.Duration
	prefix string
	client *redis.Client
	logger *slog.Logger
}

func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, windowLen time.Duration, logger *slog.Logger) (*RedisFixedWindowLimiter, error) {
	if limit <= 0 || windowLen <= 0 {
		return nil, errInvalidLimits
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "imessage_bridge:ratelimit"
	}
	return &RedisFixedWindowLimiter{
		limit:  limit,
		window: windowLen,
		prefix: prefix,
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		logger: logger.With("component", "redis_rate_limiter"),
	}, nil
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, normalizeKey(key))
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		l.logger.WarnContext(ctx, "Rate limiter unavailable; allowing request", "key", key, "error", err)
		return true, 0
	}
	if res[0] <= int64(l.limit) {
		return true, 0
	}
	retry := time.Duration(res[1]) * time.Millisecond
	if retry <= 0 {
		retry = l.window
	}
	return false, retry
}

// Ping verifies connectivity at startup.
func (l *RedisFixedWindowLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisFixedWindowLimiter) Close() error {
	return l.client.Close()
}

var _ Limiter = (*RedisFixedWindowLimiter)(nil)
