// Package ratelimit provides per-client fixed-window counters for the webhook
// receiver. The in-memory limiter is per process; the Redis limiter shares
// counters across replicas.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Limiter admits or rejects one request for key. When the request is
// rejected, retryAfter is how long until the key's window resets.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration)
}

var errInvalidLimits = errors.New("rate limiter requires positive limit and window")

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}
