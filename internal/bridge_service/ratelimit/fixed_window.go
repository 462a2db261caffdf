package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// FixedWindowLimiter counts requests per key in windows that start at the
// key's first request. Memory is bounded by Sweep, which drops expired windows.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*window
}

func NewFixedWindowLimiter(limit int, windowLen time.Duration, logger *slog.Logger) (*FixedWindowLimiter, error) {
	if limit <= 0 || windowLen <= 0 {
		return nil, errInvalidLimits
	}
	return &FixedWindowLimiter{
		limit:   limit,
		window:  windowLen,
		now:     time.Now,
		logger:  logger.With("component", "rate_limiter"),
		entries: make(map[string]*window),
	}, nil
}

func (l *FixedWindowLimiter) Allow(_ context.Context, key string) (bool, time.Duration) {
	key = normalizeKey(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.entries[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.entries[key] = &window{start: now, count: 1}
		return true, 0
	}
	if w.count < l.limit {
		w.count++
		return true, 0
	}
	return false, w.start.Add(l.window).Sub(now)
}

// Sweep removes every key whose window has expired and returns how many were removed.
func (l *FixedWindowLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, w := range l.entries {
		if now.Sub(w.start) >= l.window {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *FixedWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run sweeps on every tick until ctx is cancelled.
func (l *FixedWindowLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.DebugContext(ctx, "Swept expired rate-limit windows", "removed", n, "tracked_keys", l.Len())
			}
		}
	}
}

var _ Limiter = (*FixedWindowLimiter)(nil)
