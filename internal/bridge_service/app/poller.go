package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

// PollerConfig holds the Poller's schedule.
type PollerConfig struct {
	Interval time.Duration
	// Lookback widens each query window backwards to absorb provider clock skew.
	Lookback time.Duration
}

// Poller pulls inbound messages from the provider on a fixed interval.
//
// The cursor is the time the previous cycle started, not the time of the
// newest message seen. It is advanced before the query is issued, so
// consecutive windows may overlap; the Deduplicator absorbs the overlap.
type Poller struct {
	provider  domain.Provider
	processor MessageProcessor
	cfg       PollerConfig
	now       func() time.Time
	logger    *slog.Logger

	inFlight atomic.Bool
	mu       sync.Mutex
	cursor   time.Time
}

func NewPoller(provider domain.Provider, processor MessageProcessor, cfg PollerConfig, logger *slog.Logger) *Poller {
	p := &Poller{
		provider:  provider,
		processor: processor,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With("component", "poller"),
	}
	p.cursor = p.now()
	return p
}

// Cursor returns the start time of the most recent cycle.
func (p *Poller) Cursor() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// advanceCursor moves the cursor to now and returns the window start for this cycle.
func (p *Poller) advanceCursor() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	since := p.cursor
	p.cursor = p.now()
	return since.Add(-p.cfg.Lookback)
}

// PollOnce runs a single cycle. It returns skipped=true without doing anything
// when another cycle is still in flight. Provider failures are returned for
// logging; there is no inline retry.
func (p *Poller) PollOnce(ctx context.Context) (skipped bool, err error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		pollCyclesCounter.WithLabelValues("skipped").Inc()
		p.logger.DebugContext(ctx, "Previous poll still in flight; skipping cycle")
		return true, nil
	}
	defer p.inFlight.Store(false)

	since := p.advanceCursor()
	messages, err := p.provider.FetchInbound(ctx, since)
	if err != nil {
		pollCyclesCounter.WithLabelValues("error").Inc()
		return false, err
	}
	pollCyclesCounter.WithLabelValues("ok").Inc()
	if len(messages) > 0 {
		p.logger.DebugContext(ctx, "Fetched inbound messages", "count", len(messages), "since", since)
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if msg.IsOutbound {
			continue
		}
		if _, err := p.processor.Process(ctx, msg, domain.SourcePoll); err != nil {
			p.logger.WarnContext(ctx, "Polled message not processed", "message_handle", msg.Handle, "error", err)
		}
	}
	return false, nil
}

// Run fires a cycle on every tick until ctx is cancelled. Each cycle runs in
// its own goroutine so a slow cycle causes later ticks to be skipped rather
// than queued.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	p.logger.InfoContext(ctx, "Poller started", "interval", p.cfg.Interval.String(), "lookback", p.cfg.Lookback.String())

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Poller stopping")
			return
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
					p.logger.ErrorContext(ctx, "Poll cycle failed", "cursor", p.Cursor(), "error", err)
				}
			}()
		}
	}
}
