package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

// Deduplicator hands out at-most-once claims on message handles.
//
// Claims are only remembered for the retention window. A provider redelivery
// older than that window is claimable again and will be reprocessed; the store
// stays bounded in exchange.
type Deduplicator struct {
	repo      domain.ProcessedMessageRepository
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewDeduplicator(repo domain.ProcessedMessageRepository, retention time.Duration, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		repo:      repo,
		retention: retention,
		now:       time.Now,
		logger:    logger.With("component", "deduplicator"),
	}
}

// TryClaim returns true for exactly one caller per handle within the retention window.
func (d *Deduplicator) TryClaim(ctx context.Context, handle string) (bool, error) {
	claimed, err := d.repo.Claim(ctx, handle, d.now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim %q: %w", handle, err)
	}
	return claimed, nil
}

// Sweep deletes claims older than the retention window.
func (d *Deduplicator) Sweep(ctx context.Context) (int64, error) {
	cutoff := d.now().Add(-d.retention).UTC()
	removed, err := d.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		dedupSweptCounter.Add(float64(removed))
		d.logger.InfoContext(ctx, "Swept expired processed-message records", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Run sweeps on every tick until ctx is cancelled. Failures are logged and the
// next tick proceeds as normal.
func (d *Deduplicator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	d.logger.InfoContext(ctx, "Dedup sweeper started", "interval", interval.String(), "retention", d.retention.String())
	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "Dedup sweeper stopping")
			return
		case <-ticker.C:
			if _, err := d.Sweep(ctx); err != nil {
				d.logger.ErrorContext(ctx, "Dedup sweep failed", "error", err)
			}
		}
	}
}
