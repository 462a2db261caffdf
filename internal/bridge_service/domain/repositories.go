package domain

import (
	"context"
	"time"
)

// ProcessedMessageRepository is the durable claim store behind the Deduplicator.
type ProcessedMessageRepository interface {
	// Claim inserts a record for handle. It returns true only for the single
	// caller whose insert created the record.
	Claim(ctx context.Context, handle string, processedAt time.Time) (bool, error)
	// DeleteOlderThan removes records processed before cutoff and returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboundStatusRepository stores OutboundStatusRecords.
type OutboundStatusRepository interface {
	// Create registers a freshly sent message. Creating an existing handle is a no-op.
	Create(ctx context.Context, rec OutboundStatusRecord) error
	// ListPending returns up to limit non-terminal records, least recently checked first
	// (never-checked records come before all others).
	ListPending(ctx context.Context, limit int) ([]OutboundStatusRecord, error)
	// UpdateStatus applies a provider status to a non-terminal record. A terminal
	// record is left untouched and false is returned.
	UpdateStatus(ctx context.Context, handle string, status string, terminal bool, checkedAt time.Time) (bool, error)
	// TouchChecked refreshes last_checked_at on a non-terminal record without changing its status.
	TouchChecked(ctx context.Context, handle string, checkedAt time.Time) error
	// Get returns the record for handle or ErrNotFound.
	Get(ctx context.Context, handle string) (OutboundStatusRecord, error)
}
