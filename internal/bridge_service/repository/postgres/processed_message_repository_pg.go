package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
	"github.com/aradsms/imessage_bridge/internal/platform/database"
)

const (
	claimProcessedMessageQuery = `INSERT INTO processed_messages (message_handle, processed_at) VALUES ($1, $2) ON CONFLICT (message_handle) DO NOTHING`
	deleteProcessedBeforeQuery = `DELETE FROM processed_messages WHERE processed_at < $1`
)

// PgProcessedMessageRepository is the Postgres claim store. The primary key on
// message_handle makes the insert the atomic claim.
type PgProcessedMessageRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgProcessedMessageRepository(db database.DBTX, logger *slog.Logger) *PgProcessedMessageRepository {
	return &PgProcessedMessageRepository{db: db, logger: logger.With("component", "processed_message_repository_pg")}
}

func (r *PgProcessedMessageRepository) Claim(ctx context.Context, handle string, processedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, claimProcessedMessageQuery, handle, processedAt.UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error claiming message handle", "message_handle", handle, "error", err)
		return false, fmt.Errorf("%w: claim %q: %w", domain.ErrPersistence, handle, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgProcessedMessageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, deleteProcessedBeforeQuery, cutoff.UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deleting expired processed messages", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("%w: sweep processed messages: %w", domain.ErrPersistence, err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.ProcessedMessageRepository = (*PgProcessedMessageRepository)(nil)
