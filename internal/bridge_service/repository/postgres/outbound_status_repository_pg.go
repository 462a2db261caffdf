package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
	"github.com/aradsms/imessage_bridge/internal/platform/database"
)

const (
	outboundStatusColumns = `message_handle, chat_id, status, is_terminal, last_checked_at, created_at, updated_at`

	insertOutboundStatusQuery = `INSERT INTO outbound_message_status (message_handle, chat_id, status, is_terminal, last_checked_at, created_at, updated_at) VALUES ($1, $2, $3, $4, NULL, $5, $5) ON CONFLICT (message_handle) DO NOTHING`

	listPendingOutboundStatusQuery = `SELECT ` + outboundStatusColumns + ` FROM outbound_message_status WHERE is_terminal = FALSE ORDER BY last_checked_at ASC NULLS FIRST, created_at ASC LIMIT $1`

	// is_terminal = FALSE in the WHERE clause is what keeps terminal rows from regressing.
	updateOutboundStatusQuery = `UPDATE outbound_message_status SET status = $2, is_terminal = $3, last_checked_at = $4, updated_at = $4 WHERE message_handle = $1 AND is_terminal = FALSE`

	touchOutboundStatusQuery = `UPDATE outbound_message_status SET last_checked_at = $2 WHERE message_handle = $1 AND is_terminal = FALSE`

	getOutboundStatusQuery = `SELECT ` + outboundStatusColumns + ` FROM outbound_message_status WHERE message_handle = $1`
)

type PgOutboundStatusRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgOutboundStatusRepository(db database.DBTX, logger *slog.Logger) *PgOutboundStatusRepository {
	return &PgOutboundStatusRepository{db: db, logger: logger.With("component", "outbound_status_repository_pg")}
}

func (r *PgOutboundStatusRepository) Create(ctx context.Context, rec domain.OutboundStatusRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.Exec(ctx, insertOutboundStatusQuery, rec.Handle, rec.ChatID, rec.Status, rec.IsTerminal, createdAt.UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error inserting outbound status", "message_handle", rec.Handle, "error", err)
		return fmt.Errorf("%w: create outbound status %q: %w", domain.ErrPersistence, rec.Handle, err)
	}
	return nil
}

func (r *PgOutboundStatusRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboundStatusRecord, error) {
	rows, err := r.db.Query(ctx, listPendingOutboundStatusQuery, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing pending outbound statuses", "error", err)
		return nil, fmt.Errorf("%w: list pending outbound statuses: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var records []domain.OutboundStatusRecord
	for rows.Next() {
		rec, err := scanOutboundStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan outbound status: %w", domain.ErrPersistence, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate outbound statuses: %w", domain.ErrPersistence, err)
	}
	return records, nil
}

func (r *PgOutboundStatusRepository) UpdateStatus(ctx context.Context, handle string, status string, terminal bool, checkedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, updateOutboundStatusQuery, handle, status, terminal, checkedAt.UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating outbound status", "message_handle", handle, "status", status, "error", err)
		return false, fmt.Errorf("%w: update outbound status %q: %w", domain.ErrPersistence, handle, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Outbound status not updated; record missing or already terminal", "message_handle", handle)
		return false, nil
	}
	return true, nil
}

func (r *PgOutboundStatusRepository) TouchChecked(ctx context.Context, handle string, checkedAt time.Time) error {
	if _, err := r.db.Exec(ctx, touchOutboundStatusQuery, handle, checkedAt.UTC()); err != nil {
		r.logger.ErrorContext(ctx, "Error refreshing outbound status check time", "message_handle", handle, "error", err)
		return fmt.Errorf("%w: touch outbound status %q: %w", domain.ErrPersistence, handle, err)
	}
	return nil
}

func (r *PgOutboundStatusRepository) Get(ctx context.Context, handle string) (domain.OutboundStatusRecord, error) {
	rec, err := scanOutboundStatus(r.db.QueryRow(ctx, getOutboundStatusQuery, handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OutboundStatusRecord{}, fmt.Errorf("outbound status %q: %w", handle, domain.ErrNotFound)
		}
		return domain.OutboundStatusRecord{}, fmt.Errorf("%w: get outbound status %q: %w", domain.ErrPersistence, handle, err)
	}
	return rec, nil
}

func scanOutboundStatus(row pgx.Row) (domain.OutboundStatusRecord, error) {
	var rec domain.OutboundStatusRecord
	err := row.Scan(
		&rec.Handle,
		&rec.ChatID,
		&rec.Status,
		&rec.IsTerminal,
		&rec.LastCheckedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	return rec, err
}

var _ domain.OutboundStatusRepository = (*PgOutboundStatusRepository)(nil)
