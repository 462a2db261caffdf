package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

var outboundStatusColumnNames = []string{"message_handle", "chat_id", "status", "is_terminal", "last_checked_at", "created_at", "updated_at"}

func setupOutboundStatusTest(t *testing.T) (*PgOutboundStatusRepository, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPgOutboundStatusRepository(mockPool, logger), mockPool
}

func TestPgOutboundStatusRepository_Create(t *testing.T) {
	repo, mockPool := setupOutboundStatusTest(t)
	defer mockPool.Close()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mockPool.ExpectExec(regexp.QuoteMeta(insertOutboundStatusQuery)).
		WithArgs("out-1", "+15551234567", "sent", false, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), domain.OutboundStatusRecord{
		Handle:    "out-1",
		ChatID:    "+15551234567",
		Status:    "sent",
		CreatedAt: created,
	})
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgOutboundStatusRepository_ListPending(t *testing.T) {
	repo, mockPool := setupOutboundStatusTest(t)
	defer mockPool.Close()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	checked := created.Add(time.Minute)
	rows := mockPool.NewRows(outboundStatusColumnNames).
		AddRow("out-1", "+15551234567", "sent", false, (*time.Time)(nil), created, created).
		AddRow("out-2", "+15559876543", "queued", false, &checked, created, checked)

	mockPool.ExpectQuery(regexp.QuoteMeta(listPendingOutboundStatusQuery)).
		WithArgs(25).
		WillReturnRows(rows)

	records, err := repo.ListPending(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "out-1", records[0].Handle)
	assert.Nil(t, records[0].LastCheckedAt)
	assert.Equal(t, "out-2", records[1].Handle)
	require.NotNil(t, records[1].LastCheckedAt)
	assert.True(t, checked.Equal(*records[1].LastCheckedAt))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgOutboundStatusRepository_UpdateStatus(t *testing.T) {
	repo, mockPool := setupOutboundStatusTest(t)
	defer mockPool.Close()

	checked := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	query := regexp.QuoteMeta(updateOutboundStatusQuery)

	t.Run("Updated", func(t *testing.T) {
		mockPool.ExpectExec(query).
			WithArgs("out-1", "delivered", true, checked).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		updated, err := repo.UpdateStatus(context.Background(), "out-1", "delivered", true, checked)
		require.NoError(t, err)
		assert.True(t, updated)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("AlreadyTerminal", func(t *testing.T) {
		mockPool.ExpectExec(query).
			WithArgs("out-1", "sent", false, checked).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		updated, err := repo.UpdateStatus(context.Background(), "out-1", "sent", false, checked)
		require.NoError(t, err)
		assert.False(t, updated)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("DBError", func(t *testing.T) {
		mockPool.ExpectExec(query).
			WithArgs("out-1", "delivered", true, checked).
			WillReturnError(errors.New("deadlock detected"))

		_, err := repo.UpdateStatus(context.Background(), "out-1", "delivered", true, checked)
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgOutboundStatusRepository_TouchChecked(t *testing.T) {
	repo, mockPool := setupOutboundStatusTest(t)
	defer mockPool.Close()

	checked := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	mockPool.ExpectExec(regexp.QuoteMeta(touchOutboundStatusQuery)).
		WithArgs("out-1", checked).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.TouchChecked(context.Background(), "out-1", checked))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgOutboundStatusRepository_Get(t *testing.T) {
	repo, mockPool := setupOutboundStatusTest(t)
	defer mockPool.Close()

	query := regexp.QuoteMeta(getOutboundStatusQuery)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Found", func(t *testing.T) {
		rows := mockPool.NewRows(outboundStatusColumnNames).
			AddRow("out-1", "+15551234567", "delivered", true, &created, created, created)
		mockPool.ExpectQuery(query).WithArgs("out-1").WillReturnRows(rows)

		rec, err := repo.Get(context.Background(), "out-1")
		require.NoError(t, err)
		assert.Equal(t, "delivered", rec.Status)
		assert.True(t, rec.IsTerminal)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool.ExpectQuery(query).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
