package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

type OutboundStatusStore struct {
	mu      sync.Mutex
	records map[string]domain.OutboundStatusRecord
}

func NewOutboundStatusStore() *OutboundStatusStore {
	return &OutboundStatusStore{records: make(map[string]domain.OutboundStatusRecord)}
}

// Create is a no-op when the handle already exists, mirroring ON CONFLICT DO NOTHING.
func (s *OutboundStatusStore) Create(ctx context.Context, rec domain.OutboundStatusRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.Handle]; exists {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = rec.CreatedAt
	rec.LastCheckedAt = nil
	s.records[rec.Handle] = rec
	return nil
}

// ListPending orders never-checked records first, then by oldest check, then by creation.
func (s *OutboundStatusStore) ListPending(ctx context.Context, limit int) ([]domain.OutboundStatusRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	pending := make([]domain.OutboundStatusRecord, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.IsTerminal {
			pending = append(pending, copyRecord(rec))
		}
	}
	s.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		switch {
		case a.LastCheckedAt == nil && b.LastCheckedAt != nil:
			return true
		case a.LastCheckedAt != nil && b.LastCheckedAt == nil:
			return false
		case a.LastCheckedAt != nil && !a.LastCheckedAt.Equal(*b.LastCheckedAt):
			return a.LastCheckedAt.Before(*b.LastCheckedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Handle < b.Handle
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *OutboundStatusStore) UpdateStatus(ctx context.Context, handle string, status string, terminal bool, checkedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[handle]
	if !ok || rec.IsTerminal {
		return false, nil
	}
	rec.Status = status
	rec.IsTerminal = terminal
	rec.LastCheckedAt = &checkedAt
	rec.UpdatedAt = checkedAt
	s.records[handle] = rec
	return true, nil
}

func (s *OutboundStatusStore) TouchChecked(ctx context.Context, handle string, checkedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[handle]
	if !ok || rec.IsTerminal {
		return nil
	}
	rec.LastCheckedAt = &checkedAt
	s.records[handle] = rec
	return nil
}

func (s *OutboundStatusStore) Get(ctx context.Context, handle string) (domain.OutboundStatusRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboundStatusRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[handle]
	if !ok {
		return domain.OutboundStatusRecord{}, fmt.Errorf("outbound status %q: %w", handle, domain.ErrNotFound)
	}
	return copyRecord(rec), nil
}

func copyRecord(rec domain.OutboundStatusRecord) domain.OutboundStatusRecord {
	if rec.LastCheckedAt != nil {
		checked := *rec.LastCheckedAt
		rec.LastCheckedAt = &checked
	}
	return rec
}

var _ domain.OutboundStatusRepository = (*OutboundStatusStore)(nil)
