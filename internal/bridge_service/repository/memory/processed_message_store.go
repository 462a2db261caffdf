// Package memory holds process-local stores used when STORE_DRIVER=memory.
// They satisfy the same contracts as the Postgres repositories but lose all
// state on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

type ProcessedMessageStore struct {
	mu      sync.Mutex
	handles map[string]time.Time
}

func NewProcessedMessageStore() *ProcessedMessageStore {
	return &ProcessedMessageStore{handles: make(map[string]time.Time)}
}

func (s *ProcessedMessageStore) Claim(ctx context.Context, handle string, processedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handles[handle]; exists {
		return false, nil
	}
	s.handles[handle] = processedAt
	return true, nil
}

func (s *ProcessedMessageStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for handle, at := range s.handles {
		if at.Before(cutoff) {
			delete(s.handles, handle)
			removed++
		}
	}
	return removed, nil
}

func (s *ProcessedMessageStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

var _ domain.ProcessedMessageRepository = (*ProcessedMessageStore)(nil)
