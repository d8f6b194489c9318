package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-memory session store for dev mode and unit tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Row
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Row)}
}

func (s *MemoryStore) Insert(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.TokenHash] = row
	return nil
}

func (s *MemoryStore) GetByTokenHash(_ context.Context, tokenHash string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[tokenHash]
	if !ok {
		return Row{}, ErrInvalidToken
	}
	return row, nil
}

func (s *MemoryStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, tokenHash)
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, row := range s.rows {
		if !row.ExpiresAt.After(now) {
			delete(s.rows, hash)
			n++
		}
	}
	return n, nil
}
