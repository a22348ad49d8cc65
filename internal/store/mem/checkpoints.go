package mem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// MemCheckpointStore implements store.CheckpointStore in process memory.
type MemCheckpointStore struct {
	mu      sync.RWMutex
	byThread map[string][]store.Checkpoint // append order = creation order
}

func NewMemCheckpointStore() *MemCheckpointStore {
	return &MemCheckpointStore{byThread: make(map[string][]store.Checkpoint)}
}

func (s *MemCheckpointStore) Put(_ context.Context, cp *store.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp.ID == uuid.Nil {
		cp.ID = store.GenNewID()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.byThread[cp.ThreadID] = append(s.byThread[cp.ThreadID], *cp)
	return nil
}

func (s *MemCheckpointStore) Latest(_ context.Context, threadID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byThread[threadID]
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	cp := list[len(list)-1]
	return &cp, nil
}

func (s *MemCheckpointStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byThread, threadID)
	return nil
}

func (s *MemCheckpointStore) Prune(_ context.Context, threadID string, keep int) error {
	if keep < 1 {
		keep = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byThread[threadID]
	if len(list) > keep {
		s.byThread[threadID] = append([]store.Checkpoint(nil), list[len(list)-keep:]...)
	}
	return nil
}
