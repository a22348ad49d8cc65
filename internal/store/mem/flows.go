package mem

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// MemFlowStore implements store.FlowStore in process memory.
type MemFlowStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]store.Flow
}

func NewMemFlowStore() *MemFlowStore {
	return &MemFlowStore{rows: make(map[int64]store.Flow)}
}

func (s *MemFlowStore) Create(_ context.Context, f *store.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	f.ID = s.nextID
	f.CreatedAt = time.Now()
	if f.Status == "" {
		f.Status = store.FlowPending
	}
	s.rows[f.ID] = *f
	return nil
}

func (s *MemFlowStore) Get(_ context.Context, id int64) (*store.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &f, nil
}

func (s *MemFlowStore) ListByUser(_ context.Context, userID, status string) ([]store.Flow, error) {
	return s.list(func(f *store.Flow) bool { return f.UserID == userID }, status)
}

func (s *MemFlowStore) ListByThread(_ context.Context, threadID, status string) ([]store.Flow, error) {
	return s.list(func(f *store.Flow) bool { return f.ThreadID == threadID }, status)
}

func (s *MemFlowStore) list(match func(*store.Flow) bool, status string) ([]store.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Flow
	for _, f := range s.rows {
		if !match(&f) {
			continue
		}
		if status != "" && f.Status != status {
			continue
		}
		out = append(out, f)
	}
	sortFlowsByDue(out)
	return out, nil
}

func (s *MemFlowStore) Due(_ context.Context, now time.Time, limit int) ([]store.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Flow
	for _, f := range s.rows {
		if f.Status == store.FlowPending && !f.DueTime.After(now) {
			out = append(out, f)
		}
	}
	sortFlowsByDue(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemFlowStore) Claim(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.rows[id]
	if !ok || f.Status != store.FlowPending {
		return false, nil
	}
	f.Status = store.FlowRunning
	s.rows[id] = f
	return true, nil
}

func (s *MemFlowStore) MarkStarted(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	f.Status = store.FlowRunning
	f.StartedAt = &at
	s.rows[id] = f
	return nil
}

func (s *MemFlowStore) MarkCompleted(_ context.Context, id int64, result json.RawMessage, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	f.Status = store.FlowCompleted
	f.Result = result
	f.CompletedAt = &at
	s.rows[id] = f
	return nil
}

func (s *MemFlowStore) MarkFailed(_ context.Context, id int64, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	f.Status = store.FlowFailed
	f.LastError = errMsg
	f.CompletedAt = &at
	s.rows[id] = f
	return nil
}

func (s *MemFlowStore) CreateNextInstance(ctx context.Context, prev *store.Flow, nextDue time.Time) (*store.Flow, error) {
	next := &store.Flow{
		WorkspaceID:    prev.WorkspaceID,
		ThreadID:       prev.ThreadID,
		UserID:         prev.UserID,
		Name:           prev.Name,
		Task:           prev.Task,
		Spec:           prev.Spec,
		Cron:           prev.Cron,
		DueTime:        nextDue,
		Status:         store.FlowPending,
		NotifyChannels: prev.NotifyChannels,
	}
	if err := s.Create(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *MemFlowStore) Cancel(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.rows[id]
	if !ok || f.Status != store.FlowPending {
		return false, nil
	}
	f.Status = store.FlowCancelled
	s.rows[id] = f
	return true, nil
}

func (s *MemFlowStore) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

func sortFlowsByDue(list []store.Flow) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].DueTime.Equal(list[j].DueTime) {
			return list[i].ID < list[j].ID
		}
		return list[i].DueTime.Before(list[j].DueTime)
	})
}
