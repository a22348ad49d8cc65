package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// MemReminderStore implements store.ReminderStore in process memory.
type MemReminderStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]store.Reminder
}

func NewMemReminderStore() *MemReminderStore {
	return &MemReminderStore{rows: make(map[int64]store.Reminder)}
}

func (s *MemReminderStore) Create(_ context.Context, r *store.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = store.ReminderPending
	}
	s.rows[r.ID] = *r
	return nil
}

func (s *MemReminderStore) Get(_ context.Context, id int64) (*store.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *MemReminderStore) ListByThread(_ context.Context, threadID, status string) ([]store.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Reminder
	for _, r := range s.rows {
		if r.ThreadID != threadID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	sortRemindersByDue(out)
	return out, nil
}

func (s *MemReminderStore) Due(_ context.Context, now time.Time, limit int) ([]store.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Reminder
	for _, r := range s.rows {
		if r.Status == store.ReminderPending && !r.DueTime.After(now) {
			out = append(out, r)
		}
	}
	sortRemindersByDue(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemReminderStore) Claim(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.Status != store.ReminderPending {
		return false, nil
	}
	r.Status = store.ReminderRunning
	r.UpdatedAt = time.Now()
	s.rows[id] = r
	return true, nil
}

func (s *MemReminderStore) MarkSent(_ context.Context, id int64) error {
	return s.setStatus(id, store.ReminderSent, "")
}

func (s *MemReminderStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	return s.setStatus(id, store.ReminderFailed, errMsg)
}

func (s *MemReminderStore) setStatus(id int64, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	r.LastError = errMsg
	r.UpdatedAt = time.Now()
	s.rows[id] = r
	return nil
}

func (s *MemReminderStore) Cancel(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.Status != store.ReminderPending {
		return false, nil
	}
	r.Status = store.ReminderCancelled
	r.UpdatedAt = time.Now()
	s.rows[id] = r
	return true, nil
}

func (s *MemReminderStore) Update(_ context.Context, id int64, message string, dueTime *time.Time, timezone *string) (*store.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if message != "" {
		r.Message = message
	}
	if dueTime != nil {
		r.DueTime = *dueTime
	}
	if timezone != nil {
		r.Timezone = *timezone
	}
	r.UpdatedAt = time.Now()
	s.rows[id] = r
	return &r, nil
}

func sortRemindersByDue(list []store.Reminder) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].DueTime.Equal(list[j].DueTime) {
			return list[i].ID < list[j].ID
		}
		return list[i].DueTime.Before(list[j].DueTime)
	})
}
