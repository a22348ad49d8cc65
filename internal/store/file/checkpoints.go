// Package file provides a file-backed checkpoint store for
// deployments without Postgres. One JSON file per thread, written
// atomically via temp file and rename.
package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// FileCheckpointStore implements store.CheckpointStore on the local
// filesystem. Recent checkpoints per thread are kept in memory and
// flushed on every Put.
type FileCheckpointStore struct {
	dir string

	mu       sync.RWMutex
	byThread map[string][]store.Checkpoint
}

func NewFileCheckpointStore(dir string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &FileCheckpointStore{
		dir:      dir,
		byThread: make(map[string][]store.Checkpoint),
	}
	s.loadAll()
	return s, nil
}

func (s *FileCheckpointStore) Put(_ context.Context, cp *store.Checkpoint) error {
	if cp.ID == uuid.Nil {
		cp.ID = store.GenNewID()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.byThread[cp.ThreadID] = append(s.byThread[cp.ThreadID], *cp)
	list := append([]store.Checkpoint(nil), s.byThread[cp.ThreadID]...)
	s.mu.Unlock()

	return s.save(cp.ThreadID, list)
}

func (s *FileCheckpointStore) Latest(_ context.Context, threadID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byThread[threadID]
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	cp := list[len(list)-1]
	return &cp, nil
}

func (s *FileCheckpointStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	delete(s.byThread, threadID)
	s.mu.Unlock()

	path, err := s.pathFor(threadID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileCheckpointStore) Prune(_ context.Context, threadID string, keep int) error {
	if keep < 1 {
		keep = 1
	}
	s.mu.Lock()
	list := s.byThread[threadID]
	if len(list) <= keep {
		s.mu.Unlock()
		return nil
	}
	list = append([]store.Checkpoint(nil), list[len(list)-keep:]...)
	s.byThread[threadID] = list
	s.mu.Unlock()

	return s.save(threadID, list)
}

// save writes the thread's checkpoint list atomically: temp file → rename.
func (s *FileCheckpointStore) save(threadID string, list []store.Checkpoint) error {
	path, err := s.pathFor(threadID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.dir, "checkpoint-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func (s *FileCheckpointStore) pathFor(threadID string) (string, error) {
	filename := sanitizeFilename(threadID)
	if filename == "." || !filepath.IsLocal(filename) || strings.ContainsAny(filename, `/\`) {
		return "", os.ErrInvalid
	}
	return filepath.Join(s.dir, filename+".json"), nil
}

func (s *FileCheckpointStore) loadAll() {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, f.Name()))
		if err != nil {
			continue
		}

		var list []store.Checkpoint
		if err := json.Unmarshal(data, &list); err != nil || len(list) == 0 {
			continue
		}
		s.byThread[list[len(list)-1].ThreadID] = list
	}
}

func sanitizeFilename(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}
