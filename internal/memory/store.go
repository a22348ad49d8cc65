// Package memory persists long-term memories per workspace. Each
// workspace gets its own sqlite database via the storage router; rows
// carry a confidence score that retrieval and learning adjust over time.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// Memory types.
const (
	TypeSemantic   = "semantic"
	TypeEpisodic   = "episodic"
	TypeProcedural = "procedural"
)

// Memory sources.
const (
	SourceExplicit = "explicit"
	SourceLearned  = "learned"
	SourceInferred = "inferred"
	SourceImported = "imported"
)

const defaultConfidence = 0.7

// ValidType reports whether t names a known memory type.
func ValidType(t string) bool {
	return t == TypeSemantic || t == TypeEpisodic || t == TypeProcedural
}

// Memory is a single remembered fact or episode.
type Memory struct {
	ID           string                 `json:"id"`
	Content      string                 `json:"content"`
	Type         string                 `json:"type"`
	Confidence   float64                `json:"confidence"`
	Source       string                 `json:"source"`
	CreatedAt    time.Time              `json:"created_at"`
	LastAccessed *time.Time             `json:"last_accessed,omitempty"`
	AccessCount  int                    `json:"access_count"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// AddParams is the input for Store.Add. Zero Confidence means the
// default; empty Type and Source get their defaults too.
type AddParams struct {
	Content    string
	Type       string
	Confidence float64
	Source     string
	Metadata   map[string]interface{}
}

// UpdateParams is the input for Store.Update. Nil fields stay
// untouched; Metadata merges into the existing map.
type UpdateParams struct {
	Content    *string
	Confidence *float64
	Metadata   map[string]interface{}
}

// SearchParams filters Store.Search.
type SearchParams struct {
	Query         string
	Limit         int
	MinConfidence float64
	Types         []string
}

// Export is the backup format for a workspace's memories.
type Export struct {
	UserID     string         `json:"user_id"`
	ExportedAt time.Time      `json:"exported_at"`
	Memories   []ExportRecord `json:"memories"`
	Count      int            `json:"count"`
}

// ExportRecord is one memory in an export, stripped of per-instance
// state like access counts.
type ExportRecord struct {
	Content    string                 `json:"content"`
	Type       string                 `json:"type"`
	Confidence float64                `json:"confidence"`
	Source     string                 `json:"source"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Store reads and writes memories in the workspace bound to each call's
// context.
type Store struct {
	router *workspace.Router

	mu    sync.Mutex
	ready map[string]bool // workspace id -> schema created
}

func NewStore(router *workspace.Router) *Store {
	return &Store{router: router, ready: make(map[string]bool)}
}

const memorySchema = `
CREATE TABLE IF NOT EXISTS memories (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'semantic',
	confidence REAL NOT NULL DEFAULT 0.7,
	source TEXT NOT NULL DEFAULT 'explicit',
	created_at TEXT NOT NULL,
	last_accessed TEXT,
	access_count INTEGER NOT NULL DEFAULT 0,
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
`

func (s *Store) db(ctx context.Context) (*sql.DB, error) {
	db, err := s.router.MemoryDB(ctx)
	if err != nil {
		return nil, err
	}

	workspaceID := store.WorkspaceIDFromContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready[workspaceID] {
		return db, nil
	}
	if _, err := db.ExecContext(ctx, memorySchema); err != nil {
		return nil, fmt.Errorf("create memory schema: %w", err)
	}
	s.ready[workspaceID] = true
	return db, nil
}

// parseMemoryID accepts "mem-3" or a bare "3".
func parseMemoryID(id string) (int64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(id), "mem-")
	seq, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("invalid memory id %q", id)
	}
	return seq, nil
}

func formatMemoryID(seq int64) string {
	return fmt.Sprintf("mem-%d", seq)
}

// Add stores a new memory and returns it with its assigned ID.
func (s *Store) Add(ctx context.Context, p AddParams) (*Memory, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	if p.Type == "" {
		p.Type = TypeSemantic
	}
	if p.Source == "" {
		p.Source = SourceExplicit
	}
	if p.Confidence <= 0 {
		p.Confidence = defaultConfidence
	}
	p.Confidence = clampConfidence(p.Confidence)

	metaJSON, err := marshalMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := db.ExecContext(ctx,
		`INSERT INTO memories (content, type, confidence, source, created_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Content, p.Type, p.Confidence, p.Source, now.Format(time.RFC3339Nano), metaJSON)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	return &Memory{
		ID:         formatMemoryID(seq),
		Content:    p.Content,
		Type:       p.Type,
		Confidence: p.Confidence,
		Source:     p.Source,
		CreatedAt:  now,
		Metadata:   p.Metadata,
	}, nil
}

// Get returns a memory and records the access.
func (s *Store) Get(ctx context.Context, id string) (*Memory, error) {
	seq, err := parseMemoryID(id)
	if err != nil {
		return nil, err
	}
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := db.ExecContext(ctx,
		`UPDATE memories SET last_accessed = ?, access_count = access_count + 1 WHERE seq = ?`,
		now.Format(time.RFC3339Nano), seq)
	if err != nil {
		return nil, fmt.Errorf("touch memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}

	return s.bySeq(ctx, db, seq)
}

// Update applies partial changes to a memory. Metadata merges with the
// stored map rather than replacing it.
func (s *Store) Update(ctx context.Context, id string, p UpdateParams) (*Memory, error) {
	seq, err := parseMemoryID(id)
	if err != nil {
		return nil, err
	}
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	current, err := s.bySeq(ctx, db, seq)
	if err != nil {
		return nil, err
	}

	if p.Content != nil {
		current.Content = *p.Content
	}
	if p.Confidence != nil {
		current.Confidence = clampConfidence(*p.Confidence)
	}
	if p.Metadata != nil {
		if current.Metadata == nil {
			current.Metadata = make(map[string]interface{}, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			current.Metadata[k] = v
		}
	}

	metaJSON, err := marshalMetadata(current.Metadata)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx,
		`UPDATE memories SET content = ?, confidence = ?, metadata = ? WHERE seq = ?`,
		current.Content, current.Confidence, metaJSON, seq); err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	return current, nil
}

// Delete removes a memory. Returns false when the ID does not exist.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	seq, err := parseMemoryID(id)
	if err != nil {
		return false, err
	}
	db, err := s.db(ctx)
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM memories WHERE seq = ?`, seq)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Search finds memories whose content contains the query, ordered by
// confidence descending.
func (s *Store) Search(ctx context.Context, p SearchParams) ([]Memory, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}

	var sb strings.Builder
	sb.WriteString(`SELECT seq, content, type, confidence, source, created_at, last_accessed, access_count, metadata
		FROM memories WHERE confidence >= ? AND lower(content) LIKE '%' || lower(?) || '%'`)
	args := []interface{}{p.MinConfidence, p.Query}
	appendTypeFilter(&sb, &args, p.Types)
	sb.WriteString(` ORDER BY confidence DESC, seq ASC LIMIT ?`)
	args = append(args, p.Limit)

	return s.queryMemories(ctx, db, sb.String(), args...)
}

// Recent returns memories created in the last N days, newest first.
func (s *Store) Recent(ctx context.Context, days, limit int, types []string) ([]Memory, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 7
	}
	if limit <= 0 {
		limit = 10
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var sb strings.Builder
	sb.WriteString(`SELECT seq, content, type, confidence, source, created_at, last_accessed, access_count, metadata
		FROM memories WHERE created_at >= ?`)
	args := []interface{}{cutoff.Format(time.RFC3339Nano)}
	appendTypeFilter(&sb, &args, types)
	sb.WriteString(` ORDER BY created_at DESC, seq DESC LIMIT ?`)
	args = append(args, limit)

	return s.queryMemories(ctx, db, sb.String(), args...)
}

// All returns every memory at or above the confidence floor.
func (s *Store) All(ctx context.Context, minConfidence float64, types []string) ([]Memory, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT seq, content, type, confidence, source, created_at, last_accessed, access_count, metadata
		FROM memories WHERE confidence >= ?`)
	args := []interface{}{minConfidence}
	appendTypeFilter(&sb, &args, types)
	sb.WriteString(` ORDER BY seq ASC`)

	return s.queryMemories(ctx, db, sb.String(), args...)
}

// Export packages memories for backup.
func (s *Store) Export(ctx context.Context, minConfidence float64) (*Export, error) {
	memories, err := s.All(ctx, minConfidence, nil)
	if err != nil {
		return nil, err
	}
	records := make([]ExportRecord, 0, len(memories))
	for _, m := range memories {
		records = append(records, ExportRecord{
			Content:    m.Content,
			Type:       m.Type,
			Confidence: m.Confidence,
			Source:     m.Source,
			Metadata:   m.Metadata,
		})
	}
	return &Export{
		UserID:     store.UserIDFromContext(ctx),
		ExportedAt: time.Now().UTC(),
		Memories:   records,
		Count:      len(records),
	}, nil
}

// Import adds memories from a backup. With merge false nothing is
// written and everything counts as skipped.
func (s *Store) Import(ctx context.Context, data *Export, merge bool) (imported, skipped int, err error) {
	for _, rec := range data.Memories {
		if !merge {
			skipped++
			continue
		}
		source := rec.Source
		if source == "" {
			source = SourceImported
		}
		if _, err := s.Add(ctx, AddParams{
			Content:    rec.Content,
			Type:       rec.Type,
			Confidence: rec.Confidence,
			Source:     source,
			Metadata:   rec.Metadata,
		}); err != nil {
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}

// Count returns the total number of memories in the workspace.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// Touch records accesses without returning the rows. Used by retrieval
// middleware after injecting memories into a prompt.
func (s *Store) Touch(ctx context.Context, ids ...string) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		seq, err := parseMemoryID(id)
		if err != nil {
			continue
		}
		if _, err := db.ExecContext(ctx,
			`UPDATE memories SET last_accessed = ?, access_count = access_count + 1 WHERE seq = ?`,
			now, seq); err != nil {
			return fmt.Errorf("touch memory %s: %w", id, err)
		}
	}
	return nil
}

// AdjustConfidence shifts a memory's confidence by delta, clamped to
// [0, 1].
func (s *Store) AdjustConfidence(ctx context.Context, id string, delta float64) error {
	seq, err := parseMemoryID(id)
	if err != nil {
		return err
	}
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE memories SET confidence = MAX(0.0, MIN(1.0, confidence + ?)) WHERE seq = ?`,
		delta, seq)
	if err != nil {
		return fmt.Errorf("adjust confidence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) bySeq(ctx context.Context, db *sql.DB, seq int64) (*Memory, error) {
	rows, err := s.queryMemories(ctx, db,
		`SELECT seq, content, type, confidence, source, created_at, last_accessed, access_count, metadata
		 FROM memories WHERE seq = ?`, seq)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Store) queryMemories(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]Memory, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var (
			seq          int64
			m            Memory
			createdAt    string
			lastAccessed sql.NullString
			metaJSON     string
		)
		if err := rows.Scan(&seq, &m.Content, &m.Type, &m.Confidence, &m.Source,
			&createdAt, &lastAccessed, &m.AccessCount, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.ID = formatMemoryID(seq)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			m.CreatedAt = t
		}
		if lastAccessed.Valid {
			if t, err := time.Parse(time.RFC3339Nano, lastAccessed.String); err == nil {
				m.LastAccessed = &t
			}
		}
		if metaJSON != "" && metaJSON != "{}" {
			var meta map[string]interface{}
			if err := json.Unmarshal([]byte(metaJSON), &meta); err == nil {
				m.Metadata = meta
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func appendTypeFilter(sb *strings.Builder, args *[]interface{}, types []string) {
	if len(types) == 0 {
		return
	}
	placeholders := make([]string, len(types))
	for i, t := range types {
		placeholders[i] = "?"
		*args = append(*args, t)
	}
	sb.WriteString(` AND type IN (` + strings.Join(placeholders, ", ") + `)`)
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func marshalMetadata(meta map[string]interface{}) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}
