// Package instinct learns behavioral patterns from conversations and
// feeds them back into prompts. An instinct is a trigger/action pair
// with a confidence score: the observer creates or reinforces instincts
// from user messages, and the injector selects the strongest ones into
// a context block before each agent run.
package instinct

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// Instinct domains. Workflow is the default for anything unclassified.
const (
	DomainCommunication = "communication"
	DomainWorkflow      = "workflow"
	DomainFormat        = "format"
	DomainTiming        = "timing"
	DomainEmotional     = "emotional_state"
	DomainTools         = "tools"
)

const defaultConfidence = 0.7

// Instinct is one learned behavioral pattern. Confidence is the stored
// base score; retrieval recomputes an effective score from the usage
// stats (see FinalConfidence).
type Instinct struct {
	ID              string     `json:"id"`
	Trigger         string     `json:"trigger"`
	Action          string     `json:"action"`
	Domain          string     `json:"domain"`
	Confidence      float64    `json:"confidence"`
	Source          string     `json:"source"`
	OccurrenceCount int        `json:"occurrence_count"`
	LastTriggered   *time.Time `json:"last_triggered,omitempty"`
	SuccessRate     float64    `json:"success_rate"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateParams is the input for Store.Create. Zero Confidence means the
// default; empty Domain and Source get their defaults too.
type CreateParams struct {
	Trigger    string
	Action     string
	Domain     string
	Confidence float64
	Source     string
}

// ListParams filters Store.List.
type ListParams struct {
	Domain        string
	MinConfidence float64
	Limit         int
}

// Store reads and writes instincts in the workspace bound to each
// call's context. Instincts share the workspace memory database.
type Store struct {
	router *workspace.Router

	mu    sync.Mutex
	ready map[string]bool // workspace id -> schema created
}

func NewStore(router *workspace.Router) *Store {
	return &Store{router: router, ready: make(map[string]bool)}
}

const instinctSchema = `
CREATE TABLE IF NOT EXISTS instincts (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	"trigger" TEXT NOT NULL,
	action TEXT NOT NULL,
	domain TEXT NOT NULL DEFAULT 'workflow',
	confidence REAL NOT NULL DEFAULT 0.7,
	source TEXT NOT NULL DEFAULT 'observed',
	occurrence_count INTEGER NOT NULL DEFAULT 0,
	last_triggered TEXT,
	success_rate REAL NOT NULL DEFAULT 1.0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_instincts_domain ON instincts(domain);
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
	if _, err := db.ExecContext(ctx, instinctSchema); err != nil {
		return nil, fmt.Errorf("create instinct schema: %w", err)
	}
	s.ready[workspaceID] = true
	return db, nil
}

// parseInstinctID accepts "ins-3" or a bare "3".
func parseInstinctID(id string) (int64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(id), "ins-")
	seq, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("invalid instinct id %q", id)
	}
	return seq, nil
}

func formatInstinctID(seq int64) string {
	return fmt.Sprintf("ins-%d", seq)
}

// Create stores a new instinct and returns it with its assigned ID.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Instinct, error) {
	if strings.TrimSpace(p.Trigger) == "" {
		return nil, fmt.Errorf("instinct trigger is required")
	}
	if strings.TrimSpace(p.Action) == "" {
		return nil, fmt.Errorf("instinct action is required")
	}
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	if p.Domain == "" {
		p.Domain = DomainWorkflow
	}
	if p.Source == "" {
		p.Source = "observed"
	}
	if p.Confidence <= 0 {
		p.Confidence = defaultConfidence
	}
	p.Confidence = clampConfidence(p.Confidence)

	now := time.Now().UTC()
	ts := now.Format(time.RFC3339Nano)
	res, err := db.ExecContext(ctx,
		`INSERT INTO instincts ("trigger", action, domain, confidence, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Trigger, p.Action, p.Domain, p.Confidence, p.Source, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert instinct: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert instinct: %w", err)
	}

	return &Instinct{
		ID:          formatInstinctID(seq),
		Trigger:     p.Trigger,
		Action:      p.Action,
		Domain:      p.Domain,
		Confidence:  p.Confidence,
		Source:      p.Source,
		SuccessRate: 1.0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Get returns a single instinct by ID.
func (s *Store) Get(ctx context.Context, id string) (*Instinct, error) {
	seq, err := parseInstinctID(id)
	if err != nil {
		return nil, err
	}
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	return s.bySeq(ctx, db, seq)
}

// List returns instincts at or above the confidence floor, strongest
// first. Empty Domain means all domains; zero Limit means no cap.
func (s *Store) List(ctx context.Context, p ListParams) ([]Instinct, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(selectInstinct + ` WHERE confidence >= ?`)
	args := []interface{}{p.MinConfidence}
	if p.Domain != "" {
		sb.WriteString(` AND domain = ?`)
		args = append(args, p.Domain)
	}
	sb.WriteString(` ORDER BY confidence DESC, seq ASC`)
	if p.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, p.Limit)
	}

	return s.queryInstincts(ctx, db, sb.String(), args...)
}

// Delete removes an instinct. Returns false when the ID does not exist.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	seq, err := parseInstinctID(id)
	if err != nil {
		return false, err
	}
	db, err := s.db(ctx)
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM instincts WHERE seq = ?`, seq)
	if err != nil {
		return false, fmt.Errorf("delete instinct: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AdjustConfidence shifts an instinct's base confidence by delta,
// clamped to [0, 1].
func (s *Store) AdjustConfidence(ctx context.Context, id string, delta float64) error {
	seq, err := parseInstinctID(id)
	if err != nil {
		return err
	}
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE instincts SET confidence = MAX(0.0, MIN(1.0, confidence + ?)), updated_at = ? WHERE seq = ?`,
		delta, time.Now().UTC().Format(time.RFC3339Nano), seq)
	if err != nil {
		return fmt.Errorf("adjust instinct confidence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkTriggered records that the instincts fired: bumps the occurrence
// count and stamps last_triggered. Unknown IDs are skipped.
func (s *Store) MarkTriggered(ctx context.Context, ids ...string) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		seq, err := parseInstinctID(id)
		if err != nil {
			continue
		}
		if _, err := db.ExecContext(ctx,
			`UPDATE instincts SET occurrence_count = occurrence_count + 1, last_triggered = ?, updated_at = ? WHERE seq = ?`,
			now, now, seq); err != nil {
			return fmt.Errorf("mark instinct %s triggered: %w", id, err)
		}
	}
	return nil
}

// RecordOutcome folds one observed outcome into the success rate as a
// moving average: new = 0.2*outcome + 0.8*current.
func (s *Store) RecordOutcome(ctx context.Context, id string, success bool) error {
	seq, err := parseInstinctID(id)
	if err != nil {
		return err
	}
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	res, err := db.ExecContext(ctx,
		`UPDATE instincts SET success_rate = 0.2 * ? + 0.8 * success_rate, updated_at = ? WHERE seq = ?`,
		outcome, time.Now().UTC().Format(time.RFC3339Nano), seq)
	if err != nil {
		return fmt.Errorf("record instinct outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// FindSimilar returns instincts whose trigger or action shares words
// with the text, best match first. Used both for reinforcement lookups
// and for context-aware retrieval.
func (s *Store) FindSimilar(ctx context.Context, text string, limit int) ([]Instinct, error) {
	words := tokenize(text)
	if len(words) == 0 {
		return nil, nil
	}
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	all, err := s.queryInstincts(ctx, db, selectInstinct+` ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}

	type scored struct {
		inst  Instinct
		score int
	}
	var matches []scored
	for _, inst := range all {
		instWords := tokenize(inst.Trigger + " " + inst.Action)
		score := 0
		for w := range words {
			if instWords[w] {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{inst, score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].inst.Confidence > matches[j].inst.Confidence
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]Instinct, len(matches))
	for i, m := range matches {
		out[i] = m.inst
	}
	return out, nil
}

// Count returns the total number of instincts in the workspace.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instincts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count instincts: %w", err)
	}
	return n, nil
}

const selectInstinct = `SELECT seq, "trigger", action, domain, confidence, source, occurrence_count, last_triggered, success_rate, created_at, updated_at
	FROM instincts`

func (s *Store) bySeq(ctx context.Context, db *sql.DB, seq int64) (*Instinct, error) {
	rows, err := s.queryInstincts(ctx, db, selectInstinct+` WHERE seq = ?`, seq)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Store) queryInstincts(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]Instinct, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query instincts: %w", err)
	}
	defer rows.Close()

	var out []Instinct
	for rows.Next() {
		var (
			seq           int64
			inst          Instinct
			lastTriggered sql.NullString
			createdAt     string
			updatedAt     string
		)
		if err := rows.Scan(&seq, &inst.Trigger, &inst.Action, &inst.Domain, &inst.Confidence,
			&inst.Source, &inst.OccurrenceCount, &lastTriggered, &inst.SuccessRate,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan instinct: %w", err)
		}
		inst.ID = formatInstinctID(seq)
		if lastTriggered.Valid {
			if t, err := time.Parse(time.RFC3339Nano, lastTriggered.String); err == nil {
				inst.LastTriggered = &t
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			inst.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			inst.UpdatedAt = t
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

var wordPattern = regexp.MustCompile(`[a-z0-9']+`)

// tokenize lowercases text and returns its words of three or more
// characters as a set.
func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) >= 3 {
			words[w] = true
		}
	}
	return words
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
