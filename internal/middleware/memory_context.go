package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/memory"
	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// MemoryContext injects relevant long-term memories into the system
// prompt before each model call. The query is the last user message;
// candidates are ranked by keyword overlap weighted with confidence and
// recency.
type MemoryContext struct {
	store   *memory.Store
	limit   int
	minConf float64
	types   []string
}

// NewMemoryContext builds the injection middleware; limit <= 0 selects 10.
func NewMemoryContext(store *memory.Store, limit int) *MemoryContext {
	if limit <= 0 {
		limit = 10
	}
	return &MemoryContext{
		store:   store,
		limit:   limit,
		minConf: 0.7,
		types:   []string{memory.TypeSemantic, memory.TypeProcedural},
	}
}

func (m *MemoryContext) Name() string { return "memory_context" }

func (m *MemoryContext) BeforeModel(ctx context.Context, run *Run, req *Request) (*providers.ChatResponse, error) {
	if m.store == nil {
		return nil, nil
	}
	query := req.LastUserMessage()
	if query == "" {
		return nil, nil
	}

	memories, err := m.search(ctx, query)
	if err != nil {
		slog.Debug("middleware.memory_search_failed", "error", err)
		return nil, nil
	}
	if len(memories) == 0 {
		return nil, nil
	}

	req.Inserts = append(req.Inserts, formatMemoryContext(memories))

	ids := make([]string, len(memories))
	for i, mem := range memories {
		ids[i] = mem.ID
	}
	if err := m.store.Touch(ctx, ids...); err != nil {
		slog.Debug("middleware.memory_touch_failed", "error", err)
	}
	return nil, nil
}

// search ranks stored memories against the query. The store's substring
// search only hits when the whole message is contained in a memory, so
// the usual path scores the confident slice by keyword overlap.
func (m *MemoryContext) search(ctx context.Context, query string) ([]memory.Memory, error) {
	direct, err := m.store.Search(ctx, memory.SearchParams{
		Query:         query,
		Limit:         m.limit,
		MinConfidence: m.minConf,
		Types:         m.types,
	})
	if err != nil {
		return nil, err
	}
	if len(direct) > 0 {
		return direct, nil
	}

	words := queryWords(query)
	if len(words) == 0 {
		return nil, nil
	}
	all, err := m.store.All(ctx, m.minConf, m.types)
	if err != nil {
		return nil, err
	}

	type scored struct {
		mem   memory.Memory
		score float64
	}
	var ranked []scored
	for _, mem := range all {
		content := strings.ToLower(mem.Content)
		hits := 0
		for _, w := range words {
			if strings.Contains(content, w) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		overlap := float64(hits) / float64(len(words))
		ranked = append(ranked, scored{mem: mem, score: overlap * mem.Confidence * recencyFactor(mem)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > m.limit {
		ranked = ranked[:m.limit]
	}

	out := make([]memory.Memory, len(ranked))
	for i, s := range ranked {
		out[i] = s.mem
	}
	return out, nil
}

// recencyFactor decays gently with age since the memory was last used,
// floored at 0.5 so old high-confidence memories still surface.
func recencyFactor(mem memory.Memory) float64 {
	ref := mem.CreatedAt
	if mem.LastAccessed != nil && mem.LastAccessed.After(ref) {
		ref = *mem.LastAccessed
	}
	days := time.Since(ref).Hours() / 24
	factor := 1.0 - days/365
	if factor < 0.5 {
		factor = 0.5
	}
	return factor
}

var queryWordPattern = regexp.MustCompile(`[a-z0-9']+`)

var queryStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "you": true, "your": true,
	"with": true, "that": true, "this": true, "have": true, "has": true,
	"was": true, "are": true, "what": true, "when": true, "where": true,
	"how": true, "why": true, "can": true, "could": true, "would": true,
	"should": true, "about": true, "just": true, "like": true,
	"want": true, "need": true, "please": true,
}

// queryWords extracts the content-bearing words of a message.
func queryWords(query string) []string {
	var words []string
	for _, w := range queryWordPattern.FindAllString(strings.ToLower(query), -1) {
		if len(w) < 3 || queryStopwords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

var memoryTypeLabels = map[string]string{
	memory.TypeSemantic:   "Fact",
	memory.TypeEpisodic:   "Event",
	memory.TypeProcedural: "Rule",
}

// formatMemoryContext renders the injected block. High-confidence
// memories get a bold label so the model treats them as settled.
func formatMemoryContext(memories []memory.Memory) string {
	lines := []string{"## User Context (from memory)", ""}
	for _, mem := range memories {
		label, ok := memoryTypeLabels[mem.Type]
		if !ok {
			label = mem.Type
		}
		if mem.Confidence >= 0.9 {
			lines = append(lines, fmt.Sprintf("- **%s**: %s", label, mem.Content))
		} else {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, mem.Content))
		}
	}
	return strings.Join(lines, "\n")
}
