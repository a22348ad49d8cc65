package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/memory"
	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// MemoryLearning mines the turn's user messages for durable facts and
// preferences after the agent completes. Extraction is rule-based; it
// errs toward saving nothing rather than saving noise.
type MemoryLearning struct {
	store   *memory.Store
	minConf float64
}

func NewMemoryLearning(store *memory.Store) *MemoryLearning {
	return &MemoryLearning{store: store, minConf: 0.6}
}

func (m *MemoryLearning) Name() string { return "memory_learning" }

func (m *MemoryLearning) AfterAgent(ctx context.Context, run *Run, msgs []providers.Message) error {
	if m.store == nil || len(msgs) < 2 {
		return nil
	}
	for _, msg := range msgs {
		if msg.Role != "user" {
			continue
		}
		for _, learned := range extractLearnings(msg.Content) {
			if learned.Confidence < m.minConf {
				continue
			}
			mem, err := m.store.Add(ctx, memory.AddParams{
				Content:    learned.Content,
				Type:       learned.Type,
				Confidence: learned.Confidence,
				Source:     learned.Source,
			})
			if err != nil {
				slog.Debug("middleware.memory_learn_failed", "error", err)
				continue
			}
			slog.Debug("middleware.memory_learned", "memory", mem.ID, "type", learned.Type)
		}
	}
	return nil
}

type learning struct {
	Content    string
	Type       string
	Confidence float64
	Source     string
}

// The indicator lists are broader than the extractors, so a detected
// signal can still yield nothing when no extractor pattern fits.
var (
	preferenceIndicators = []string{
		"i prefer", "i like", "i'd rather", "my preference",
		"always use", "never use", "please use",
	}
	preferenceExtractors = []string{"i prefer", "i like", "i'd rather", "my preference is"}

	factIndicators = []string{
		"i am", "i work", "my name is", "my role is",
		"i'm a", "i'm working on", "my project",
	}
	factExtractors = []string{"i am", "i work", "my role is", "i'm a"}
)

// extractLearnings mines one message for an expressed preference and a
// personal fact.
func extractLearnings(text string) []learning {
	lower := strings.ToLower(text)
	var found []learning

	if containsAny(lower, preferenceIndicators) {
		if pref := extractAfter(text, lower, preferenceExtractors); pref != "" {
			found = append(found, learning{
				Content:    "User prefers " + pref,
				Type:       memory.TypeProcedural,
				Confidence: 0.7,
				Source:     memory.SourceLearned,
			})
		}
	}
	if containsAny(lower, factIndicators) {
		if fact := extractFrom(text, lower, factExtractors); fact != "" {
			found = append(found, learning{
				Content:    fact,
				Type:       memory.TypeSemantic,
				Confidence: 0.8,
				Source:     memory.SourceExplicit,
			})
		}
	}
	return found
}

func containsAny(lower string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// extractAfter returns the text following the first indicator that
// yields a statement of plausible length.
func extractAfter(text, lower string, indicators []string) string {
	for _, ind := range indicators {
		idx := strings.Index(lower, ind)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(text[idx+len(ind):])
		if len(rest) > 10 && len(rest) < 200 {
			return rest
		}
	}
	return ""
}

// extractFrom returns the text from the first matching indicator onward,
// keeping the indicator itself ("I work at ..." reads as the fact).
func extractFrom(text, lower string, indicators []string) string {
	for _, ind := range indicators {
		idx := strings.Index(lower, ind)
		if idx < 0 {
			continue
		}
		frag := strings.TrimSpace(text[idx:])
		if len(frag) > 10 && len(frag) < 200 {
			return frag
		}
	}
	return ""
}
