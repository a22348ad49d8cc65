package middleware

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/goaide/internal/instinct"
	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// InstinctInjector observes each user message for behavioral patterns
// and appends the applicable instincts to the system prompt. The IDs
// injected in one turn feed outcome tracking when the next user message
// arrives: satisfaction reinforces them, frustration dampens them.
type InstinctInjector struct {
	observer *instinct.Observer
	injector *instinct.Injector

	mu      sync.Mutex
	applied map[string][]string // thread key -> instincts applied last turn
}

func NewInstinctInjector(store *instinct.Store) *InstinctInjector {
	return &InstinctInjector{
		observer: instinct.NewObserver(store),
		injector: instinct.NewInjector(store),
		applied:  make(map[string][]string),
	}
}

func (m *InstinctInjector) Name() string { return "instinct_injector" }

func (m *InstinctInjector) BeforeModel(ctx context.Context, run *Run, req *Request) (*providers.ChatResponse, error) {
	userMsg := req.LastUserMessage()
	if userMsg == "" {
		return nil, nil
	}

	// Observation happens once per turn, not once per model call. The
	// previous turn's applied instincts get their outcome first so a
	// "perfect, thanks" reinforces what was actually in play.
	if run.Once("instinct.observe") {
		if prev := m.lastApplied(run.ThreadKey); len(prev) > 0 {
			if _, err := m.observer.ObserveOutcome(ctx, userMsg, prev); err != nil {
				slog.Debug("middleware.instinct_outcome_failed", "error", err)
			}
		}
		if _, err := m.observer.ObserveMessage(ctx, userMsg); err != nil {
			slog.Debug("middleware.instinct_observe_failed", "error", err)
		}
	}

	section, applied, err := m.injector.BuildContext(ctx, userMsg, 0, 0)
	if err != nil {
		slog.Debug("middleware.instinct_context_failed", "error", err)
		return nil, nil
	}
	m.setApplied(run.ThreadKey, applied)
	if section != "" {
		req.Inserts = append(req.Inserts, section)
	}
	return nil, nil
}

func (m *InstinctInjector) lastApplied(threadKey string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[threadKey]
}

func (m *InstinctInjector) setApplied(threadKey string, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) == 0 {
		delete(m.applied, threadKey)
		return
	}
	m.applied[threadKey] = ids
}
