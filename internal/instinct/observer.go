package instinct

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// Detection patterns for automatic learning. Corrections and
// repetitions map to a single canonical instinct each; verbosity and
// format preferences carry the matched preference into the instinct.
var (
	correctionTriggers = compileAll(
		`no, i meant`,
		`actually,?`,
		`wait, that's not`,
		`let me clarify`,
		`i want you to instead`,
		`not quite, `,
	)

	repetitionTriggers = compileAll(
		`(again|once more|repeat)`,
		`like you did before`,
		`same as last time`,
		`remember when you`,
	)

	verbosityPatterns = []preferencePattern{
		{regexp.MustCompile(`(?i)(be brief|concise|short|to the point)`), "concise"},
		{regexp.MustCompile(`(?i)(more detail|explain more|elaborate|expand)`), "detailed"},
		{regexp.MustCompile(`(?i)(keep it simple|don't over-explain)`), "simple"},
	}

	formatPatterns = []preferencePattern{
		{regexp.MustCompile(`(?i)(json|csv|markdown|table)`), "format_preference"},
		{regexp.MustCompile(`(?i)(bullet points|list format)`), "bullets"},
		{regexp.MustCompile(`(?i)(paragraph|prose|narrative)`), "prose"},
	}

	satisfactionPatterns = compileAll(
		`\b(perfect|great|awesome|thanks|exactly what)\b`,
		`\b(that's what I needed|just what I wanted|love it)\b`,
		`\b(amazing|brilliant|excellent)\b`,
		`👍|✅|🎉|😊`,
	)

	frustrationPatterns = compileAll(
		`\b(nevermind|forget it|whatever)\b`,
		`^(ok|okay|fine)[!.]*$`,
		`\?+$`,
	)
)

type preferencePattern struct {
	re   *regexp.Regexp
	pref string
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, message string) bool {
	for _, re := range patterns {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}

var verbosityActions = map[string]string{
	"concise":  "be brief and concise, skip detailed explanations",
	"detailed": "provide thorough explanations with examples",
	"simple":   "use simple language and avoid jargon",
}

// Observer detects behavioral patterns in user messages and records
// them as instincts.
type Observer struct {
	store *Store
}

func NewObserver(store *Store) *Observer {
	return &Observer{store: store}
}

// ObserveMessage scans a user message for corrections, repetition
// requests, and verbosity/format preferences, creating or reinforcing
// instincts accordingly. Returns the IDs it touched.
func (o *Observer) ObserveMessage(ctx context.Context, userMessage string) ([]string, error) {
	var detected []string

	if matchesAny(correctionTriggers, userMessage) {
		ids, err := o.handleCorrection(ctx)
		if err != nil {
			return detected, err
		}
		detected = append(detected, ids...)
	}

	if matchesAny(repetitionTriggers, userMessage) {
		ids, err := o.handleRepetition(ctx)
		if err != nil {
			return detected, err
		}
		detected = append(detected, ids...)
	}

	ids, err := o.detectVerbosity(ctx, userMessage)
	if err != nil {
		return detected, err
	}
	detected = append(detected, ids...)

	ids, err = o.detectFormat(ctx, userMessage)
	if err != nil {
		return detected, err
	}
	detected = append(detected, ids...)

	return detected, nil
}

func (o *Observer) handleCorrection(ctx context.Context) ([]string, error) {
	existing, err := o.store.List(ctx, ListParams{Domain: DomainCommunication})
	if err != nil {
		return nil, err
	}
	for _, inst := range existing {
		if strings.Contains(strings.ToLower(inst.Trigger), "correct") {
			return o.reinforce(ctx, inst.ID)
		}
	}

	created, err := o.store.Create(ctx, CreateParams{
		Trigger:    "user corrects previous response",
		Action:     "acknowledge correction immediately, apologize, and adjust approach",
		Domain:     DomainCommunication,
		Source:     "correction-detected",
		Confidence: 0.7,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("instinct.created", "id", created.ID, "domain", created.Domain, "source", created.Source)
	return []string{created.ID}, nil
}

func (o *Observer) handleRepetition(ctx context.Context) ([]string, error) {
	existing, err := o.store.List(ctx, ListParams{Domain: DomainWorkflow})
	if err != nil {
		return nil, err
	}
	for _, inst := range existing {
		trigger := strings.ToLower(inst.Trigger)
		if strings.Contains(trigger, "repeat") || strings.Contains(trigger, "again") {
			return o.reinforce(ctx, inst.ID)
		}
	}

	created, err := o.store.Create(ctx, CreateParams{
		Trigger:    "user requests repetition",
		Action:     "repeat the same action or follow the same pattern as before",
		Domain:     DomainWorkflow,
		Source:     "repetition-confirmed",
		Confidence: 0.6,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("instinct.created", "id", created.ID, "domain", created.Domain, "source", created.Source)
	return []string{created.ID}, nil
}

func (o *Observer) detectVerbosity(ctx context.Context, message string) ([]string, error) {
	for _, p := range verbosityPatterns {
		if !p.re.MatchString(message) {
			continue
		}
		existing, err := o.store.List(ctx, ListParams{Domain: DomainCommunication})
		if err != nil {
			return nil, err
		}
		for _, inst := range existing {
			if mentionsPreference(inst, p.pref) {
				return o.reinforce(ctx, inst.ID)
			}
		}

		action, ok := verbosityActions[p.pref]
		if !ok {
			action = "respond in a " + p.pref + " manner"
		}
		created, err := o.store.Create(ctx, CreateParams{
			Trigger:    "user prefers " + p.pref + " responses",
			Action:     action,
			Domain:     DomainCommunication,
			Source:     "preference-expressed",
			Confidence: 0.7,
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("instinct.created", "id", created.ID, "domain", created.Domain, "source", created.Source)
		// One instinct per message.
		return []string{created.ID}, nil
	}
	return nil, nil
}

func (o *Observer) detectFormat(ctx context.Context, message string) ([]string, error) {
	for _, p := range formatPatterns {
		if !p.re.MatchString(message) {
			continue
		}
		existing, err := o.store.List(ctx, ListParams{Domain: DomainFormat})
		if err != nil {
			return nil, err
		}
		for _, inst := range existing {
			if mentionsPreference(inst, p.pref) {
				return o.reinforce(ctx, inst.ID)
			}
		}

		var action string
		switch p.pref {
		case "bullets":
			action = "use bullet points for lists and structured content"
		case "prose":
			action = "use paragraph/prose format with full sentences"
		default:
			action = "use " + p.pref + " format by default"
		}
		created, err := o.store.Create(ctx, CreateParams{
			Trigger:    "user prefers " + p.pref + " format",
			Action:     action,
			Domain:     DomainFormat,
			Source:     "preference-expressed",
			Confidence: 0.8,
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("instinct.created", "id", created.ID, "domain", created.Domain, "source", created.Source)
		return []string{created.ID}, nil
	}
	return nil, nil
}

// mentionsPreference reports whether an existing instinct already
// covers the detected preference. Triggers name the preference
// verbatim ("user prefers bullets format"), the action wording may
// not, so both are checked.
func mentionsPreference(inst Instinct, pref string) bool {
	return strings.Contains(strings.ToLower(inst.Action), pref) ||
		strings.Contains(strings.ToLower(inst.Trigger), pref)
}

func (o *Observer) reinforce(ctx context.Context, id string) ([]string, error) {
	if err := o.store.AdjustConfidence(ctx, id, 0.05); err != nil {
		return nil, err
	}
	if err := o.store.MarkTriggered(ctx, id); err != nil {
		return nil, err
	}
	slog.Debug("instinct.reinforced", "id", id)
	return []string{id}, nil
}

// ObserveOutcome checks whether the latest user message signals
// satisfaction or frustration with the previous response and folds the
// outcome into the success rate of every instinct that was applied to
// it. Returns the IDs it updated.
func (o *Observer) ObserveOutcome(ctx context.Context, userMessage string, appliedIDs []string) ([]string, error) {
	if len(appliedIDs) == 0 {
		return nil, nil
	}

	if matchesAny(satisfactionPatterns, userMessage) {
		updated, err := o.recordAll(ctx, appliedIDs, true)
		if len(updated) > 0 {
			slog.Info("instinct.satisfaction", "updated", len(updated))
		}
		return updated, err
	}

	if matchesAny(frustrationPatterns, userMessage) {
		updated, err := o.recordAll(ctx, appliedIDs, false)
		if len(updated) > 0 {
			slog.Warn("instinct.frustration", "updated", len(updated))
		}
		return updated, err
	}

	return nil, nil
}

func (o *Observer) recordAll(ctx context.Context, ids []string, success bool) ([]string, error) {
	var updated []string
	for _, id := range ids {
		if err := o.store.RecordOutcome(ctx, id, success); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return updated, err
		}
		updated = append(updated, id)
	}
	return updated, nil
}
