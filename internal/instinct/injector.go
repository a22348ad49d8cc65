package instinct

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Injection defaults.
const (
	DefaultMinConfidence = 0.5
	DefaultMaxPerDomain  = 3
)

// conflictRule removes contradictory instincts: when a kept instinct
// matches Domain/Keyword at or above MinConfidence, any later instinct
// matching one of Overrides is dropped. Rules apply in order.
type conflictRule struct {
	Domain        string
	Keyword       string
	MinConfidence float64
	Overrides     []conflictTarget
}

type conflictTarget struct {
	Domain  string
	Keyword string
}

var conflictRules = []conflictRule{
	{
		Domain: DomainTiming, Keyword: "urgent", MinConfidence: 0.6,
		Overrides: []conflictTarget{
			{DomainCommunication, "detailed"},
			{DomainCommunication, "thorough"},
			{DomainCommunication, "explain"},
			{"learning_style", "explain"},
		},
	},
	{
		Domain: DomainCommunication, Keyword: "concise", MinConfidence: 0.6,
		Overrides: []conflictTarget{
			{DomainCommunication, "detailed"},
			{DomainCommunication, "elaborate"},
			{DomainCommunication, "thorough"},
		},
	},
	{
		Domain: DomainCommunication, Keyword: "brief", MinConfidence: 0.6,
		Overrides: []conflictTarget{
			{DomainCommunication, "detailed"},
			{DomainCommunication, "elaborate"},
		},
	},
	{
		Domain: DomainEmotional, Keyword: "frustrated", MinConfidence: 0.5,
		Overrides: []conflictTarget{
			{DomainWorkflow, "standard"},
			{DomainCommunication, "brief"},
		},
	},
	{
		Domain: DomainEmotional, Keyword: "confused", MinConfidence: 0.5,
		Overrides: []conflictTarget{
			{DomainCommunication, "brief"},
			{DomainCommunication, "concise"},
		},
	},
}

// FinalConfidence computes the effective confidence used at injection
// time. The stored base score is boosted by how often the instinct has
// fired, penalized by how long ago, and scaled by its success rate:
//
//	freq  = min(0.15, 0.03 * occurrence_count)
//	stale = max(-0.20, -0.01 * days_since_last_trigger), -0.10 if never
//	final = clamp((base + freq + stale) * max(0.8, success_rate), 0, 1)
func FinalConfidence(inst Instinct, now time.Time) float64 {
	freq := 0.03 * float64(inst.OccurrenceCount)
	if freq > 0.15 {
		freq = 0.15
	}

	stale := -0.1
	if inst.LastTriggered != nil {
		days := int(now.Sub(*inst.LastTriggered).Hours() / 24)
		stale = -0.01 * float64(days)
		if stale < -0.2 {
			stale = -0.2
		}
	}

	multiplier := inst.SuccessRate
	if multiplier < 0.8 {
		multiplier = 0.8
	}

	return clampConfidence((inst.Confidence + freq + stale) * multiplier)
}

// Injector selects the strongest applicable instincts and renders them
// as a prompt section.
type Injector struct {
	store *Store
}

func NewInjector(store *Store) *Injector {
	return &Injector{store: store}
}

// BuildContext assembles the behavioral-patterns prompt section for
// the workspace bound to ctx. With a user message it prefers instincts
// matching the message, falling back to everything above the floor.
// Returns the rendered section (empty when nothing qualifies) and the
// IDs of the instincts it included, for outcome tracking.
func (inj *Injector) BuildContext(ctx context.Context, userMessage string, minConfidence float64, maxPerDomain int) (string, []string, error) {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if maxPerDomain <= 0 {
		maxPerDomain = DefaultMaxPerDomain
	}

	var (
		instincts []Instinct
		err       error
	)
	if userMessage != "" {
		instincts, err = inj.store.FindSimilar(ctx, userMessage, maxPerDomain*6)
		if err != nil {
			return "", nil, err
		}
	}
	if len(instincts) == 0 {
		instincts, err = inj.store.List(ctx, ListParams{MinConfidence: minConfidence})
		if err != nil {
			return "", nil, err
		}
	}
	if len(instincts) == 0 {
		return "", nil, nil
	}

	now := time.Now().UTC()
	type scored struct {
		inst  Instinct
		final float64
	}
	var qualified []scored
	for _, inst := range instincts {
		final := FinalConfidence(inst, now)
		if final >= minConfidence {
			qualified = append(qualified, scored{inst, final})
		}
	}
	if len(qualified) == 0 {
		return "", nil, nil
	}
	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].final > qualified[j].final
	})

	ranked := make([]Instinct, len(qualified))
	for i, q := range qualified {
		ranked[i] = q.inst
	}
	kept := resolveConflicts(ranked)

	byDomain := make(map[string][]Instinct)
	for _, inst := range kept {
		byDomain[inst.Domain] = append(byDomain[inst.Domain], inst)
	}
	domains := make([]string, 0, len(byDomain))
	for domain := range byDomain {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	var (
		sections []string
		applied  []string
	)
	sections = append(sections,
		"## Behavioral Patterns",
		"",
		"Apply these learned preferences from your interactions:",
		"")

	for _, domain := range domains {
		group := byDomain[domain]
		if len(group) > maxPerDomain {
			group = group[:maxPerDomain]
		}
		sections = append(sections, "### "+titleCase(strings.ReplaceAll(domain, "_", " ")))
		for _, inst := range group {
			switch {
			case inst.Confidence >= 0.8:
				sections = append(sections, "- **"+inst.Action+"** (always apply)")
			case inst.Confidence >= 0.6:
				sections = append(sections, "- "+inst.Action)
			default:
				sections = append(sections, "- "+inst.Action+" (when: "+inst.Trigger+")")
			}
			applied = append(applied, inst.ID)
		}
		sections = append(sections, "")
	}

	return strings.Join(sections, "\n"), applied, nil
}

// resolveConflicts walks the ranked list and drops any instinct that a
// stronger, already-kept instinct overrides.
func resolveConflicts(instincts []Instinct) []Instinct {
	var kept []Instinct
	removed := 0

	for _, inst := range instincts {
		action := strings.ToLower(inst.Action)
		keep := true

	keptLoop:
		for _, ki := range kept {
			keptAction := strings.ToLower(ki.Action)
			for _, rule := range conflictRules {
				if ki.Domain != rule.Domain ||
					!strings.Contains(keptAction, rule.Keyword) ||
					ki.Confidence < rule.MinConfidence {
					continue
				}
				for _, ov := range rule.Overrides {
					if inst.Domain == ov.Domain && strings.Contains(action, ov.Keyword) {
						keep = false
						slog.Debug("instinct.conflict_removed",
							"removed", inst.ID, "by", ki.ID,
							"rule", rule.Domain+":"+rule.Keyword)
						break keptLoop
					}
				}
			}
		}

		if keep {
			kept = append(kept, inst)
		} else {
			removed++
		}
	}

	if removed > 0 {
		slog.Info("instinct.conflicts_resolved", "removed", removed)
	}
	return kept
}

// Summary reports aggregate statistics about the workspace's instincts
// at or above the confidence floor.
type Summary struct {
	Total         int            `json:"total"`
	ByDomain      map[string]int `json:"by_domain"`
	AvgConfidence float64        `json:"avg_confidence"`
	MinConfidence float64        `json:"min_confidence"`
}

func (inj *Injector) Summarize(ctx context.Context, minConfidence float64) (*Summary, error) {
	instincts, err := inj.store.List(ctx, ListParams{MinConfidence: minConfidence})
	if err != nil {
		return nil, err
	}

	byDomain := make(map[string]int)
	total := 0.0
	for _, inst := range instincts {
		byDomain[inst.Domain]++
		total += inst.Confidence
	}
	avg := 0.0
	if len(instincts) > 0 {
		avg = total / float64(len(instincts))
	}
	return &Summary{
		Total:         len(instincts),
		ByDomain:      byDomain,
		AvgConfidence: avg,
		MinConfidence: minConfidence,
	}, nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
