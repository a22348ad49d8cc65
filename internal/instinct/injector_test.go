package instinct

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestFinalConfidence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	daysAgo := func(d int) *time.Time {
		ts := now.AddDate(0, 0, -d)
		return &ts
	}

	tests := []struct {
		name string
		inst Instinct
		want float64
	}{
		{
			name: "never triggered takes the default penalty",
			inst: Instinct{Confidence: 0.7, SuccessRate: 1.0},
			want: 0.6,
		},
		{
			name: "frequency boost caps at 0.15",
			inst: Instinct{Confidence: 0.7, SuccessRate: 1.0, OccurrenceCount: 10, LastTriggered: daysAgo(0)},
			want: 0.85,
		},
		{
			name: "staleness penalty caps at -0.2",
			inst: Instinct{Confidence: 0.7, SuccessRate: 1.0, LastTriggered: daysAgo(30)},
			want: 0.5,
		},
		{
			name: "staleness grows per day",
			inst: Instinct{Confidence: 0.7, SuccessRate: 1.0, LastTriggered: daysAgo(5)},
			want: 0.65,
		},
		{
			name: "success multiplier floors at 0.8",
			inst: Instinct{Confidence: 0.7, SuccessRate: 0.3},
			want: 0.48,
		},
		{
			name: "success rate scales the total",
			inst: Instinct{Confidence: 0.7, SuccessRate: 0.9},
			want: 0.54,
		},
		{
			name: "clamped to 1.0",
			inst: Instinct{Confidence: 1.0, SuccessRate: 1.0, OccurrenceCount: 5, LastTriggered: daysAgo(0)},
			want: 1.0,
		},
		{
			name: "clamped to 0.0",
			inst: Instinct{Confidence: 0.05, SuccessRate: 1.0},
			want: 0.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FinalConfidence(tt.inst, now)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("FinalConfidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveConflicts(t *testing.T) {
	tests := []struct {
		name   string
		ranked []Instinct
		want   []string
	}{
		{
			name: "concise overrides detailed",
			ranked: []Instinct{
				{ID: "ins-1", Domain: DomainCommunication, Action: "be concise and skip fluff", Confidence: 0.8},
				{ID: "ins-2", Domain: DomainCommunication, Action: "provide detailed explanations with examples", Confidence: 0.7},
			},
			want: []string{"ins-1"},
		},
		{
			name: "rule needs enough confidence to fire",
			ranked: []Instinct{
				{ID: "ins-1", Domain: DomainCommunication, Action: "be concise and skip fluff", Confidence: 0.5},
				{ID: "ins-2", Domain: DomainCommunication, Action: "provide detailed explanations with examples", Confidence: 0.4},
			},
			want: []string{"ins-1", "ins-2"},
		},
		{
			name: "frustrated user suppresses brief replies",
			ranked: []Instinct{
				{ID: "ins-1", Domain: DomainEmotional, Action: "user seems frustrated, slow down and confirm", Confidence: 0.5},
				{ID: "ins-2", Domain: DomainCommunication, Action: "keep replies brief", Confidence: 0.9},
			},
			want: []string{"ins-1"},
		},
		{
			name: "urgent timing beats thorough explanations",
			ranked: []Instinct{
				{ID: "ins-1", Domain: DomainTiming, Action: "treat requests as urgent", Confidence: 0.7},
				{ID: "ins-2", Domain: DomainCommunication, Action: "give thorough walkthroughs", Confidence: 0.65},
			},
			want: []string{"ins-1"},
		},
		{
			name: "unrelated domains untouched",
			ranked: []Instinct{
				{ID: "ins-1", Domain: DomainFormat, Action: "use json format by default", Confidence: 0.9},
				{ID: "ins-2", Domain: DomainWorkflow, Action: "run checks before answering", Confidence: 0.8},
			},
			want: []string{"ins-1", "ins-2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := resolveConflicts(tt.ranked)
			var got []string
			for _, inst := range kept {
				got = append(got, inst.ID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("kept %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("kept %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestBuildContext(t *testing.T) {
	s, ctx := testStore(t)
	inj := NewInjector(s)

	format := mustCreate(t, s, ctx, CreateParams{
		Trigger: "user prefers json format", Action: "use json format by default",
		Domain: DomainFormat, Confidence: 0.85,
	})
	strong := mustCreate(t, s, ctx, CreateParams{
		Trigger: "user asks for status", Action: "reply with a summary first",
		Domain: DomainCommunication, Confidence: 0.7,
	})
	weak := mustCreate(t, s, ctx, CreateParams{
		Trigger: "user greets", Action: "greet back with one word",
		Domain: DomainCommunication, Confidence: 0.55,
	})

	section, applied, err := inj.BuildContext(ctx, "", 0.4, 3)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}

	want := `## Behavioral Patterns

Apply these learned preferences from your interactions:

### Communication
- reply with a summary first
- greet back with one word (when: user greets)

### Format
- **use json format by default** (always apply)
`
	if section != want {
		t.Errorf("section = %q, want %q", section, want)
	}

	wantApplied := []string{strong.ID, weak.ID, format.ID}
	if len(applied) != len(wantApplied) {
		t.Fatalf("applied = %v, want %v", applied, wantApplied)
	}
	for i := range applied {
		if applied[i] != wantApplied[i] {
			t.Fatalf("applied = %v, want %v", applied, wantApplied)
		}
	}
}

func TestBuildContextEmpty(t *testing.T) {
	s, ctx := testStore(t)
	inj := NewInjector(s)

	section, applied, err := inj.BuildContext(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if section != "" || len(applied) != 0 {
		t.Errorf("BuildContext on empty store = %q, %v", section, applied)
	}
}

func TestBuildContextFiltersByFinalConfidence(t *testing.T) {
	s, ctx := testStore(t)
	inj := NewInjector(s)

	// Base 0.55 minus the never-triggered penalty lands at 0.45,
	// below the default floor.
	mustCreate(t, s, ctx, CreateParams{
		Trigger: "user greets", Action: "greet back with one word",
		Domain: DomainCommunication, Confidence: 0.55,
	})

	section, applied, err := inj.BuildContext(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if section != "" || len(applied) != 0 {
		t.Errorf("weak instinct leaked into context: %q, %v", section, applied)
	}
}

func TestBuildContextMaxPerDomain(t *testing.T) {
	s, ctx := testStore(t)
	inj := NewInjector(s)

	mustCreate(t, s, ctx, CreateParams{Trigger: "a", Action: "first rule", Domain: DomainWorkflow, Confidence: 0.9})
	mustCreate(t, s, ctx, CreateParams{Trigger: "b", Action: "second rule", Domain: DomainWorkflow, Confidence: 0.8})
	mustCreate(t, s, ctx, CreateParams{Trigger: "c", Action: "third rule", Domain: DomainWorkflow, Confidence: 0.7})

	section, applied, err := inj.BuildContext(ctx, "", 0.4, 2)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("applied = %v, want 2 instincts", applied)
	}
	if !strings.Contains(section, "first rule") || !strings.Contains(section, "second rule") {
		t.Errorf("section missing strongest instincts: %q", section)
	}
	if strings.Contains(section, "third rule") {
		t.Errorf("section includes instinct beyond the domain cap: %q", section)
	}
}

func TestBuildContextMatchesUserMessage(t *testing.T) {
	s, ctx := testStore(t)
	inj := NewInjector(s)

	mustCreate(t, s, ctx, CreateParams{
		Trigger: "user asks about deployment status", Action: "check the pipeline first",
		Domain: DomainWorkflow, Confidence: 0.7,
	})
	mustCreate(t, s, ctx, CreateParams{
		Trigger: "user requests weather", Action: "include the forecast",
		Domain: DomainWorkflow, Confidence: 0.7,
	})

	section, applied, err := inj.BuildContext(ctx, "how is deployment going", 0.4, 3)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if !strings.Contains(section, "check the pipeline first") {
		t.Errorf("section missing matching instinct: %q", section)
	}
	if strings.Contains(section, "include the forecast") {
		t.Errorf("section includes unrelated instinct: %q", section)
	}
	if len(applied) != 1 {
		t.Errorf("applied = %v, want one instinct", applied)
	}
}

func TestSummarize(t *testing.T) {
	s, ctx := testStore(t)
	inj := NewInjector(s)

	mustCreate(t, s, ctx, CreateParams{Trigger: "a", Action: "x", Domain: DomainCommunication, Confidence: 0.8})
	mustCreate(t, s, ctx, CreateParams{Trigger: "b", Action: "y", Domain: DomainCommunication, Confidence: 0.6})
	mustCreate(t, s, ctx, CreateParams{Trigger: "c", Action: "z", Domain: DomainFormat, Confidence: 0.8})

	sum, err := inj.Summarize(ctx, 0.5)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Total != 3 {
		t.Errorf("Total = %d, want 3", sum.Total)
	}
	if sum.ByDomain[DomainCommunication] != 2 || sum.ByDomain[DomainFormat] != 1 {
		t.Errorf("ByDomain = %v", sum.ByDomain)
	}
	want := (0.8 + 0.6 + 0.8) / 3
	if math.Abs(sum.AvgConfidence-want) > 1e-9 {
		t.Errorf("AvgConfidence = %v, want %v", sum.AvgConfidence, want)
	}
}
