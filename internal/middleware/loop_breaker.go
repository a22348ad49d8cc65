package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

// ToolLoopBreaker detects an agent stuck re-calling the same tool with
// near-identical arguments and refuses the call with guidance instead of
// executing it. Once a tool trips the breaker it stays blocked for that
// thread until a call arrives with a different argument signature.
//
// The call history fills through Record, which the tool dispatcher
// invokes for every executed call; the BeforeTools hook only reads it.
type ToolLoopBreaker struct {
	maxRepeats int
	threshold  float64
	window     time.Duration

	mu      sync.Mutex
	history map[string][]loopCall              // thread key -> recent calls
	blocked map[string]map[string]interface{} // thread key + tool -> tripping arguments
}

type loopCall struct {
	tool string
	args map[string]interface{}
	at   time.Time
}

// NewToolLoopBreaker builds the breaker. Zero values select the defaults:
// 3 similar calls, 0.7 similarity, 30s window.
func NewToolLoopBreaker(maxRepeats int, threshold float64, window time.Duration) *ToolLoopBreaker {
	if maxRepeats <= 0 {
		maxRepeats = 3
	}
	if threshold <= 0 {
		threshold = 0.7
	}
	if window <= 0 {
		window = 30 * time.Second
	}
	return &ToolLoopBreaker{
		maxRepeats: maxRepeats,
		threshold:  threshold,
		window:     window,
		history:    make(map[string][]loopCall),
		blocked:    make(map[string]map[string]interface{}),
	}
}

func (m *ToolLoopBreaker) Name() string { return "tool_loop_breaker" }

func (m *ToolLoopBreaker) BeforeTools(ctx context.Context, run *Run, batch *ToolBatch) error {
	now := time.Now()
	for i, call := range batch.Calls {
		if batch.Results[i] != nil {
			continue
		}
		if guidance := m.check(run.ThreadKey, call, now); guidance != "" {
			slog.Warn("middleware.loop_detected", "thread", run.ThreadKey, "tool", call.Name)
			batch.Results[i] = &tools.Result{ForLLM: guidance, IsError: true, Silent: true}
		}
	}
	return nil
}

// Record appends an executed call to the thread's history. Wired into
// the tool dispatcher as its CallRecorder, so every dispatched call
// lands in the buffer exactly once.
func (m *ToolLoopBreaker) Record(ctx context.Context, tool string, args map[string]interface{}) {
	m.record(store.ThreadIDFromContext(ctx), tool, args, time.Now())
}

func (m *ToolLoopBreaker) record(threadKey, tool string, args map[string]interface{}, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[threadKey] = append(m.history[threadKey], loopCall{tool: tool, args: args, at: at})
}

// check returns guidance when the call is part of a loop, empty when it
// may proceed.
func (m *ToolLoopBreaker) check(threadKey string, call providers.ToolCall, now time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	blockKey := threadKey + "\x00" + call.Name
	if blockArgs, ok := m.blocked[blockKey]; ok {
		if argsSimilarity(blockArgs, call.Arguments) >= m.threshold {
			return loopGuidance(call.Name)
		}
		delete(m.blocked, blockKey) // signature changed, lift the block
	}

	cutoff := now.Add(-m.window)
	recent := m.history[threadKey][:0]
	for _, prev := range m.history[threadKey] {
		if prev.at.After(cutoff) {
			recent = append(recent, prev)
		}
	}
	m.history[threadKey] = recent

	similar := 0
	for _, prev := range recent {
		if prev.tool == call.Name && argsSimilarity(prev.args, call.Arguments) >= m.threshold {
			similar++
		}
	}
	if similar >= m.maxRepeats {
		m.blocked[blockKey] = call.Arguments
		return loopGuidance(call.Name)
	}
	return ""
}

// argsSimilarity scores two argument maps in [0, 1], weighting value
// overlap over key overlap. Values compare by their string form.
func argsSimilarity(a, b map[string]interface{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	shared, matching := 0, 0
	total := len(b)
	for key, av := range a {
		bv, ok := b[key]
		if !ok {
			total++
			continue
		}
		shared++
		if fmt.Sprint(av) == fmt.Sprint(bv) {
			matching++
		}
	}

	keySim := float64(shared) / float64(total)
	valueSim := 0.0
	if shared > 0 {
		valueSim = float64(matching) / float64(shared)
	}
	return 0.3*keySim + 0.7*valueSim
}

// loopGuidance names the usual cause for the tools that loop most often.
func loopGuidance(tool string) string {
	var g string
	switch {
	case tool == "write_file":
		g = "LOOP DETECTED: Repeated attempts to write a file with similar content.\n\n" +
			"Common causes:\n" +
			"1. Passing a dict/object instead of a string for the content parameter\n" +
			"2. Writing JSON without converting it to a string first\n\n" +
			"Solution: Ensure content is a string. For JSON, pass it as a string like '{\"key\": \"value\"}'."
	case tool == "insert_tdb_table" || tool == "update_tdb_table":
		g = "LOOP DETECTED: Repeated attempts to write to a database table.\n\n" +
			"Common causes:\n" +
			"1. Data format mismatch (passing a dict instead of a JSON string)\n" +
			"2. Missing required columns\n" +
			"3. Incorrect WHERE clause format\n\n" +
			"Solution: Check that the data parameter is a properly formatted JSON string."
	case strings.Contains(strings.ToLower(tool), "search"):
		g = "LOOP DETECTED: Repeated searches with similar queries.\n\n" +
			"The search is not finding what is needed. Consider:\n" +
			"1. Trying different search terms\n" +
			"2. Using a different search tool\n" +
			"3. Answering from what is already known without searching"
	default:
		g = fmt.Sprintf("LOOP DETECTED: `%s` is being called repeatedly with similar parameters.\n\n"+
			"This suggests an issue with the tool parameters or approach.", tool)
	}
	return g + "\n\nThe task cannot be completed with the current approach. " +
		"Calls to this tool stay blocked until the arguments change; try a different approach or tool."
}
