package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/store/mem"
)

type fakeInvoker struct {
	prompts []string
	replies map[string]string
	failOn  string
}

func (f *fakeInvoker) RunFlowStep(_ context.Context, step AgentSpec, prompt string, _ MiddlewareConfig) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if step.AgentID == f.failOn {
		return "", fmt.Errorf("model unavailable")
	}
	if reply, ok := f.replies[step.AgentID]; ok {
		return reply, nil
	}
	return "output of " + step.AgentID, nil
}

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) Notify(_ context.Context, channel, threadID, text string) error {
	f.sent = append(f.sent, channel+"|"+threadID+"|"+text)
	return nil
}

func storedFlow(t *testing.T, flowStore store.FlowStore, spec string) *store.Flow {
	t.Helper()
	flow := &store.Flow{
		WorkspaceID: "ws-1",
		ThreadID:    "telegram:42",
		UserID:      "u1",
		Name:        "digest",
		Spec:        json.RawMessage(spec),
		DueTime:     time.Now(),
	}
	if err := flowStore.Create(context.Background(), flow); err != nil {
		t.Fatal(err)
	}
	return flow
}

func TestExecuteChainsStepOutputs(t *testing.T) {
	flowStore := mem.NewMemFlowStore()
	invoker := &fakeInvoker{}
	runner := NewRunner(flowStore, invoker, nil)

	flow := storedFlow(t, flowStore, `{
		"flow_id": "f1", "name": "digest", "schedule_type": "immediate",
		"agents": [
			{"agent_id": "collector", "system_prompt": "Collect headlines."},
			{"agent_id": "writer", "system_prompt": "Write from $previous_output"}
		]
	}`)

	results, err := runner.Execute(context.Background(), flow)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[1].Status != "success" {
		t.Errorf("step status = %q", results[1].Status)
	}
	if len(invoker.prompts) != 2 || !strings.Contains(invoker.prompts[1], "output of collector") {
		t.Errorf("second step did not see the first step's output: %q", invoker.prompts)
	}

	stored, err := flowStore.Get(context.Background(), flow.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != store.FlowCompleted {
		t.Errorf("flow status = %q, want %q", stored.Status, store.FlowCompleted)
	}
	if !strings.Contains(string(stored.Result), `"results"`) {
		t.Errorf("result payload missing: %s", stored.Result)
	}
}

func TestExecuteFailureMarksFlowAndNotifies(t *testing.T) {
	flowStore := mem.NewMemFlowStore()
	invoker := &fakeInvoker{failOn: "collector"}
	notifier := &fakeNotifier{}
	runner := NewRunner(flowStore, invoker, notifier)

	flow := storedFlow(t, flowStore, `{
		"flow_id": "f2", "name": "digest", "schedule_type": "immediate",
		"notify_on_failure": true,
		"notification_channels": ["telegram"],
		"agents": [{"agent_id": "collector", "system_prompt": "Collect."}]
	}`)

	if _, err := runner.Execute(context.Background(), flow); err == nil {
		t.Fatal("expected an error")
	}

	stored, _ := flowStore.Get(context.Background(), flow.ID)
	if stored.Status != store.FlowFailed {
		t.Errorf("flow status = %q, want %q", stored.Status, store.FlowFailed)
	}
	if !strings.Contains(stored.LastError, "collector") {
		t.Errorf("last error = %q", stored.LastError)
	}
	if len(notifier.sent) != 1 || !strings.HasPrefix(notifier.sent[0], "telegram|telegram:42|Flow failed") {
		t.Errorf("notifications = %v", notifier.sent)
	}
}

func TestExecuteRecurringEnqueuesNextInstance(t *testing.T) {
	flowStore := mem.NewMemFlowStore()
	runner := NewRunner(flowStore, &fakeInvoker{}, nil)

	flow := storedFlow(t, flowStore, `{
		"flow_id": "f3", "name": "digest", "schedule_type": "recurring",
		"cron_expression": "0 9 * * *",
		"agents": [{"agent_id": "collector", "system_prompt": "Collect."}]
	}`)

	if _, err := runner.Execute(context.Background(), flow); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	list, err := flowStore.ListByThread(context.Background(), "telegram:42", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d rows, want the completed one plus its successor", len(list))
	}
	var pending *store.Flow
	for i := range list {
		if list[i].Status == store.FlowPending {
			pending = &list[i]
		}
	}
	if pending == nil {
		t.Fatal("no pending successor row")
	}
	if !pending.DueTime.After(time.Now()) {
		t.Errorf("successor due time %v is not in the future", pending.DueTime)
	}
}

func TestRunByID(t *testing.T) {
	flowStore := mem.NewMemFlowStore()
	runner := NewRunner(flowStore, &fakeInvoker{replies: map[string]string{"solo": "done"}}, nil)

	flow := storedFlow(t, flowStore, `{
		"flow_id": "f4", "name": "one", "schedule_type": "immediate",
		"agents": [{"agent_id": "solo", "system_prompt": "Do the thing."}]
	}`)

	result, err := runner.RunByID(context.Background(), flow.ID)
	if err != nil {
		t.Fatalf("RunByID: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(result, &doc); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if _, ok := doc["results"]; !ok {
		t.Errorf("result document missing results: %s", result)
	}
}
