package channels

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/bus"
)

func TestIsAllowed(t *testing.T) {
	cases := []struct {
		name      string
		allowList []string
		senderID  string
		want      bool
	}{
		{"empty list admits everyone", nil, "12345", true},
		{"plain id match", []string{"12345"}, "12345", true},
		{"plain id mismatch", []string{"12345"}, "99999", false},
		{"compound id part matches", []string{"12345"}, "12345|alice", true},
		{"compound username part matches", []string{"alice"}, "12345|alice", true},
		{"at-prefixed allowlist entry", []string{"@alice"}, "12345|alice", true},
		{"compound mismatch", []string{"bob"}, "12345|alice", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewBaseChannel("test", bus.New(), tc.allowList)
			if got := c.IsAllowed(tc.senderID); got != tc.want {
				t.Errorf("IsAllowed(%q) with %v = %v, want %v", tc.senderID, tc.allowList, got, tc.want)
			}
		})
	}
}

func TestHandleMessagePublishesEnvelope(t *testing.T) {
	msgBus := bus.New()
	c := NewBaseChannel("test", msgBus, nil)

	c.HandleMessage("12345|alice", "chat-1", "hello", "m-1", "", []string{"/tmp/a.txt"}, map[string]string{"k": "v"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound message published")
	}
	if msg.Channel != "test" || msg.ChatID != "chat-1" || msg.Content != "hello" {
		t.Errorf("envelope = %+v", msg)
	}
	if msg.UserID != "12345" {
		t.Errorf("UserID = %q, want the id part of the compound sender", msg.UserID)
	}
	if msg.ChatType != "direct" {
		t.Errorf("ChatType = %q, want default direct", msg.ChatType)
	}
	if msg.ThreadID() != "test:chat-1" {
		t.Errorf("ThreadID() = %q", msg.ThreadID())
	}
	if len(msg.Attachments) != 1 || msg.Metadata["k"] != "v" {
		t.Errorf("attachments/metadata not carried: %+v", msg)
	}
}

func TestHandleMessageDropsDisallowed(t *testing.T) {
	msgBus := bus.New()
	c := NewBaseChannel("test", msgBus, []string{"someone-else"})

	c.HandleMessage("12345", "chat-1", "hello", "m-1", "direct", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := msgBus.ConsumeInbound(ctx); ok {
		t.Error("disallowed sender's message must not be published")
	}
}

func TestFloodLimiter(t *testing.T) {
	l := NewFloodLimiter()
	for i := 0; i < floodMaxHits; i++ {
		if !l.Allow("k") {
			t.Fatalf("hit %d within budget was denied", i+1)
		}
	}
	if l.Allow("k") {
		t.Error("hit over budget was allowed")
	}
	if !l.Allow("other") {
		t.Error("unrelated key must have its own budget")
	}
}

func TestInternalChannels(t *testing.T) {
	for _, name := range []string{"api", "cli", "system", "scheduler"} {
		if !IsInternalChannel(name) {
			t.Errorf("%s should be internal", name)
		}
	}
	if IsInternalChannel("telegram") {
		t.Error("telegram is a transport channel")
	}
}
