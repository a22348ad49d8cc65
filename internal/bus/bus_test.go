package bus

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestInboundRoundTrip(t *testing.T) {
	b := New()
	b.PublishInbound(InboundMessage{Channel: "telegram", ChatID: "42", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("ConsumeInbound returned no message")
	}
	if msg.ThreadID() != "telegram:42" {
		t.Errorf("ThreadID = %q, want telegram:42", msg.ThreadID())
	}
}

func TestConsumeInboundHonorsContext(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("expected ok=false on context timeout")
	}
}

func TestOutboundRoundTrip(t *testing.T) {
	b := New()
	b.PublishOutbound(OutboundMessage{Channel: "discord", ChatID: "c1", Content: "reply"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.SubscribeOutbound(ctx)
	if !ok || msg.Content != "reply" {
		t.Fatalf("got %+v ok=%v", msg, ok)
	}
}

func TestBroadcastReachesEverySubscriber(t *testing.T) {
	b := New()
	got := make(map[string]int)
	b.Subscribe("a", func(e Event) { got["a"]++ })
	b.Subscribe("b", func(e Event) { got["b"]++ })

	b.Broadcast(Event{Name: "run.started"})
	if got["a"] != 1 || got["b"] != 1 {
		t.Errorf("deliveries = %v", got)
	}

	b.Unsubscribe("b")
	b.Broadcast(Event{Name: "run.completed"})
	if got["a"] != 2 || got["b"] != 1 {
		t.Errorf("after unsubscribe, deliveries = %v", got)
	}
}

func TestSubscribeReplacesHandlerWithSameID(t *testing.T) {
	b := New()
	var first, second int
	b.Subscribe("x", func(e Event) { first++ })
	b.Subscribe("x", func(e Event) { second++ })

	b.Broadcast(Event{Name: "tool.call"})
	if first != 0 || second != 1 {
		t.Errorf("first=%d second=%d, want 0/1", first, second)
	}
}

func TestDedupeCache(t *testing.T) {
	c := NewDedupeCache(time.Hour, 10)
	if c.IsDuplicate("k1") {
		t.Error("first sighting flagged as duplicate")
	}
	if !c.IsDuplicate("k1") {
		t.Error("second sighting not flagged")
	}
	if c.IsDuplicate("k2") {
		t.Error("unrelated key flagged")
	}
}

func TestDedupeCacheExpiry(t *testing.T) {
	c := NewDedupeCache(10*time.Millisecond, 10)
	c.IsDuplicate("k1")
	time.Sleep(20 * time.Millisecond)
	if c.IsDuplicate("k1") {
		t.Error("expired key still flagged as duplicate")
	}
}

func TestDedupeCacheBoundedSize(t *testing.T) {
	c := NewDedupeCache(time.Hour, 5)
	for i := 0; i < 50; i++ {
		c.IsDuplicate(fmt.Sprintf("key-%d", i))
	}
	c.mu.Lock()
	size := len(c.seen)
	c.mu.Unlock()
	if size > 5 {
		t.Errorf("cache grew to %d entries, cap is 5", size)
	}
}
