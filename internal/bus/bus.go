package bus

import (
	"context"
	"sync"
	"time"
)

const queueSize = 256

// MessageBus is the in-process message router and event broadcaster.
// Inbound and outbound queues are buffered; publishing blocks only when
// a queue is full, which applies natural backpressure to the channels.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string]EventHandler
}

// New creates an empty MessageBus.
func New() *MessageBus {
	return &MessageBus{
		inbound:     make(chan InboundMessage, queueSize),
		outbound:    make(chan OutboundMessage, queueSize),
		subscribers: make(map[string]EventHandler),
	}
}

// PublishInbound queues an envelope for the consumer loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until a message arrives or ctx is done.
// The second return is false when ctx ended first.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound queues a reply for delivery by the channel manager.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until a reply arrives or ctx is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Subscribe registers an event handler under id, replacing any previous
// handler with the same id.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes the handler registered under id.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast delivers event to every subscriber. Handlers run on the
// caller's goroutine; slow handlers should hand off internally.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// DedupeCache remembers recently seen message keys so transport retries
// and double-taps do not become duplicate agent runs.
type DedupeCache struct {
	ttl time.Duration
	max int

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDedupeCache creates a cache holding at most max keys for ttl each.
func NewDedupeCache(ttl time.Duration, max int) *DedupeCache {
	if max <= 0 {
		max = 1000
	}
	return &DedupeCache{ttl: ttl, max: max, seen: make(map[string]time.Time)}
}

// IsDuplicate reports whether key was seen within the TTL, and records
// the sighting either way.
func (c *DedupeCache) IsDuplicate(key string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if at, ok := c.seen[key]; ok && now.Sub(at) < c.ttl {
		return true
	}
	if len(c.seen) >= c.max {
		c.evict(now)
	}
	c.seen[key] = now
	return false
}

// evict drops expired entries, then the oldest entries while still over
// the cap. Called with the lock held.
func (c *DedupeCache) evict(now time.Time) {
	for k, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, k)
		}
	}
	for len(c.seen) >= c.max {
		var oldestKey string
		var oldestAt time.Time
		for k, at := range c.seen {
			if oldestKey == "" || at.Before(oldestAt) {
				oldestKey, oldestAt = k, at
			}
		}
		delete(c.seen, oldestKey)
	}
}
