// Package channels connects external messaging platforms to the agent
// runtime. Each adapter normalizes its transport's events into the bus
// envelope on the way in and splits/formats replies on the way out.
package channels

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/bus"
)

// InternalChannels never dispatch outbound through a transport; their
// replies are consumed in-process (HTTP responses, scheduler fires).
var InternalChannels = map[string]bool{
	"api":       true,
	"cli":       true,
	"system":    true,
	"scheduler": true,
}

// IsInternalChannel reports whether a channel name is in-process only.
func IsInternalChannel(name string) bool {
	return InternalChannels[name]
}

// Channel is one platform adapter.
type Channel interface {
	// Name is the channel identifier ("telegram", "discord").
	Name() string

	// Start begins receiving. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop shuts the adapter down.
	Stop(ctx context.Context) error

	// Send delivers one outbound message, splitting as needed.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning reports whether the adapter is receiving.
	IsRunning() bool

	// IsAllowed applies the channel's sender allowlist.
	IsAllowed(senderID string) bool
}

// ProgressChannel is implemented by adapters that can render transient
// tool-progress status. Delivery is best-effort; runtime correctness
// never depends on it.
type ProgressChannel interface {
	Channel
	OnToolProgress(ctx context.Context, chatID string, step int, tool string)
}

// TypingChannel is implemented by adapters with a typing/activity
// indicator. The manager keeps it refreshed while a run is active.
type TypingChannel interface {
	Channel
	StartTyping(ctx context.Context, chatID string) (stop func())
}

// Resetter performs admin storage resets for a thread. The serve
// wiring provides one backed by the identity resolver and the
// workspace router.
type Resetter interface {
	ResetThread(ctx context.Context, threadID, userID, chatType, scope string) error
}

// BaseChannel carries what every adapter shares: the bus handle, the
// allowlist, a running flag, and an inbound flood limiter.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	running   bool
	allowList []string
	limiter   *FloodLimiter
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
		limiter:   NewFloodLimiter(),
	}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running }

func (c *BaseChannel) SetRunning(running bool) { c.running = running }

func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// IsAllowed applies the allowlist. Compound sender ids of the form
// "123456|username" match on either part; allowlist entries may carry
// a leading "@" on usernames. An empty allowlist admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		if senderID == allowed || senderID == trimmed ||
			idPart == allowed || idPart == trimmed ||
			(userPart != "" && (userPart == allowed || userPart == trimmed)) {
			return true
		}
	}
	return false
}

// HandleMessage normalizes one received message into the envelope and
// publishes it. Disallowed senders and flooding senders are dropped
// here, before anything reaches the runtime.
func (c *BaseChannel) HandleMessage(senderID, chatID, content, messageID, chatType string, attachments []string, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		return
	}
	if c.limiter != nil && !c.limiter.Allow(c.name+":"+senderID) {
		return
	}

	// The tenant id is the platform user id; compound sender ids carry
	// a display name after the pipe.
	userID := senderID
	if idx := strings.IndexByte(senderID, '|'); idx > 0 {
		userID = senderID[:idx]
	}
	if chatType == "" {
		chatType = "direct"
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:     c.name,
		SenderID:    senderID,
		ChatID:      chatID,
		Content:     content,
		Attachments: attachments,
		MessageID:   messageID,
		UserID:      userID,
		ChatType:    chatType,
		Metadata:    metadata,
	})
}

// Truncate shortens a string to maxLen, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
