package bus

import "context"

// InboundMessage is the normalized envelope every channel produces.
// Immutable once published.
type InboundMessage struct {
	Channel     string            `json:"channel"`
	SenderID    string            `json:"sender_id"`
	ChatID      string            `json:"chat_id"`               // external conversation id within the channel
	Content     string            `json:"content"`
	Attachments []string          `json:"attachments,omitempty"` // files already saved under the workspace
	MessageID   string            `json:"message_id"`            // transport message id, dedup key for replays
	UserID      string            `json:"user_id,omitempty"`     // external user id for tenant scoping
	ChatType    string            `json:"chat_type,omitempty"`   // "direct" or "group"
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ThreadID returns the canonical conversation key "<channel>:<chat-id>".
func (m InboundMessage) ThreadID() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a reply addressed back to a channel conversation.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Media    []MediaAttachment `json:"media,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"` // channel-specific (reply-to ids, thread ids)
}

// MediaAttachment is a file sent alongside an outbound message.
type MediaAttachment struct {
	URL         string `json:"url"`                    // file path or URL
	ContentType string `json:"content_type,omitempty"` // MIME type (e.g. "image/jpeg")
	Caption     string `json:"caption,omitempty"`
}

// Event is a server-side event broadcast to WebSocket clients.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// MessageHandler handles an inbound message from a specific channel.
type MessageHandler func(InboundMessage) error

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// Decouples the gateway and the agent loop from the concrete MessageBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// MessageRouter abstracts inbound/outbound routing between channels and
// the agent runtime.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
