// Package protocol defines the wire frames pushed to WebSocket clients
// of the gateway event stream.
package protocol

import (
	"encoding/json"
	"time"
)

// ProtocolVersion is bumped on breaking frame changes.
const ProtocolVersion = 1

// Run lifecycle event names carried in EventFrame.Event.
const (
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventToolCall     = "tool.call"
	EventToolResult   = "tool.result"
	EventHeartbeat    = "heartbeat"
	EventShutdown     = "shutdown"
)

// EventFrame is one server-to-client push.
type EventFrame struct {
	Type    string      `json:"type"` // always "event"
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
	Time    time.Time   `json:"time"`
}

// NewEventFrame wraps an event name and payload into a frame stamped
// with the current time.
func NewEventFrame(event string, payload interface{}) EventFrame {
	return EventFrame{Type: "event", Event: event, Payload: payload, Time: time.Now().UTC()}
}

// Marshal renders the frame as JSON. Marshal failures yield a frame
// with the payload dropped rather than no frame at all.
func (f EventFrame) Marshal() []byte {
	data, err := json.Marshal(f)
	if err != nil {
		fallback := EventFrame{Type: f.Type, Event: f.Event, Time: f.Time}
		data, _ = json.Marshal(fallback)
	}
	return data
}
