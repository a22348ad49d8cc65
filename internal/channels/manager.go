package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/goaide/internal/bus"
)

// Manager owns channel lifecycle and outbound routing. Everything the
// runtime sends leaves through the bus; the manager's dispatch loop
// routes each outbound message to its adapter. It also forwards
// tool-progress events to adapters that can render them.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus

	dispatchCancel context.CancelFunc
	mu             sync.RWMutex
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// Register adds an adapter. Call before StartAll.
func (m *Manager) Register(channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel.Name()] = channel
}

// Get returns an adapter by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Names lists the registered adapters.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// Status reports the running state per adapter.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		status[name] = ch.IsRunning()
	}
	return status
}

// StartAll starts the outbound dispatcher and every adapter. The
// dispatcher always runs, even with no adapters, so internal channels
// drain. Adapter start failures are logged, not fatal: one broken
// transport must not take the runtime down.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchCancel = cancel
	go m.dispatchOutbound(dispatchCtx)

	m.bus.Subscribe("channel-manager", m.handleEvent)

	for name, channel := range m.channels {
		slog.Info("channels: starting", "channel", name)
		if err := channel.Start(ctx); err != nil {
			slog.Error("channels: start failed", "channel", name, "error", err)
		}
	}
	return nil
}

// StopAll stops the dispatcher and every adapter.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bus.Unsubscribe("channel-manager")
	if m.dispatchCancel != nil {
		m.dispatchCancel()
		m.dispatchCancel = nil
	}

	for name, channel := range m.channels {
		slog.Info("channels: stopping", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("channels: stop failed", "channel", name, "error", err)
		}
	}
	return nil
}

// dispatchOutbound routes bus outbound messages to their adapter.
// Internal channels are skipped; their producers consume replies
// directly. Temporary media files are removed after the send attempt.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if IsInternalChannel(msg.Channel) {
			continue
		}

		m.mu.RLock()
		channel, exists := m.channels[msg.Channel]
		m.mu.RUnlock()
		if !exists {
			slog.Warn("channels: outbound for unknown channel", "channel", msg.Channel)
			continue
		}

		if err := channel.Send(ctx, msg); err != nil {
			slog.Error("channels: send failed", "channel", msg.Channel, "error", err)
		}

		for _, media := range msg.Media {
			if media.URL != "" && msg.Metadata["keep_media"] == "" {
				if err := os.Remove(media.URL); err != nil && !os.IsNotExist(err) {
					slog.Debug("channels: media cleanup failed", "path", media.URL, "error", err)
				}
			}
		}
	}
}

// handleEvent forwards tool.call events to adapters that render
// progress. Best-effort: parse failures and missing adapters are
// silently ignored.
func (m *Manager) handleEvent(event bus.Event) {
	if event.Name != "tool.call" {
		return
	}
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		return
	}
	threadID, _ := payload["thread_id"].(string)
	tool, _ := payload["name"].(string)
	step := 0
	switch v := payload["step"].(type) {
	case int:
		step = v
	case float64:
		step = int(v)
	}

	channelName, chatID, ok := splitThread(threadID)
	if !ok {
		return
	}
	m.mu.RLock()
	ch, exists := m.channels[channelName]
	m.mu.RUnlock()
	if !exists {
		return
	}
	if pc, ok := ch.(ProgressChannel); ok {
		pc.OnToolProgress(context.Background(), chatID, step, tool)
	}
}

// SendTo delivers text directly to one conversation, bypassing the
// dispatch queue.
func (m *Manager) SendTo(ctx context.Context, channelName, chatID, content string) error {
	m.mu.RLock()
	channel, exists := m.channels[channelName]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("channel %s not found", channelName)
	}
	return channel.Send(ctx, bus.OutboundMessage{
		Channel: channelName,
		ChatID:  chatID,
		Content: content,
	})
}

// Notify posts a short system message back to a thread's conversation.
// Satisfies the flow runner's notification contract.
func (m *Manager) Notify(ctx context.Context, channelName, threadID, text string) error {
	_, chatID, ok := splitThread(threadID)
	if !ok {
		return fmt.Errorf("malformed thread id %q", threadID)
	}
	return m.SendTo(ctx, channelName, chatID, text)
}

// Typing keeps a typing indicator alive for the duration of a run on
// adapters that support one. The returned stop is never nil.
func (m *Manager) Typing(ctx context.Context, channelName, chatID string) (stop func()) {
	m.mu.RLock()
	ch, exists := m.channels[channelName]
	m.mu.RUnlock()
	if !exists {
		return func() {}
	}
	tc, ok := ch.(TypingChannel)
	if !ok {
		return func() {}
	}
	return tc.StartTyping(ctx, chatID)
}

func splitThread(threadID string) (channel, chatID string, ok bool) {
	i := strings.Index(threadID, ":")
	if i <= 0 || i == len(threadID)-1 {
		return "", "", false
	}
	return threadID[:i], threadID[i+1:], true
}
