package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/agent"
	"github.com/nextlevelbuilder/goaide/internal/bus"
	"github.com/nextlevelbuilder/goaide/internal/channels"
	"github.com/nextlevelbuilder/goaide/internal/identity"
	"github.com/nextlevelbuilder/goaide/internal/store"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// onboardingPrompt is appended to the system prompt for the first turn
// after a full reset (or a fresh workspace).
const onboardingPrompt = `This is the first conversation in a fresh workspace. Briefly introduce yourself, mention that you can remember things, set reminders and work with files, and ask what the user would like to do.`

// dedupeTTL bounds how long transport message ids are remembered for
// replay suppression.
const dedupeTTL = 10 * time.Minute

// Consumer is the inbound pipeline shared by every entry point: it
// binds the thread to a workspace, runs the agent loop, and publishes
// the reply. Transport channels feed it through the bus; the HTTP
// channel calls Respond directly.
type Consumer struct {
	bus        *bus.MessageBus
	loop       *agent.Loop
	resolver   *identity.Resolver
	workspaces *workspace.Router
	manager    *channels.Manager // nil disables typing indicators
	dedupe     *bus.DedupeCache
}

func NewConsumer(msgBus *bus.MessageBus, loop *agent.Loop, resolver *identity.Resolver, router *workspace.Router, manager *channels.Manager) *Consumer {
	return &Consumer{
		bus:        msgBus,
		loop:       loop,
		resolver:   resolver,
		workspaces: router,
		manager:    manager,
		dedupe:     bus.NewDedupeCache(dedupeTTL, 4096),
	}
}

// Run consumes inbound envelopes until ctx ends. Each message runs on
// its own goroutine; the loop serializes turns per thread internally.
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, ok := c.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		go c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg bus.InboundMessage) {
	if msg.MessageID != "" && c.dedupe.IsDuplicate(msg.Channel+":"+msg.MessageID) {
		slog.Debug("inbound duplicate dropped", "thread", msg.ThreadID(), "message_id", msg.MessageID)
		return
	}

	reply, err := c.Respond(ctx, msg)
	if err != nil {
		slog.Error("run failed", "thread", msg.ThreadID(), "error", err)
		c.bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: "Sorry, something went wrong while handling that. Please try again.",
		})
		return
	}
	if reply == "" {
		// Silent turn: the agent chose not to answer.
		return
	}
	c.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
	})
}

// Respond runs one envelope through binding and the agent loop and
// returns the final assistant content.
func (c *Consumer) Respond(ctx context.Context, msg bus.InboundMessage) (string, error) {
	return c.respond(ctx, msg, nil)
}

// RespondStream is Respond with streamed content chunks.
func (c *Consumer) RespondStream(ctx context.Context, msg bus.InboundMessage, onChunk func(string)) (string, error) {
	return c.respond(ctx, msg, onChunk)
}

func (c *Consumer) respond(ctx context.Context, msg bus.InboundMessage, onChunk func(string)) (string, error) {
	binding, err := c.resolver.BindThread(ctx, identity.BindRequest{
		ThreadID:  msg.ThreadID(),
		UserID:    msg.UserID,
		ChatType:  msg.ChatType,
		GroupID:   msg.Metadata["group_id"],
		GroupName: msg.Metadata["group_name"],
	})
	if err != nil {
		return "", err
	}

	if c.manager != nil {
		stop := c.manager.Typing(ctx, msg.Channel, msg.ChatID)
		defer stop()
	}

	extraPrompt := ""
	if c.workspaces != nil && c.workspaces.ConsumeOnboardingMarker(store.WithWorkspaceID(ctx, binding.WorkspaceID)) {
		extraPrompt = onboardingPrompt
	}

	result, err := c.loop.Run(ctx, agent.RunRequest{
		ThreadID:          msg.ThreadID(),
		WorkspaceID:       binding.WorkspaceID,
		Content:           msg.Content,
		MessageID:         msg.MessageID,
		Attachments:       msg.Attachments,
		Channel:           msg.Channel,
		ChatType:          msg.ChatType,
		UserID:            binding.UserID,
		SenderID:          msg.SenderID,
		ExtraSystemPrompt: extraPrompt,
		OnChunk:           onChunk,
	})
	if err != nil {
		return "", err
	}
	return result.Content, nil
}
