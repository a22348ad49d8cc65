package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/agent"
	"github.com/nextlevelbuilder/goaide/internal/bus"
	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/identity"
	"github.com/nextlevelbuilder/goaide/internal/middleware"
	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/store/mem"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// scriptedProvider answers every chat with a fixed reply, or fails.
type scriptedProvider struct {
	reply string
	err   error
}

func (p *scriptedProvider) Chat(_ context.Context, _ providers.ChatRequest) (*providers.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &providers.ChatResponse{Content: p.reply, FinishReason: "stop"}, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	onChunk(providers.StreamChunk{Content: resp.Content})
	onChunk(providers.StreamChunk{Done: true})
	return resp, nil
}

func (p *scriptedProvider) DefaultModel() string { return "scripted-1" }
func (p *scriptedProvider) Name() string         { return "scripted" }

func newTestConsumer(t *testing.T, provider providers.Provider) (*Consumer, *bus.MessageBus) {
	t.Helper()
	msgBus := bus.New()
	loop := agent.NewLoop(agent.LoopConfig{
		Provider:            provider,
		Model:               "scripted-1",
		Chain:               middleware.NewChain(),
		Checkpoints:         mem.NewMemCheckpointStore(),
		Events:              msgBus,
		EnableSummarization: false,
		InjectionAction:     "off",
	})
	resolver := identity.NewResolver(mem.NewMemIdentityStore())
	router := workspace.NewRouter(config.StorageConfig{Root: t.TempDir()})
	return NewConsumer(msgBus, loop, resolver, router, nil), msgBus
}

func inbound(content, messageID string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "telegram",
		ChatID:    "42",
		SenderID:  "7|alice",
		UserID:    "7",
		Content:   content,
		MessageID: messageID,
		ChatType:  "direct",
	}
}

func TestRespondRunsTheLoop(t *testing.T) {
	consumer, _ := newTestConsumer(t, &scriptedProvider{reply: "hello back"})

	reply, err := consumer.Respond(context.Background(), inbound("hi", "m1"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "hello back" {
		t.Errorf("reply = %q", reply)
	}
}

func TestRespondStreamDeliversChunks(t *testing.T) {
	consumer, _ := newTestConsumer(t, &scriptedProvider{reply: "streamed"})

	var chunks []string
	reply, err := consumer.RespondStream(context.Background(), inbound("hi", "m2"), func(s string) {
		chunks = append(chunks, s)
	})
	if err != nil {
		t.Fatalf("RespondStream: %v", err)
	}
	if reply != "streamed" {
		t.Errorf("reply = %q", reply)
	}
	if strings.Join(chunks, "") != "streamed" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestProcessPublishesReply(t *testing.T) {
	consumer, msgBus := newTestConsumer(t, &scriptedProvider{reply: "pong"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go consumer.Run(ctx)

	msgBus.PublishInbound(inbound("ping", "m3"))

	out, ok := msgBus.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("no outbound message")
	}
	if out.Channel != "telegram" || out.ChatID != "42" || out.Content != "pong" {
		t.Errorf("outbound = %+v", out)
	}
}

func TestProcessDropsDuplicates(t *testing.T) {
	consumer, msgBus := newTestConsumer(t, &scriptedProvider{reply: "once"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go consumer.Run(ctx)

	msgBus.PublishInbound(inbound("first", "dup-1"))
	if _, ok := msgBus.SubscribeOutbound(ctx); !ok {
		t.Fatal("no reply to the first delivery")
	}

	msgBus.PublishInbound(inbound("retry", "dup-1"))
	quiet, cancelQuiet := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancelQuiet()
	if out, ok := msgBus.SubscribeOutbound(quiet); ok {
		t.Errorf("duplicate delivery produced a reply: %+v", out)
	}
}

func TestProcessSendsApologyOnFailure(t *testing.T) {
	consumer, msgBus := newTestConsumer(t, &scriptedProvider{err: errors.New("boom")})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go consumer.Run(ctx)

	msgBus.PublishInbound(inbound("hi", "m4"))

	out, ok := msgBus.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("no outbound message")
	}
	if !strings.Contains(out.Content, "something went wrong") {
		t.Errorf("expected an apology, got %q", out.Content)
	}
}
