// Package scheduler fires due reminders and scheduled flows. One
// Scheduler per process; exactly-once firing rests on the store's
// claim guard (pending -> running flips at most once per row).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/bus"
	"github.com/nextlevelbuilder/goaide/internal/store"
)

// dueBatchLimit bounds how many rows one tick pulls per queue. Late
// items stay due and the next tick picks them up in due order.
const dueBatchLimit = 50

// FlowExecutor runs one claimed flow to completion. The flows package
// implements it.
type FlowExecutor interface {
	Fire(ctx context.Context, flow *store.Flow) error
}

// Scheduler polls the reminder and flow queues and dispatches whatever
// is due. Reminder fires never touch the external transport: they
// synthesize an inbound envelope for the owning thread and hand it to
// the channel manager through the bus.
type Scheduler struct {
	reminders store.ReminderStore
	flows     store.FlowStore
	executor  FlowExecutor
	router    bus.MessageRouter

	interval time.Duration
	done     chan struct{}
}

// Config wires a Scheduler.
type Config struct {
	Reminders store.ReminderStore
	Flows     store.FlowStore
	Executor  FlowExecutor      // nil = flows queue is skipped
	Router    bus.MessageRouter // receives synthesized reminder envelopes
	Interval  time.Duration     // defaults to 30s, clamped to [1s, 30s]
}

func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 || interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval < time.Second {
		interval = time.Second
	}
	return &Scheduler{
		reminders: cfg.Reminders,
		flows:     cfg.Flows,
		executor:  cfg.Executor,
		router:    cfg.Router,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Start launches the tick loop. It returns immediately; Stop or ctx
// cancellation ends the loop.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler: started", "interval", s.interval)
		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler: stopped")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Wait blocks until the loop has exited.
func (s *Scheduler) Wait() { <-s.done }

// Tick processes one scheduling pass: due reminders first, then due
// flows, each in due order.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now()
	s.fireReminders(ctx, now)
	s.fireFlows(ctx, now)
}

func (s *Scheduler) fireReminders(ctx context.Context, now time.Time) {
	if s.reminders == nil {
		return
	}
	due, err := s.reminders.Due(ctx, now, dueBatchLimit)
	if err != nil {
		slog.Warn("scheduler: reminder poll failed", "error", err)
		return
	}
	for i := range due {
		r := &due[i]
		claimed, err := s.reminders.Claim(ctx, r.ID)
		if err != nil {
			slog.Warn("scheduler: reminder claim failed", "reminder", r.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		s.fireReminder(ctx, r, now)
	}
}

// fireReminder delivers one claimed reminder. Recurring reminders get
// their successor row inserted before the current row is marked sent,
// so a crash in between leaves a duplicate pending row rather than a
// dead schedule.
func (s *Scheduler) fireReminder(ctx context.Context, r *store.Reminder, now time.Time) {
	if r.IsRecurring() {
		successor := &store.Reminder{
			WorkspaceID: r.WorkspaceID,
			ThreadID:    r.ThreadID,
			UserID:      r.UserID,
			Message:     r.Message,
			DueTime:     NextOccurrenceOrDaily(r.Recurrence, now),
			Recurrence:  r.Recurrence,
			Timezone:    r.Timezone,
			Status:      store.ReminderPending,
		}
		if err := s.reminders.Create(ctx, successor); err != nil {
			slog.Warn("scheduler: successor insert failed", "reminder", r.ID, "error", err)
		}
	}

	if err := s.injectReminder(r); err != nil {
		slog.Warn("scheduler: reminder delivery failed", "reminder", r.ID, "error", err)
		if markErr := s.reminders.MarkFailed(ctx, r.ID, err.Error()); markErr != nil {
			slog.Warn("scheduler: mark failed failed", "reminder", r.ID, "error", markErr)
		}
		return
	}
	if err := s.reminders.MarkSent(ctx, r.ID); err != nil {
		slog.Warn("scheduler: mark sent failed", "reminder", r.ID, "error", err)
	}
	slog.Info("scheduler: reminder fired",
		"reminder", r.ID, "thread", r.ThreadID, "late", now.Sub(r.DueTime).Truncate(time.Second))
}

// injectReminder synthesizes the envelope that re-enters the reasoning
// loop on the owning thread. The channel manager routes it like any
// user message; the agent decides how to phrase the nudge.
func (s *Scheduler) injectReminder(r *store.Reminder) error {
	if s.router == nil {
		return fmt.Errorf("no message router configured")
	}
	channel, chatID, err := splitThreadID(r.ThreadID)
	if err != nil {
		return err
	}
	s.router.PublishInbound(bus.InboundMessage{
		Channel:   channel,
		SenderID:  "scheduler",
		ChatID:    chatID,
		Content:   fmt.Sprintf("[System: Reminder due now: %q. Deliver it to the user in your own words.]", r.Message),
		MessageID: "reminder:" + uuid.NewString(),
		UserID:    r.UserID,
		Metadata: map[string]string{
			"origin":      "scheduler",
			"reminder_id": fmt.Sprintf("%d", r.ID),
		},
	})
	return nil
}

func (s *Scheduler) fireFlows(ctx context.Context, now time.Time) {
	if s.flows == nil || s.executor == nil {
		return
	}
	due, err := s.flows.Due(ctx, now, dueBatchLimit)
	if err != nil {
		slog.Warn("scheduler: flow poll failed", "error", err)
		return
	}
	for i := range due {
		f := &due[i]
		claimed, err := s.flows.Claim(ctx, f.ID)
		if err != nil {
			slog.Warn("scheduler: flow claim failed", "flow", f.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		// Flow execution runs model calls; a slow flow must not stall
		// the reminder queue past its lateness bound.
		go func(f *store.Flow) {
			if err := s.executor.Fire(context.WithoutCancel(ctx), f); err != nil {
				slog.Warn("scheduler: flow failed", "flow", f.ID, "error", err)
			}
		}(f)
	}
}

// splitThreadID breaks "<channel>:<chat-id>" at the first colon.
func splitThreadID(threadID string) (channel, chatID string, err error) {
	i := strings.Index(threadID, ":")
	if i <= 0 || i == len(threadID)-1 {
		return "", "", fmt.Errorf("malformed thread id %q", threadID)
	}
	return threadID[:i], threadID[i+1:], nil
}
