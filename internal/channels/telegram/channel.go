// Package telegram adapts the Telegram Bot API (long polling) to the
// runtime's channel contract.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/goaide/internal/bus"
	"github.com/nextlevelbuilder/goaide/internal/channels"
	"github.com/nextlevelbuilder/goaide/internal/config"
)

// telegramMessageLimit is the Bot API cap on message text length.
const telegramMessageLimit = 4096

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot   *telego.Bot
	cfg   config.TelegramConfig
	admin *channels.Admin

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New builds the adapter. The admin handle serves /reset commands and
// places inbound uploads into the thread's workspace.
func New(cfg config.TelegramConfig, msgBus *bus.MessageBus, admin *channels.Admin) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus, cfg.AllowedUserIDs),
		bot:         bot,
		cfg:         cfg,
		admin:       admin,
	}, nil
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleUpdate(pollCtx, update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop cancels the polling context and waits for the poll goroutine,
// so Telegram releases the getUpdates lock before a restart.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers one outbound message: media first, then the text split
// into API-sized chunks. Markdown that Telegram rejects is resent plain.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", msg.ChatID, err)
	}

	for _, media := range msg.Media {
		if err := c.sendMedia(ctx, chatID, media); err != nil {
			slog.Warn("telegram media send failed", "path", media.URL, "error", err)
		}
	}

	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}

	formatted := channels.FormatTelegram(msg.Content)
	for _, chunk := range channels.SplitMessage(formatted, telegramMessageLimit) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		if err := c.sendText(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) sendText(ctx context.Context, chatID int64, text string) error {
	params := tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeMarkdown)
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		// Legacy Markdown rejects unbalanced markers; plain text always lands.
		if _, plainErr := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); plainErr != nil {
			return fmt.Errorf("send message: %w", plainErr)
		}
	}
	return nil
}

func (c *Channel) sendMedia(ctx context.Context, chatID int64, media bus.MediaAttachment) error {
	f, err := os.Open(media.URL)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	if strings.HasPrefix(media.ContentType, "image/") {
		params := tu.Photo(tu.ID(chatID), tu.File(f))
		if media.Caption != "" {
			params = params.WithCaption(media.Caption)
		}
		_, err = c.bot.SendPhoto(ctx, params)
	} else {
		params := tu.Document(tu.ID(chatID), tu.File(f))
		if media.Caption != "" {
			params = params.WithCaption(media.Caption)
		}
		_, err = c.bot.SendDocument(ctx, params)
	}
	return err
}

func parseChatID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
