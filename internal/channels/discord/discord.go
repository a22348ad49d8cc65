// Package discord adapts the Discord gateway to the runtime's channel
// contract. Direct messages always reach the agent; guild messages
// only when the bot is mentioned.
package discord

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/goaide/internal/bus"
	"github.com/nextlevelbuilder/goaide/internal/channels"
	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

const (
	// discordMessageLimit is the API cap on message length.
	discordMessageLimit = 2000

	// maxAttachmentBytes caps inbound attachment downloads.
	maxAttachmentBytes = 20 * 1024 * 1024
)

// Channel connects to Discord via gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	admin     *channels.Admin
	botUserID string // populated on start
}

// New builds the adapter. The admin handle serves /reset commands and
// places inbound attachments into the thread's workspace.
func New(cfg config.DiscordConfig, msgBus *bus.MessageBus, admin *channels.Admin) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus, cfg.AllowedUserIDs),
		session:     session,
		admin:       admin,
	}, nil
}

// Start opens the gateway connection.
func (c *Channel) Start(_ context.Context) error {
	c.session.AddHandler(c.onMessageCreate)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers one outbound message: files first, then the text split
// into API-sized chunks.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat id for discord send")
	}

	for _, media := range msg.Media {
		if err := c.sendFile(msg.ChatID, media); err != nil {
			slog.Warn("discord media send failed", "path", media.URL, "error", err)
		}
	}

	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}
	for _, chunk := range channels.SplitMessage(msg.Content, discordMessageLimit) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		if _, err := c.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

func (c *Channel) sendFile(channelID string, media bus.MediaAttachment) error {
	f, err := os.Open(media.URL)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	_, err = c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: media.Caption,
		Files: []*discordgo.File{{
			Name:        filepath.Base(media.URL),
			ContentType: media.ContentType,
			Reader:      f,
		}},
	})
	return err
}

// StartTyping shows the typing indicator and refreshes it until stop
// is called. Discord drops the indicator after about ten seconds.
func (c *Channel) StartTyping(ctx context.Context, channelID string) (stop func()) {
	typingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(8 * time.Second)
		defer ticker.Stop()
		for {
			_ = c.session.ChannelTyping(channelID)
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return cancel
}

// onMessageCreate normalizes one gateway message into the bus envelope.
func (c *Channel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	if m.Author.Username != "" {
		senderID += "|" + m.Author.Username
	}
	if !c.IsAllowed(senderID) {
		return
	}

	chatType := "group"
	if m.GuildID == "" {
		chatType = "direct"
	}

	content := m.Content

	// Guild messages only reach the agent when the bot is mentioned.
	if chatType == "group" {
		if !c.isMentioned(m) {
			return
		}
		content = stripMention(content, c.botUserID)
	}

	ctx := context.Background()
	threadID := "discord:" + m.ChannelID
	userID := m.Author.ID

	var attachments []string
	for _, att := range m.Attachments {
		path, err := c.saveAttachment(ctx, threadID, userID, chatType, att)
		if err != nil {
			slog.Warn("discord attachment save failed", "name", att.Filename, "error", err)
			continue
		}
		attachments = append(attachments, path)
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[file: %s]", path)
	}

	if strings.HasPrefix(strings.TrimSpace(content), "/") {
		if c.handleCommand(ctx, m.ChannelID, threadID, userID, chatType, strings.TrimSpace(content)) {
			return
		}
	}
	if content == "" {
		return
	}

	var metadata map[string]string
	if chatType == "group" {
		metadata = map[string]string{"group_id": m.GuildID}
	}

	c.HandleMessage(senderID, m.ChannelID, content, m.ID, chatType, attachments, metadata)
}

func (c *Channel) isMentioned(m *discordgo.MessageCreate) bool {
	for _, u := range m.Mentions {
		if u.ID == c.botUserID {
			return true
		}
	}
	return false
}

// stripMention removes the bot's mention token so the agent sees the
// bare request.
func stripMention(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}

// saveAttachment downloads one attachment into the thread's workspace.
func (c *Channel) saveAttachment(ctx context.Context, threadID, userID, chatType string, att *discordgo.MessageAttachment) (string, error) {
	if att.Size > maxAttachmentBytes {
		return "", fmt.Errorf("attachment too large: %d bytes", att.Size)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return "", fmt.Errorf("attachment exceeds max size during download")
	}

	return c.admin.SaveUpload(ctx, threadID, userID, chatType, att.Filename, data)
}

const helpText = `Commands:
/reset - wipe this conversation's workspace (everything)
/reset tdb | vdb | files | mem - wipe one scope
/help - this message

Anything else is sent to the agent.`

// handleCommand runs slash commands locally. Unknown commands fall
// through to the agent.
func (c *Channel) handleCommand(ctx context.Context, channelID, threadID, userID, chatType, content string) bool {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "/help":
		c.reply(channelID, helpText)
		return true

	case "/reset":
		scope := workspace.ResetAll
		if len(fields) > 1 {
			scope = strings.ToLower(fields[1])
		}
		if err := c.admin.ResetThread(ctx, threadID, userID, chatType, scope); err != nil {
			slog.Warn("discord reset failed", "thread", threadID, "scope", scope, "error", err)
			c.reply(channelID, fmt.Sprintf("Reset failed: %v", err))
			return true
		}
		c.reply(channelID, "Workspace scope "+scope+" wiped.")
		return true
	}
	return false
}

func (c *Channel) reply(channelID, text string) {
	if _, err := c.session.ChannelMessageSend(channelID, text); err != nil {
		slog.Warn("discord reply failed", "channel", channelID, "error", err)
	}
}
