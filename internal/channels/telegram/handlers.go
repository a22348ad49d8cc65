package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
)

// handleUpdate normalizes one received message into the bus envelope.
// Disallowed senders are dropped before any media download happens.
func (c *Channel) handleUpdate(ctx context.Context, message *telego.Message) {
	if message.From == nil {
		return
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if message.From.Username != "" {
		senderID += "|" + message.From.Username
	}
	if !c.IsAllowed(senderID) {
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	chatType := "group"
	if message.Chat.Type == telego.ChatTypePrivate {
		chatType = "direct"
	}
	userID := strconv.FormatInt(message.From.ID, 10)
	threadID := "telegram:" + chatID

	text := message.Text
	if text == "" {
		text = message.Caption
	}

	if strings.HasPrefix(text, "/") {
		if c.handleCommand(ctx, message, threadID, chatID, userID, chatType, text) {
			return
		}
	}

	attachments := c.collectMedia(ctx, message, threadID, userID, chatType)

	content := text
	for _, path := range attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[file: %s]", path)
	}
	if content == "" {
		return
	}

	var metadata map[string]string
	if chatType == "group" {
		metadata = map[string]string{
			"group_id":   chatID,
			"group_name": message.Chat.Title,
		}
	}

	c.HandleMessage(senderID, chatID, content, strconv.Itoa(message.MessageID), chatType, attachments, metadata)
}
