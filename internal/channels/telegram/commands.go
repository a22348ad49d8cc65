package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

const helpText = `Commands:
/reset - wipe this conversation's workspace (everything)
/reset tdb - wipe the tabular database
/reset vdb - wipe the vector knowledge base
/reset files - wipe stored files
/reset mem - wipe memories and instincts
/status - show bot status
/help - this message

Anything else is sent to the agent.`

// handleCommand runs slash commands locally, without a round trip
// through the agent. Unknown commands fall through to the agent, which
// may know them as tools.
func (c *Channel) handleCommand(ctx context.Context, message *telego.Message, threadID, chatID, userID, chatType, text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd := strings.ToLower(fields[0])
	// Group commands arrive as "/reset@botname".
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}

	switch cmd {
	case "/help", "/start":
		c.reply(ctx, message.Chat.ID, helpText)
		return true

	case "/status":
		c.reply(ctx, message.Chat.ID, fmt.Sprintf("Bot status: running\nChannel: Telegram\nBot: @%s", c.bot.Username()))
		return true

	case "/reset":
		scope := workspace.ResetAll
		if len(fields) > 1 {
			scope = strings.ToLower(fields[1])
		}
		if err := c.admin.ResetThread(ctx, threadID, userID, chatType, scope); err != nil {
			slog.Warn("telegram reset failed", "thread", threadID, "scope", scope, "error", err)
			c.reply(ctx, message.Chat.ID, fmt.Sprintf("Reset failed: %v", err))
			return true
		}
		c.reply(ctx, message.Chat.ID, resetConfirmation(scope))
		return true
	}

	return false
}

func resetConfirmation(scope string) string {
	switch scope {
	case workspace.ResetTabular:
		return "Tabular database wiped."
	case workspace.ResetVector:
		return "Vector knowledge base wiped."
	case workspace.ResetFiles:
		return "Stored files wiped."
	case workspace.ResetMemory:
		return "Memories and instincts wiped."
	default:
		return "Workspace wiped. The next message starts fresh."
	}
}

func (c *Channel) reply(ctx context.Context, chatID int64, text string) {
	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		slog.Warn("telegram reply failed", "chat", chatID, "error", err)
	}
}
