package telegram

import (
	"context"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// typingRefresh keeps the indicator alive; Telegram drops a chat
// action after about five seconds.
const typingRefresh = 4 * time.Second

// StartTyping shows the typing indicator for the chat and refreshes it
// until the returned stop is called.
func (c *Channel) StartTyping(ctx context.Context, chatIDStr string) (stop func()) {
	chatID, err := parseChatID(chatIDStr)
	if err != nil {
		return func() {}
	}

	typingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(typingRefresh)
		defer ticker.Stop()
		for {
			_ = c.bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return cancel
}
