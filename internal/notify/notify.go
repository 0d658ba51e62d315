package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Notifier delivers a text to a user. Delivery is best-effort; callers log
// failures and carry on.
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Telegram sends through the Bot API. Telegram user IDs double as private
// chat IDs, so no lookup is needed.
type Telegram struct {
	Bot *telego.Bot
}

func NewTelegram(bot *telego.Bot) *Telegram {
	return &Telegram{Bot: bot}
}

func (t *Telegram) Send(ctx context.Context, userID int64, text string) error {
	if _, err := t.Bot.SendMessage(ctx, tu.Message(tu.ID(userID), text)); err != nil {
		return fmt.Errorf("send message to %d: %w", userID, err)
	}
	return nil
}
