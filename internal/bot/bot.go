package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/sirupsen/logrus"

	"reading-bet-bot/internal/conversation"
)

// Dispatcher runs commands; *conversation.Engine satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd conversation.Command) (conversation.Reply, error)
}

// Bot turns Telegram updates into commands and renders the replies.
type Bot struct {
	Instance *telego.Bot
	Engine   Dispatcher
	Logger   *logrus.Entry
	Timeout  time.Duration
}

func NewBot(instance *telego.Bot, engine Dispatcher, logger *logrus.Entry, timeout time.Duration) *Bot {
	return &Bot{
		Instance: instance,
		Engine:   engine,
		Logger:   logger,
		Timeout:  timeout,
	}
}

// ReferralLink builds deep links that open the bot with /start <code>.
func ReferralLink(botUsername string) func(code string) string {
	return func(code string) string {
		return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, code)
	}
}

// Start long-polls until ctx is done. Cancelling ctx closes the update
// channel, which stops the handler.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	// Commands: /start [code], /daily_log, /ref_link, /bet_status, ...
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		cmd, ok := commandFromMessage(message)
		if !ok {
			return nil
		}
		b.dispatch(ctx.Context(), message.Chat.ID, cmd)
		return nil
	}, th.AnyCommand())

	// Main menu buttons
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))

		cmd, ok := conversation.ParseAction(callback.Data, callback.From.ID)
		if !ok {
			b.Logger.WithField("data", callback.Data).Warn("Unknown callback data")
			return nil
		}
		b.dispatch(ctx.Context(), callback.From.ID, cmd)
		return nil
	}, th.AnyCallbackQuery())

	// Free text answers the active workflow
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		if message.From == nil {
			return nil
		}
		b.dispatch(ctx.Context(), message.Chat.ID, conversation.SubmitText{
			UserID: message.From.ID,
			Text:   message.Text,
		})
		return nil
	}, th.AnyMessageWithText())

	b.Logger.Info("Bot handler started")
	return handler.Start()
}

func (b *Bot) dispatch(ctx context.Context, chatID int64, cmd conversation.Command) {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	reply, err := b.Engine.Dispatch(ctx, cmd)
	if err != nil {
		b.Logger.WithError(err).WithFields(logrus.Fields{
			"user_id": cmd.User(),
			"command": fmt.Sprintf("%T", cmd),
		}).Error("Command failed")
	}
	for _, params := range render(chatID, reply) {
		if _, err := b.Instance.SendMessage(ctx, params); err != nil {
			b.Logger.WithError(err).WithField("chat_id", chatID).Error("Failed to send reply")
		}
	}
}
