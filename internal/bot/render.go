package bot

import (
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"reading-bet-bot/internal/conversation"
)

// commandFromMessage maps a slash command to an engine command. Unknown
// commands are ignored rather than treated as workflow input.
func commandFromMessage(message *telego.Message) (conversation.Command, bool) {
	if message == nil || message.From == nil {
		return nil, false
	}
	name, _, args := tu.ParseCommand(message.Text)
	userID := message.From.ID

	switch name {
	case "start":
		cmd := conversation.Start{UserID: userID, DisplayName: displayName(message.From)}
		if len(args) > 0 {
			cmd.ReferralCode = args[0]
		}
		return cmd, true
	case "daily_log":
		return conversation.StartDailyLog{UserID: userID}, true
	case "ref_link":
		return conversation.IssueReferral{UserID: userID}, true
	case "bet_status":
		return conversation.ViewWagerStatus{UserID: userID}, true
	case "set_payment":
		return conversation.StartPayment{UserID: userID}, true
	case "stop_bet":
		return conversation.StopWager{UserID: userID}, true
	case "cancel":
		return conversation.Cancel{UserID: userID}, true
	case "commands", "help":
		return conversation.ShowCommands{UserID: userID}, true
	default:
		return nil, false
	}
}

func displayName(u *telego.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// render lays out a reply as messages: notices first, then the main text
// carrying the menu.
func render(chatID int64, reply conversation.Reply) []*telego.SendMessageParams {
	var out []*telego.SendMessageParams
	for _, notice := range reply.Notices {
		out = append(out, tu.Message(tu.ID(chatID), notice))
	}
	if reply.Text == "" {
		return out
	}
	msg := tu.Message(tu.ID(chatID), reply.Text)
	if len(reply.Menu) > 0 {
		msg = msg.WithReplyMarkup(keyboard(reply.Menu))
	}
	return append(out, msg)
}

func keyboard(menu []conversation.Button) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(menu))
	for _, b := range menu {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(b.Label).WithCallbackData(string(b.Action)),
		))
	}
	return tu.InlineKeyboard(rows...)
}
