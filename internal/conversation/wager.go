package conversation

import (
	"context"
	"fmt"

	"reading-bet-bot/internal/models"
)

const statusDateLayout = "2006-01-02"

func (e *Engine) issueReferral(ctx context.Context, userID int64) (Reply, error) {
	rc, err := e.wagers.IssueReferral(ctx, userID)
	if err != nil {
		return e.failed(userID, StepNone, "Failed to issue referral code", err)
	}
	return Reply{Outcome: Done, Text: fmt.Sprintf(e.texts.ReferralLink, e.link(rc.Code))}, nil
}

func (e *Engine) viewStatus(ctx context.Context, userID int64) (Reply, error) {
	bet, err := e.wagers.Status(ctx, userID)
	if err != nil {
		return e.failed(userID, StepNone, "Failed to load wager", err)
	}
	if bet == nil {
		return Reply{Outcome: Done, Reason: ReasonNotFound, Text: e.texts.StatusNone}, nil
	}
	return Reply{Outcome: Done, Text: e.statusText(ctx, userID, bet)}, nil
}

func (e *Engine) statusText(ctx context.Context, userID int64, bet *models.Bet) string {
	paid := e.texts.PaymentUnset
	if bet.PaymentAmount != nil {
		paid = fmt.Sprintf(e.texts.PaymentValue, *bet.PaymentAmount)
	}
	return fmt.Sprintf(e.texts.Status,
		bet.Status,
		e.nameOf(ctx, bet.Partner(userID)),
		bet.StartedAt.UTC().Format(statusDateLayout),
		paid,
	)
}

// stopWager leaves the reply text empty: the manager already notified both
// participants, the caller included.
func (e *Engine) stopWager(ctx context.Context, userID int64) (Reply, error) {
	bet, err := e.wagers.StopBet(ctx, userID)
	if err != nil {
		return e.failed(userID, StepNone, "Failed to stop wager", err)
	}
	if bet == nil {
		return e.noActiveWager(), nil
	}
	return Reply{Outcome: Done}, nil
}
