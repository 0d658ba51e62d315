package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"reading-bet-bot/internal/pairing"
)

type payment struct{}

func (payment) step() Step { return StepAwaitAmount }

func (e *Engine) noActiveWager() Reply {
	return Reply{Outcome: Aborted, Reason: ReasonNoActiveWager, Text: e.texts.NoActiveWager}
}

func (e *Engine) startPayment(ctx context.Context, userID int64) (Reply, error) {
	e.end(userID)
	bet, err := e.wagers.Status(ctx, userID)
	if err != nil {
		return e.failed(userID, StepNone, "Failed to load wager", err)
	}
	if !bet.Active() {
		return e.noActiveWager(), nil
	}
	e.begin(userID, &payment{})
	return Reply{Outcome: Next, Step: StepAwaitAmount, Text: e.texts.AskAmount}, nil
}

func (e *Engine) submitPayment(ctx context.Context, userID int64, text string) (Reply, error) {
	w, ok := e.session(userID).(*payment)
	if !ok {
		return e.noWorkflow(), nil
	}
	return e.advance(ctx, userID, w, text)
}

func (p *payment) submit(ctx context.Context, e *Engine, userID int64, text string) (Reply, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || amount <= 0 {
		return Reply{Outcome: Reprompt, Step: StepAwaitAmount, Text: e.texts.InvalidAmount}, nil
	}

	bet, err := e.wagers.Status(ctx, userID)
	if err != nil {
		return e.failed(userID, StepAwaitAmount, "Failed to load wager", err)
	}
	if !bet.Active() {
		return e.noActiveWager(), nil
	}
	if _, err := e.wagers.RecordPayment(ctx, userID, amount); err != nil {
		if errors.Is(err, pairing.ErrNoWager) {
			return e.noActiveWager(), nil
		}
		return e.failed(userID, StepAwaitAmount, "Failed to record payment", err)
	}
	return Reply{Outcome: Done, Text: fmt.Sprintf(e.texts.PaymentSet, amount)}, nil
}
