package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"reading-bet-bot/internal/models"
)

type dailyLog struct {
	at    Step
	pages int
}

func (d *dailyLog) step() Step { return d.at }

func (e *Engine) setupRequired() Reply {
	return Reply{Outcome: Aborted, Reason: ReasonSetupRequired, Text: e.texts.SetupRequired}
}

func (e *Engine) startDailyLog(ctx context.Context, userID int64) (Reply, error) {
	e.end(userID)
	u, err := e.loadUser(ctx, userID)
	if err != nil {
		return e.failed(userID, StepNone, "Failed to load user", err)
	}
	if !u.SetupComplete() {
		return e.setupRequired(), nil
	}
	w := &dailyLog{at: StepAwaitPages}
	e.begin(userID, w)
	return Reply{Outcome: Next, Step: w.at, Text: fmt.Sprintf(e.texts.AskPages, u.DailyPageGoal)}, nil
}

func (e *Engine) submitLog(ctx context.Context, userID int64, text string) (Reply, error) {
	w, ok := e.session(userID).(*dailyLog)
	if !ok {
		u, err := e.loadUser(ctx, userID)
		if err != nil {
			return e.failed(userID, StepNone, "Failed to load user", err)
		}
		if !u.SetupComplete() {
			return e.setupRequired(), nil
		}
		return e.noWorkflow(), nil
	}
	return e.advance(ctx, userID, w, text)
}

func (d *dailyLog) submit(ctx context.Context, e *Engine, userID int64, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	switch d.at {
	case StepAwaitPages:
		pages, err := strconv.Atoi(text)
		if err != nil || pages < 0 {
			return Reply{Outcome: Reprompt, Step: d.at, Text: e.texts.InvalidPages}, nil
		}
		d.pages = pages
		d.at = StepAwaitNote
		return Reply{Outcome: Next, Step: d.at, Text: e.texts.AskNote}, nil
	case StepAwaitNote:
		if strings.EqualFold(text, skipWord) {
			text = ""
		}
		return e.commitDailyLog(ctx, userID, d.pages, text)
	default:
		return Reply{}, fmt.Errorf("daily log in unexpected step %d", d.at)
	}
}

// commitDailyLog writes the entry for the user's local date, replacing any
// earlier entry for that day. The goal is read at commit time.
func (e *Engine) commitDailyLog(ctx context.Context, userID int64, pages int, note string) (Reply, error) {
	u, err := e.loadUser(ctx, userID)
	if err != nil {
		return e.failed(userID, StepAwaitNote, "Failed to load user", err)
	}
	if !u.SetupComplete() {
		return e.setupRequired(), nil
	}

	entry := &models.DailyLog{
		UserID:        userID,
		Date:          localDate(e.now(), u.TimezoneOffset),
		PagesRead:     pages,
		Note:          note,
		GoalCompleted: pages >= u.DailyPageGoal,
	}
	if err := e.store.UpsertDailyLog(ctx, entry); err != nil {
		return e.failed(userID, StepAwaitNote, "Failed to save daily log", err)
	}

	e.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"date":    entry.Date,
		"pages":   pages,
		"goal":    u.DailyPageGoal,
	}).Info("Daily log recorded")

	verdict := e.texts.GoalMissed
	if entry.GoalCompleted {
		verdict = e.texts.GoalReached
	}
	return Reply{
		Outcome: Done,
		Text:    fmt.Sprintf(e.texts.LogRecorded, pages, u.DailyPageGoal) + " " + verdict,
	}, nil
}
