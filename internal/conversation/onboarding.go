package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"reading-bet-bot/internal/models"
	"reading-bet-bot/internal/pairing"
	"reading-bet-bot/internal/scheduler"
	"reading-bet-bot/internal/storage"
)

// skipWord leaves an optional answer empty.
const skipWord = "skip"

type onboarding struct {
	at           Step
	referralCode string
	goal         int
	local        scheduler.Clock
	offset       int
	book         string
}

func (o *onboarding) step() Step { return o.at }

func (e *Engine) start(ctx context.Context, c Start) (Reply, error) {
	e.end(c.UserID)

	u, err := e.loadUser(ctx, c.UserID)
	if err != nil {
		return e.failed(c.UserID, StepNone, "Failed to load user", err)
	}
	if u == nil || (c.DisplayName != "" && u.DisplayName != c.DisplayName) {
		if u == nil {
			u = &models.User{ID: c.UserID}
		}
		u.DisplayName = c.DisplayName
		if err := e.store.UpsertUser(ctx, u); err != nil {
			return e.failed(c.UserID, StepNone, "Failed to save user", err)
		}
	}

	w := &onboarding{at: StepAwaitGoal}
	var notices []string
	if code := strings.TrimSpace(c.ReferralCode); code != "" {
		notice, ok, err := e.checkReferral(ctx, c.UserID, code)
		if err != nil {
			return e.failed(c.UserID, StepNone, "Failed to check referral code", err)
		}
		if ok {
			w.referralCode = code
		}
		notices = append(notices, notice)
	}
	e.begin(c.UserID, w)

	e.logger.WithFields(logrus.Fields{
		"user_id":  c.UserID,
		"referred": w.referralCode != "",
	}).Info("Onboarding started")
	return Reply{
		Outcome: Next,
		Step:    w.at,
		Text:    fmt.Sprintf(e.texts.Welcome, u.Name()),
		Notices: notices,
	}, nil
}

// checkReferral validates a start code and returns the notice to show.
func (e *Engine) checkReferral(ctx context.Context, userID int64, code string) (string, bool, error) {
	rc, err := e.wagers.LookupReferral(ctx, code)
	if errors.Is(err, pairing.ErrCodeNotFound) {
		return e.texts.ReferralUnknown, false, nil
	}
	if err != nil {
		return "", false, err
	}
	if rc.OwnerID == userID {
		return e.texts.ReferralSelf, false, nil
	}
	return fmt.Sprintf(e.texts.InvitedBy, e.nameOf(ctx, rc.OwnerID)), true, nil
}

// nameOf is best effort; unknown users render as their ID.
func (e *Engine) nameOf(ctx context.Context, userID int64) string {
	u, err := e.loadUser(ctx, userID)
	if err != nil || u == nil {
		return strconv.FormatInt(userID, 10)
	}
	return u.Name()
}

func (e *Engine) submitOnboarding(ctx context.Context, userID int64, text string) (Reply, error) {
	w, ok := e.session(userID).(*onboarding)
	if !ok {
		return e.noWorkflow(), nil
	}
	return e.advance(ctx, userID, w, text)
}

func (o *onboarding) submit(ctx context.Context, e *Engine, userID int64, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	switch o.at {
	case StepAwaitGoal:
		goal, err := strconv.Atoi(text)
		if err != nil || goal <= 0 {
			return o.reprompt(e.texts.InvalidGoal), nil
		}
		o.goal = goal
		return o.next(StepAwaitNotifTime, e.texts.AskNotifTime), nil
	case StepAwaitNotifTime:
		local, err := scheduler.ParseClock(text)
		if err != nil {
			return o.reprompt(e.texts.InvalidTime), nil
		}
		o.local = local
		return o.next(StepAwaitTimezone, e.texts.AskTimezone), nil
	case StepAwaitTimezone:
		offset, err := scheduler.ParseOffset(text)
		if err != nil {
			return o.reprompt(e.texts.InvalidTimezone), nil
		}
		o.offset = offset
		return o.next(StepAwaitBookTitle, e.texts.AskBook), nil
	case StepAwaitBookTitle:
		if strings.EqualFold(text, skipWord) {
			text = ""
		}
		o.book = text
		return e.commitOnboarding(ctx, userID, o)
	default:
		return Reply{}, fmt.Errorf("onboarding in unexpected step %d", o.at)
	}
}

func (o *onboarding) next(step Step, text string) Reply {
	o.at = step
	return Reply{Outcome: Next, Step: step, Text: text}
}

func (o *onboarding) reprompt(text string) Reply {
	return Reply{Outcome: Reprompt, Step: o.at, Text: text}
}

// commitOnboarding schedules the reminder, then saves the profile and any
// referral redemption in one atomic unit. A failed save puts the previous
// reminder back. The scheduler hold keeps Reconcile from acting on a row
// read before the save.
func (e *Engine) commitOnboarding(ctx context.Context, userID int64, o *onboarding) (Reply, error) {
	unlock := e.sched.Hold(userID)
	defer unlock()

	prev, hadPrev := e.sched.Trigger(userID)
	restore := func() {
		if !hadPrev {
			e.sched.Unschedule(userID)
			return
		}
		if _, err := e.sched.Schedule(userID, prev, 0); err != nil {
			e.logger.WithError(err).WithField("user_id", userID).Error("Failed to restore previous reminder")
		}
	}

	utc, err := e.sched.Schedule(userID, o.local, o.offset)
	if err != nil {
		restore()
		return e.failed(userID, o.at, "Failed to schedule reminder", err)
	}

	save := func(tx storage.Store) error {
		u, err := tx.GetUser(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			u, err = &models.User{ID: userID}, nil
		}
		if err != nil {
			return err
		}
		u.DailyPageGoal = o.goal
		u.NotifTimeUTC = utc.String()
		u.TimezoneOffset = o.offset
		u.BookTitle = o.book
		return tx.UpsertUser(ctx, u)
	}

	var redeemed *pairing.RedeemResult
	if o.referralCode != "" {
		redeemed, err = e.wagers.RedeemWithin(ctx, o.referralCode, userID, save)
		if errors.Is(err, pairing.ErrCodeNotFound) || errors.Is(err, pairing.ErrSelfReferral) {
			e.logger.WithError(err).WithField("user_id", userID).Warn("Referral dropped at setup")
			redeemed = nil
			err = e.store.Atomic(ctx, save)
		}
	} else {
		err = e.store.Atomic(ctx, save)
	}
	if err != nil {
		restore()
		return e.failed(userID, o.at, "Failed to save onboarding", err)
	}

	reply := Reply{
		Outcome: Done,
		Text:    fmt.Sprintf(e.texts.SetupComplete, o.local, utc),
		Menu:    e.menu(),
	}
	if redeemed != nil && redeemed.Created {
		reply.Notices = append(reply.Notices, fmt.Sprintf(e.texts.WagerStarted, e.nameOf(ctx, redeemed.OwnerID)))
	}
	e.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"notif_utc":  utc.String(),
		"offset":     o.offset,
		"wager_made": redeemed != nil && redeemed.Created,
	}).Info("Onboarding completed")
	return reply, nil
}
