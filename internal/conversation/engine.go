// Package conversation runs the per-user workflows (onboarding, daily log,
// payment) and the one-shot wager commands. Workflow side effects are only
// written when the workflow reaches its final step.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"reading-bet-bot/internal/keymutex"
	"reading-bet-bot/internal/messages"
	"reading-bet-bot/internal/models"
	"reading-bet-bot/internal/pairing"
	"reading-bet-bot/internal/scheduler"
	"reading-bet-bot/internal/storage"
)

// ReminderScheduler is the part of the scheduler the engine drives.
type ReminderScheduler interface {
	Schedule(userID int64, local scheduler.Clock, offset int) (scheduler.Clock, error)
	Unschedule(userID int64)
	Trigger(userID int64) (scheduler.Clock, bool)
	Hold(userID int64) func()
}

// WagerManager is the part of the pairing manager the engine drives.
type WagerManager interface {
	IssueReferral(ctx context.Context, ownerID int64) (*models.ReferralCode, error)
	LookupReferral(ctx context.Context, code string) (*models.ReferralCode, error)
	RedeemWithin(ctx context.Context, code string, inviteeID int64, before func(storage.Store) error) (*pairing.RedeemResult, error)
	RecordPayment(ctx context.Context, userID int64, amount int64) (*models.Bet, error)
	StopBet(ctx context.Context, userID int64) (*models.Bet, error)
	Status(ctx context.Context, userID int64) (*models.Bet, error)
}

// workflow is one user's in-flight conversation. Implementations carry only
// the fields their own steps collect.
type workflow interface {
	step() Step
	submit(ctx context.Context, e *Engine, userID int64, text string) (Reply, error)
}

type Engine struct {
	store  storage.Store
	sched  ReminderScheduler
	wagers WagerManager
	texts  *messages.Catalog
	logger *logrus.Entry

	now     func() time.Time
	link    func(code string) string
	timeout time.Duration

	locks    *keymutex.Mutex
	mu       sync.Mutex
	sessions map[int64]workflow
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithReferralLink renders an issued code as something shareable.
func WithReferralLink(link func(code string) string) Option {
	return func(e *Engine) { e.link = link }
}

// WithTimeout bounds the store and collaborator calls of one command.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func New(store storage.Store, sched ReminderScheduler, wagers WagerManager, texts *messages.Catalog, logger *logrus.Entry, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		sched:    sched,
		wagers:   wagers,
		texts:    texts,
		logger:   logger,
		now:      time.Now,
		link:     func(code string) string { return code },
		locks:    keymutex.New(),
		sessions: make(map[int64]workflow),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch runs one command. Commands for the same user are serialized;
// different users never wait on each other. A non-nil error always comes
// with a Failed reply that is safe to show.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) (Reply, error) {
	unlock := e.locks.Lock(strconv.FormatInt(cmd.User(), 10))
	defer unlock()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	switch c := cmd.(type) {
	case Start:
		return e.start(ctx, c)
	case SubmitOnboardingStep:
		return e.submitOnboarding(ctx, c.UserID, c.Text)
	case StartDailyLog:
		return e.startDailyLog(ctx, c.UserID)
	case SubmitLogStep:
		return e.submitLog(ctx, c.UserID, c.Text)
	case IssueReferral:
		return e.issueReferral(ctx, c.UserID)
	case ViewWagerStatus:
		return e.viewStatus(ctx, c.UserID)
	case StartPayment:
		return e.startPayment(ctx, c.UserID)
	case SubmitPaymentAmount:
		return e.submitPayment(ctx, c.UserID, c.Text)
	case StopWager:
		return e.stopWager(ctx, c.UserID)
	case Cancel:
		return e.cancel(c.UserID), nil
	case SubmitText:
		return e.submitText(ctx, c.UserID, c.Text)
	case ShowCommands:
		return Reply{Outcome: Done, Text: e.texts.Menu, Menu: e.menu()}, nil
	default:
		return e.failed(cmd.User(), e.ActiveStep(cmd.User()), "Unsupported command", fmt.Errorf("%T", cmd))
	}
}

// ActiveStep reports the step the user's workflow is waiting on.
func (e *Engine) ActiveStep(userID int64) Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.sessions[userID]; ok {
		return w.step()
	}
	return StepNone
}

func (e *Engine) session(userID int64) workflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[userID]
}

// begin installs w as the user's workflow, dropping any unfinished one.
func (e *Engine) begin(userID int64, w workflow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[userID] = w
}

func (e *Engine) end(userID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, userID)
}

// advance feeds text to w and ends the session once the workflow is over.
func (e *Engine) advance(ctx context.Context, userID int64, w workflow, text string) (Reply, error) {
	reply, err := w.submit(ctx, e, userID, text)
	if reply.Outcome == Done || reply.Outcome == Aborted {
		e.end(userID)
	}
	return reply, err
}

func (e *Engine) submitText(ctx context.Context, userID int64, text string) (Reply, error) {
	switch e.session(userID).(type) {
	case *onboarding:
		return e.submitOnboarding(ctx, userID, text)
	case *dailyLog:
		return e.submitLog(ctx, userID, text)
	case *payment:
		return e.submitPayment(ctx, userID, text)
	default:
		return e.noWorkflow(), nil
	}
}

func (e *Engine) cancel(userID int64) Reply {
	if e.session(userID) == nil {
		return Reply{Outcome: Aborted, Reason: ReasonNoWorkflow, Text: e.texts.NothingToCancel}
	}
	e.end(userID)
	return Reply{Outcome: Aborted, Reason: ReasonCancelled, Text: e.texts.Cancelled}
}

func (e *Engine) noWorkflow() Reply {
	return Reply{Outcome: Aborted, Reason: ReasonNoWorkflow, Text: e.texts.NoWorkflow}
}

// failed logs err and turns it into the generic failure reply.
func (e *Engine) failed(userID int64, step Step, msg string, err error) (Reply, error) {
	e.logger.WithError(err).WithField("user_id", userID).Error(msg)
	return Reply{Outcome: Failed, Step: step, Text: e.texts.OperationFailed}, fmt.Errorf("%s: %w", msg, err)
}

// loadUser returns the stored user or nil when there is none yet.
func (e *Engine) loadUser(ctx context.Context, userID int64) (*models.User, error) {
	u, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

func (e *Engine) menu() []Button {
	return []Button{
		{Label: e.texts.ButtonReferral, Action: ActionReferral},
		{Label: e.texts.ButtonStatus, Action: ActionStatus},
		{Label: e.texts.ButtonDailyLog, Action: ActionDailyLog},
	}
}

// localDate is the user's calendar day for t at a whole-hour offset.
func localDate(t time.Time, offset int) string {
	return t.UTC().Add(time.Duration(offset) * time.Hour).Format("2006-01-02")
}
