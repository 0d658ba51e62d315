package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"reading-bet-bot/internal/messages"
	"reading-bet-bot/internal/models"
	"reading-bet-bot/internal/pairing"
	"reading-bet-bot/internal/scheduler"
	"reading-bet-bot/internal/storage"
	"reading-bet-bot/internal/storage/memory"
)

var fixedNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fakeTimer struct {
	mu   sync.Mutex
	jobs map[string]scheduler.Clock
}

func (f *fakeTimer) Register(key string, at scheduler.Clock, _ scheduler.Recurrence, _ func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[key]; ok {
		return fmt.Errorf("%w: %s", scheduler.ErrDuplicateKey, key)
	}
	f.jobs[key] = at
	return nil
}

func (f *fakeTimer) Cancel(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, key)
}

func (f *fakeTimer) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []int64
}

func (f *fakeNotifier) Send(_ context.Context, userID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, userID)
	return nil
}

var errDiskFull = errors.New("disk full")

// flakyStore fails user writes while failing is set, including writes made
// inside an atomic unit.
type flakyStore struct {
	storage.Store
	failing *atomic.Bool
}

func (f *flakyStore) UpsertUser(ctx context.Context, u *models.User) error {
	if f.failing.Load() {
		return errDiskFull
	}
	return f.Store.UpsertUser(ctx, u)
}

func (f *flakyStore) Atomic(ctx context.Context, fn func(storage.Store) error) error {
	return f.Store.Atomic(ctx, func(tx storage.Store) error {
		return fn(&flakyStore{Store: tx, failing: f.failing})
	})
}

// failingScheduler refuses every registration.
type failingScheduler struct{}

func (failingScheduler) Schedule(int64, scheduler.Clock, int) (scheduler.Clock, error) {
	return scheduler.Clock{}, errors.New("timer unavailable")
}

func (failingScheduler) Unschedule(int64) {}

func (failingScheduler) Trigger(int64) (scheduler.Clock, bool) {
	return scheduler.Clock{}, false
}

func (failingScheduler) Hold(int64) func() {
	return func() {}
}

type fixture struct {
	engine   *Engine
	store    *memory.Store
	sched    *scheduler.Scheduler
	timer    *fakeTimer
	wagers   *pairing.Manager
	notifier *fakeNotifier
	failing  *atomic.Bool
	hook     *logtest.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	entry := logrus.NewEntry(logger)
	texts := messages.MustLoad()

	f := &fixture{
		store:    memory.New(),
		timer:    &fakeTimer{jobs: make(map[string]scheduler.Clock)},
		notifier: &fakeNotifier{},
		failing:  &atomic.Bool{},
		hook:     hook,
	}
	store := &flakyStore{Store: f.store, failing: f.failing}
	f.sched = scheduler.New(store, f.timer, f.notifier, texts, entry)
	f.wagers = pairing.New(store, pairing.NewLocalLocker(), f.notifier, texts, entry,
		pairing.WithClock(func() time.Time { return fixedNow }),
		pairing.WithCodeGenerator(func() string { return "ABC123" }),
	)
	f.engine = New(store, f.sched, f.wagers, texts, entry,
		WithClock(func() time.Time { return fixedNow }),
		WithReferralLink(func(code string) string { return "https://t.me/test_bot?start=" + code }),
	)
	return f
}

func (f *fixture) dispatch(t *testing.T, cmd Command) Reply {
	t.Helper()
	reply, err := f.engine.Dispatch(context.Background(), cmd)
	if err != nil && reply.Outcome != Failed {
		t.Fatalf("Dispatch(%T) error = %v with outcome %v", cmd, err, reply.Outcome)
	}
	return reply
}

// onboard drives a user through every onboarding step.
func (f *fixture) onboard(t *testing.T, userID int64, code string, answers ...string) Reply {
	t.Helper()
	f.dispatch(t, Start{UserID: userID, DisplayName: fmt.Sprintf("user%d", userID), ReferralCode: code})
	var reply Reply
	for _, a := range answers {
		reply = f.dispatch(t, SubmitOnboardingStep{UserID: userID, Text: a})
	}
	return reply
}

func (f *fixture) seedUser(t *testing.T, u models.User) {
	t.Helper()
	if err := f.store.UpsertUser(context.Background(), &u); err != nil {
		t.Fatalf("seed user %d: %v", u.ID, err)
	}
}
