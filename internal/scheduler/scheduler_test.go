package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"reading-bet-bot/internal/messages"
	"reading-bet-bot/internal/models"
	"reading-bet-bot/internal/storage/memory"
)

type harness struct {
	store    *memory.Store
	timer    *fakeTimer
	notifier *fakeNotifier
	sched    *Scheduler
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	logger, _ := newTestLogger()
	h := &harness{
		store:    memory.New(),
		timer:    newFakeTimer(),
		notifier: &fakeNotifier{},
	}
	h.sched = New(h.store, h.timer, h.notifier, messages.MustLoad(), logger, opts...)
	return h
}

func TestScheduleConvertsToUTC(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	utc, err := h.sched.Schedule(2, Clock{7, 0}, 2)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if utc != (Clock{5, 0}) {
		t.Fatalf("utc = %v, want 05:00", utc)
	}
	job, ok := h.timer.get(triggerKey(2))
	if !ok {
		t.Fatal("expected a registered trigger")
	}
	if job.at != (Clock{5, 0}) {
		t.Fatalf("trigger at = %v, want 05:00", job.at)
	}
}

func TestScheduleTwiceLeavesOneTrigger(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.sched.Schedule(1, Clock{7, 0}, 2); err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	if _, err := h.sched.Schedule(1, Clock{21, 30}, -3); err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	if h.timer.len() != 1 {
		t.Fatalf("live triggers = %d, want 1", h.timer.len())
	}
	got, ok := h.sched.Trigger(1)
	if !ok || got != (Clock{0, 30}) {
		t.Fatalf("trigger = %v, %v; want 00:30, true", got, ok)
	}
	job, _ := h.timer.get(triggerKey(1))
	if job.at != (Clock{0, 30}) {
		t.Fatalf("timer at = %v, want 00:30", job.at)
	}
}

func TestScheduleConcurrentSameUser(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := h.sched.Schedule(9, Clock{i, 0}, 0); err != nil {
				t.Errorf("schedule: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if h.timer.len() != 1 || h.sched.Len() != 1 {
		t.Fatalf("timer=%d scheduler=%d, want 1 and 1", h.timer.len(), h.sched.Len())
	}
}

func TestScheduleRejectsOffset(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.sched.Schedule(1, Clock{7, 0}, 15); err == nil {
		t.Fatal("expected offset error")
	}
	if h.timer.len() != 0 {
		t.Fatalf("live triggers = %d, want 0", h.timer.len())
	}
}

func TestUnschedule(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.sched.Unschedule(404)

	if _, err := h.sched.Schedule(1, Clock{8, 0}, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	h.sched.Unschedule(1)
	if h.timer.len() != 0 {
		t.Fatalf("live triggers = %d, want 0", h.timer.len())
	}
	if _, ok := h.sched.Trigger(1); ok {
		t.Fatal("trigger still tracked after unschedule")
	}
}

func TestRehydrateSkipsBadRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	for _, u := range []models.User{
		{ID: 1, NotifTimeUTC: "05:00", DailyPageGoal: 10},
		{ID: 2, NotifTimeUTC: "25:99", DailyPageGoal: 10},
		{ID: 3, NotifTimeUTC: "23:15", DailyPageGoal: 10},
		{ID: 4, DailyPageGoal: 10},
	} {
		u := u
		if err := h.store.UpsertUser(ctx, &u); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	n, err := h.sched.Rehydrate(ctx)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if n != 2 {
		t.Fatalf("scheduled = %d, want 2", n)
	}
	if at, ok := h.sched.Trigger(3); !ok || at != (Clock{23, 15}) {
		t.Fatalf("trigger 3 = %v, %v; want 23:15 stored as UTC", at, ok)
	}
	if _, ok := h.sched.Trigger(2); ok {
		t.Fatal("user with invalid time was scheduled")
	}
}

func TestReconcileOnlyTouchesChangedUsers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	for _, u := range []models.User{
		{ID: 1, NotifTimeUTC: "05:00", DailyPageGoal: 10},
		{ID: 2, NotifTimeUTC: "06:00", DailyPageGoal: 10},
	} {
		u := u
		if err := h.store.UpsertUser(ctx, &u); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if _, err := h.sched.Rehydrate(ctx); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	if n, err := h.sched.Reconcile(ctx); err != nil || n != 0 {
		t.Fatalf("reconcile unchanged = %d, %v; want 0", n, err)
	}

	// another instance moved user 2 and onboarded user 3
	for _, u := range []models.User{
		{ID: 2, NotifTimeUTC: "07:30", DailyPageGoal: 10},
		{ID: 3, NotifTimeUTC: "22:00", DailyPageGoal: 10},
	} {
		u := u
		if err := h.store.UpsertUser(ctx, &u); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	n, err := h.sched.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if n != 2 {
		t.Fatalf("rescheduled = %d, want 2", n)
	}
	if at, ok := h.sched.Trigger(2); !ok || at != (Clock{7, 30}) {
		t.Fatalf("trigger 2 = %v, %v; want 07:30", at, ok)
	}
	if h.timer.len() != 3 {
		t.Fatalf("timer jobs = %d, want 3", h.timer.len())
	}
}

func TestFireSendsReminderOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	if err := h.store.UpsertUser(ctx, &models.User{ID: 5, BookTitle: "Dune", DailyPageGoal: 20, NotifTimeUTC: "05:00"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := h.sched.Schedule(5, Clock{5, 0}, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	job, _ := h.timer.get(triggerKey(5))
	job.job()

	got := h.notifier.all()
	if len(got) != 1 {
		t.Fatalf("sent = %d, want 1", len(got))
	}
	if got[0].userID != 5 || !strings.Contains(got[0].text, "Dune") {
		t.Fatalf("sent = %+v", got[0])
	}
}

func TestFireDeliveryFailureKeepsTrigger(t *testing.T) {
	t.Parallel()

	logger, hook := newTestLogger()
	store := memory.New()
	timer := newFakeTimer()
	notifier := &fakeNotifier{err: errDelivery}
	s := New(store, timer, notifier, messages.MustLoad(), logger)

	if _, err := s.Schedule(6, Clock{6, 0}, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	job, _ := timer.get(triggerKey(6))
	job.job()

	if _, ok := timer.get(triggerKey(6)); !ok {
		t.Fatal("trigger removed after failed delivery")
	}
	last := hook.LastEntry()
	if last == nil || last.Level != logrus.ErrorLevel || last.Message != "Failed to send daily reminder" {
		t.Fatalf("last log entry = %+v, want delivery error", last)
	}
}

func TestFireGuardDeduplicates(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)
	h := newHarness(t, WithGuard(NewRedisGuard(rdb, 25*time.Hour)), WithClock(func() time.Time { return now }))

	h.sched.Fire(7, Clock{5, 0})
	h.sched.Fire(7, Clock{5, 0})
	if n := len(h.notifier.all()); n != 1 {
		t.Fatalf("sent = %d, want 1", n)
	}

	now = now.Add(24 * time.Hour)
	h.sched.Fire(7, Clock{5, 0})
	if n := len(h.notifier.all()); n != 2 {
		t.Fatalf("sent after a day = %d, want 2", n)
	}
}

func TestFireGuardErrorStillSends(t *testing.T) {
	t.Parallel()

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	h := newHarness(t, WithGuard(NewRedisGuard(rdb, time.Hour)), WithTimeout(time.Second))
	h.sched.Fire(8, Clock{9, 0})
	if n := len(h.notifier.all()); n != 1 {
		t.Fatalf("sent = %d, want 1", n)
	}
}

// listHookStore runs afterList once the scheduled users have been read, to
// land a write between the listing and the reconcile that acts on it.
type listHookStore struct {
	*memory.Store
	afterList func()
}

func (s *listHookStore) ListScheduledUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.Store.ListScheduledUsers(ctx)
	if s.afterList != nil {
		s.afterList()
	}
	return users, err
}

func TestReconcileKeepsCommitMadeAfterListing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger, _ := newTestLogger()
	store := &listHookStore{Store: memory.New()}
	timer := newFakeTimer()
	sched := New(store, timer, &fakeNotifier{}, messages.MustLoad(), logger)

	if err := store.UpsertUser(ctx, &models.User{ID: 2, NotifTimeUTC: "06:00"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := sched.Rehydrate(ctx); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	store.afterList = func() {
		store.afterList = nil
		unlock := sched.Hold(2)
		defer unlock()
		if _, err := sched.Schedule(2, Clock{20, 0}, 0); err != nil {
			t.Errorf("schedule: %v", err)
		}
		if err := store.UpsertUser(ctx, &models.User{ID: 2, NotifTimeUTC: "20:00"}); err != nil {
			t.Errorf("upsert: %v", err)
		}
	}

	n, err := sched.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if n != 0 {
		t.Fatalf("rescheduled = %d, want 0", n)
	}
	if at, ok := sched.Trigger(2); !ok || at != (Clock{20, 0}) {
		t.Fatalf("trigger = %v, %v; want 20:00", at, ok)
	}
	if job, _ := timer.get(triggerKey(2)); job.at != (Clock{20, 0}) {
		t.Fatalf("timer job at = %v, want 20:00", job.at)
	}
}

func TestHoldBlocksReconcile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	if err := h.store.UpsertUser(ctx, &models.User{ID: 4, NotifTimeUTC: "08:00"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	unlock := h.sched.Hold(4)
	done := make(chan int, 1)
	go func() {
		n, _ := h.sched.Reconcile(ctx)
		done <- n
	}()

	select {
	case <-done:
		t.Fatal("reconcile finished while the user was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()

	select {
	case n := <-done:
		if n != 1 {
			t.Fatalf("rescheduled = %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("reconcile did not finish after release")
	}
}
