// Package scheduler keeps exactly one daily reminder trigger per user and
// rebuilds the whole set from stored users at startup.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"reading-bet-bot/internal/keymutex"
	"reading-bet-bot/internal/messages"
	"reading-bet-bot/internal/notify"
	"reading-bet-bot/internal/storage"
)

const defaultFireTimeout = 10 * time.Second

type Scheduler struct {
	store    storage.Store
	timer    TimerService
	notifier notify.Notifier
	texts    *messages.Catalog
	logger   *logrus.Entry

	guard   Guard
	now     func() time.Time
	timeout time.Duration

	mu       sync.Mutex
	triggers map[int64]Clock

	// users serializes a store write plus reschedule for one user against
	// Reconcile reading that user back.
	users *keymutex.Mutex
}

type Option func(*Scheduler)

// WithGuard enables fire deduplication.
func WithGuard(g Guard) Option {
	return func(s *Scheduler) { s.guard = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTimeout bounds the store lookup and delivery of a single fire.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(store storage.Store, timer TimerService, notifier notify.Notifier, texts *messages.Catalog, logger *logrus.Entry, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		timer:    timer,
		notifier: notifier,
		texts:    texts,
		logger:   logger,
		now:      time.Now,
		timeout:  defaultFireTimeout,
		triggers: make(map[int64]Clock),
		users:    keymutex.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func triggerKey(userID int64) string {
	return "reminder-" + strconv.FormatInt(userID, 10)
}

// Schedule replaces the user's trigger with one firing daily at local time
// shifted by offset, and returns the UTC fire time.
func (s *Scheduler) Schedule(userID int64, local Clock, offset int) (Clock, error) {
	if err := ValidateOffset(offset); err != nil {
		return Clock{}, err
	}
	utc := local.ToUTC(offset)
	key := triggerKey(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.timer.Cancel(key)
	delete(s.triggers, userID)

	if err := s.timer.Register(key, utc, Daily, func() { s.Fire(userID, utc) }); err != nil {
		return Clock{}, fmt.Errorf("failed to register trigger for %d: %w", userID, err)
	}
	s.triggers[userID] = utc

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"local_time": local.String(),
		"offset":     offset,
		"utc_time":   utc.String(),
	}).Info("Scheduled daily reminder")
	return utc, nil
}

func (s *Scheduler) Unschedule(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.triggers[userID]; !ok {
		return
	}
	s.timer.Cancel(triggerKey(userID))
	delete(s.triggers, userID)
	s.logger.WithField("user_id", userID).Info("Removed daily reminder")
}

// Trigger returns the UTC fire time of the user's live trigger.
func (s *Scheduler) Trigger(userID int64) (Clock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.triggers[userID]
	return c, ok
}

// Hold blocks Reconcile from touching userID until the returned func is
// called. Callers that save a new reminder time and reschedule hold it across
// both steps.
func (s *Scheduler) Hold(userID int64) func() {
	return s.users.Lock(strconv.FormatInt(userID, 10))
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers)
}

// Rehydrate schedules every stored user that has a reminder time. Stored
// times are already UTC. A bad record is logged and skipped.
func (s *Scheduler) Rehydrate(ctx context.Context) (int, error) {
	n, err := s.sync(ctx, true)
	if err != nil {
		return 0, err
	}
	s.logger.WithField("scheduled", n).Info("Rehydrated reminders")
	return n, nil
}

// Reconcile picks up reminder times changed by another instance. Only users
// whose stored time differs from the live trigger are rescheduled.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	n, err := s.sync(ctx, false)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.WithField("rescheduled", n).Info("Reconciled reminders")
	}
	return n, nil
}

func (s *Scheduler) sync(ctx context.Context, all bool) (int, error) {
	users, err := s.store.ListScheduledUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list scheduled users: %w", err)
	}

	scheduled := 0
	for _, u := range users {
		var ok bool
		if all {
			ok = s.apply(u.ID, u.NotifTimeUTC, true)
		} else {
			ok = s.refresh(ctx, u.ID)
		}
		if ok {
			scheduled++
		}
	}
	return scheduled, nil
}

// refresh rereads the user under its hold, so a listing taken before a
// concurrent commit cannot roll that commit's trigger back.
func (s *Scheduler) refresh(ctx context.Context, userID int64) bool {
	unlock := s.Hold(userID)
	defer unlock()

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to reload user for reconcile")
		return false
	}
	if u.NotifTimeUTC == "" {
		return false
	}
	return s.apply(userID, u.NotifTimeUTC, false)
}

// apply schedules the stored UTC time. Unless force is set, a live trigger
// already at that time is left alone.
func (s *Scheduler) apply(userID int64, stored string, force bool) bool {
	at, err := ParseClock(stored)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":  userID,
			"utc_time": stored,
		}).Error("Skipping reminder with unreadable time")
		return false
	}
	if !force {
		if live, ok := s.Trigger(userID); ok && live == at {
			return false
		}
	}
	if _, err := s.Schedule(userID, at, 0); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to reschedule reminder")
		return false
	}
	return true
}

// Fire delivers one reminder. Failures are logged; the trigger stays live.
func (s *Scheduler) Fire(userID int64, at Clock) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"utc_time": at.String(),
	})

	if s.guard != nil {
		key := fmt.Sprintf("reminder_sent_%d_%s_%s", userID, s.now().UTC().Format("2006-01-02"), at)
		claimed, err := s.guard.Claim(ctx, key)
		switch {
		case err != nil:
			log.WithError(err).Warn("Reminder guard unavailable, sending anyway")
		case !claimed:
			log.Info("Reminder already sent for this slot")
			return
		}
	}

	text := s.texts.ReminderPlain
	if u, err := s.store.GetUser(ctx, userID); err != nil {
		log.WithError(err).Warn("Failed to load user for reminder text")
	} else {
		text = s.texts.ReminderFor(u.BookTitle, u.DailyPageGoal)
	}

	if err := s.notifier.Send(ctx, userID, text); err != nil {
		log.WithError(err).Error("Failed to send daily reminder")
		return
	}
	log.Info("Sent daily reminder")
}
