package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Recurrence int

const (
	Daily Recurrence = iota
)

var ErrDuplicateKey = errors.New("timer key already registered")

// TimerService runs jobs at a UTC time of day. Register fails for a key that
// is still live; callers cancel first.
type TimerService interface {
	Register(key string, at Clock, rec Recurrence, job func()) error
	Cancel(key string)
}

// CronTimer is a TimerService on top of robfig/cron. Each job runs on its
// own goroutine, so one slow delivery never delays another trigger.
type CronTimer struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

func NewCronTimer(logger *logrus.Entry) *CronTimer {
	cl := cron.PrintfLogger(logger)
	return &CronTimer{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		entries: make(map[string]cron.EntryID),
	}
}

func cronSpec(at Clock, rec Recurrence) (string, error) {
	switch rec {
	case Daily:
		return fmt.Sprintf("%d %d * * *", at.Minute, at.Hour), nil
	default:
		return "", fmt.Errorf("unsupported recurrence %d", rec)
	}
}

func (t *CronTimer) Register(key string, at Clock, rec Recurrence, job func()) error {
	spec, err := cronSpec(at, rec)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	id, err := t.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to add cron entry %q: %w", spec, err)
	}
	t.entries[key] = id
	return nil
}

func (t *CronTimer) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.entries[key]; ok {
		t.cron.Remove(id)
		delete(t.entries, key)
	}
}

// Next reports the next fire time of key. It is only meaningful once the
// timer has been started.
func (t *CronTimer) Next(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return t.cron.Entry(id).Next, true
}

func (t *CronTimer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *CronTimer) Start() {
	t.cron.Start()
}

// Stop halts the timer and returns a channel closed once running jobs finish.
func (t *CronTimer) Stop() <-chan struct{} {
	return t.cron.Stop().Done()
}
