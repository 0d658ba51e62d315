package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeJob struct {
	at  Clock
	job func()
}

type fakeTimer struct {
	mu   sync.Mutex
	jobs map[string]fakeJob
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{jobs: make(map[string]fakeJob)}
}

func (f *fakeTimer) Register(key string, at Clock, rec Recurrence, job func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	f.jobs[key] = fakeJob{at: at, job: job}
	return nil
}

func (f *fakeTimer) Cancel(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, key)
}

func (f *fakeTimer) get(key string) (fakeJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[key]
	return j, ok
}

func (f *fakeTimer) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type sent struct {
	userID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{userID: userID, text: text})
	return nil
}

func (f *fakeNotifier) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

var errDelivery = errors.New("chat not found")

func newTestLogger() (*logrus.Entry, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	return logrus.NewEntry(logger), hook
}
