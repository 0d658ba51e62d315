package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestCronTimerRegisterCancel(t *testing.T) {
	t.Parallel()

	logger, _ := newTestLogger()
	timer := NewCronTimer(logger)

	if err := timer.Register("reminder-1", Clock{5, 0}, Daily, func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := timer.Register("reminder-1", Clock{6, 0}, Daily, func() {})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("duplicate register error = %v, want %v", err, ErrDuplicateKey)
	}
	if timer.Len() != 1 {
		t.Fatalf("entries = %d, want 1", timer.Len())
	}

	timer.Cancel("reminder-1")
	timer.Cancel("reminder-1")
	if timer.Len() != 0 {
		t.Fatalf("entries = %d, want 0", timer.Len())
	}
}

func TestCronTimerNextIsUTC(t *testing.T) {
	t.Parallel()

	logger, _ := newTestLogger()
	timer := NewCronTimer(logger)
	timer.Start()
	defer timer.Stop()

	if err := timer.Register("reminder-2", Clock{5, 30}, Daily, func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	next, ok := timer.Next("reminder-2")
	if !ok {
		t.Fatal("expected entry")
	}
	next = next.UTC()
	if next.Hour() != 5 || next.Minute() != 30 {
		t.Fatalf("next = %v, want 05:30 UTC", next)
	}
	if d := time.Until(next); d <= 0 || d > 24*time.Hour {
		t.Fatalf("next fire in %v, want within a day", d)
	}
}

func TestCronSpecRejectsUnknownRecurrence(t *testing.T) {
	t.Parallel()

	if _, err := cronSpec(Clock{1, 2}, Recurrence(9)); err == nil {
		t.Fatal("expected error")
	}
	spec, err := cronSpec(Clock{1, 2}, Daily)
	if err != nil || spec != "2 1 * * *" {
		t.Fatalf("spec = %q, %v; want \"2 1 * * *\"", spec, err)
	}
}
