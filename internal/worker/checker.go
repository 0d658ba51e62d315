package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Reconciler re-reads stored reminder times and fixes live triggers.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Checker periodically reconciles reminders so that profiles saved by
// another instance get a trigger here too.
type Checker struct {
	Reminders Reconciler
	Interval  time.Duration
	Timeout   time.Duration
	Logger    *logrus.Entry
}

func NewChecker(reminders Reconciler, interval, timeout time.Duration, logger *logrus.Entry) *Checker {
	return &Checker{
		Reminders: reminders,
		Interval:  interval,
		Timeout:   timeout,
		Logger:    logger,
	}
}

// Start blocks until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	c.Logger.WithField("interval", c.Interval.String()).Info("Background reminder worker started")

	for {
		select {
		case <-ctx.Done():
			c.Logger.Info("Background reminder worker stopped")
			return
		case <-ticker.C:
			c.check(ctx)
		}
	}
}

func (c *Checker) check(ctx context.Context) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	n, err := c.Reminders.Reconcile(ctx)
	if err != nil {
		c.Logger.WithError(err).Error("Error reconciling reminders")
		return
	}
	c.Logger.WithField("rescheduled", n).Debug("Reminder check cycle done")
}
