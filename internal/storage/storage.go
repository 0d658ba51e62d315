// Package storage defines the persistence contract shared by the engine,
// the reminder scheduler and the wager manager.
package storage

import (
	"context"
	"errors"
	"fmt"

	"reading-bet-bot/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a create collides with an existing key.
	ErrAlreadyExists = errors.New("record already exists")
)

// PairKey is the order-independent identity of two users.
type PairKey struct {
	Low  int64
	High int64
}

// NewPairKey normalizes the two IDs so that NewPairKey(a, b) == NewPairKey(b, a).
func NewPairKey(a, b int64) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

func (k PairKey) String() string {
	return fmt.Sprintf("%d:%d", k.Low, k.High)
}

// PreferBet orders the bets of one user for FindBetByUser: a started bet
// wins, then the later StartedAt, then the higher ID.
func PreferBet(a, b *models.Bet) bool {
	if a.Active() != b.Active() {
		return a.Active()
	}
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.After(b.StartedAt)
	}
	return a.ID > b.ID
}

// Store persists users, daily logs, referral codes and bets.
type Store interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
	// ListScheduledUsers returns every user with a non-empty NotifTimeUTC.
	ListScheduledUsers(ctx context.Context) ([]models.User, error)

	GetDailyLog(ctx context.Context, userID int64, date string) (*models.DailyLog, error)
	UpsertDailyLog(ctx context.Context, log *models.DailyLog) error
	// ListDailyLogs returns a user's whole log history ordered by date. No
	// bot flow reads it; it exists for inspection and for checking what the
	// conversation flows wrote.
	ListDailyLogs(ctx context.Context, userID int64) ([]models.DailyLog, error)

	CreateReferralCode(ctx context.Context, code *models.ReferralCode) error
	GetReferralCode(ctx context.Context, code string) (*models.ReferralCode, error)

	GetBetByPair(ctx context.Context, pair PairKey) (*models.Bet, error)
	// FindBetByUser returns the bet the user participates in, preferring a
	// started bet and then the most recently started one.
	FindBetByUser(ctx context.Context, userID int64) (*models.Bet, error)
	// CreateBetIfAbsent inserts the bet unless one already exists for its
	// pair. The check and the insert are a single atomic step.
	CreateBetIfAbsent(ctx context.Context, bet *models.Bet) (bool, error)
	UpdateBet(ctx context.Context, bet *models.Bet) error

	// Atomic runs fn against a Store whose writes commit together or not at all.
	Atomic(ctx context.Context, fn func(Store) error) error
}
