package models

import (
	"time"
)

const (
	BetStarted = "started"
	BetStopped = "stopped"
)

// Bet is a wager between two users. UserA < UserB always holds, so the
// unique index on the pair covers both orderings.
type Bet struct {
	ID            uint   `gorm:"primaryKey"`
	UserA         int64  `gorm:"not null;uniqueIndex:idx_bet_pair"`
	UserB         int64  `gorm:"not null;uniqueIndex:idx_bet_pair;index"`
	Status        string `gorm:"size:16;default:'started'"`
	PaymentAmount *int64
	StartedAt     time.Time
	StoppedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (b *Bet) Active() bool {
	return b != nil && b.Status == BetStarted
}

func (b *Bet) Involves(userID int64) bool {
	return b.UserA == userID || b.UserB == userID
}

// Partner returns the other participant.
func (b *Bet) Partner(userID int64) int64 {
	if b.UserA == userID {
		return b.UserB
	}
	return b.UserA
}
