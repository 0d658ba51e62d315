// Package pairing issues referral codes, turns redeemed codes into wagers
// and runs the wager lifecycle. At most one Bet exists per pair of users.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reading-bet-bot/internal/messages"
	"reading-bet-bot/internal/models"
	"reading-bet-bot/internal/notify"
	"reading-bet-bot/internal/storage"
)

var (
	ErrCodeNotFound = errors.New("referral code not found")
	ErrSelfReferral = errors.New("cannot redeem your own referral code")
	ErrNoWager      = errors.New("no wager found")
)

const codeAttempts = 3

type Manager struct {
	store    storage.Store
	locker   Locker
	notifier notify.Notifier
	texts    *messages.Catalog
	logger   *logrus.Entry
	now      func() time.Time
	newCode  func() string
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCodeGenerator replaces the uuid-based referral token source.
func WithCodeGenerator(gen func() string) Option {
	return func(m *Manager) { m.newCode = gen }
}

func New(store storage.Store, locker Locker, notifier notify.Notifier, texts *messages.Catalog, logger *logrus.Entry, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		locker:   locker,
		notifier: notifier,
		texts:    texts,
		logger:   logger,
		now:      time.Now,
		newCode:  newReferralCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newReferralCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func pairLockKey(pair storage.PairKey) string {
	return "bet_pair_lock_" + pair.String()
}

// RedeemResult describes the wager a redemption landed on.
type RedeemResult struct {
	OwnerID int64
	Bet     *models.Bet
	Created bool
}

// IssueReferral creates a fresh code owned by ownerID.
func (m *Manager) IssueReferral(ctx context.Context, ownerID int64) (*models.ReferralCode, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		rc := &models.ReferralCode{
			Code:      m.newCode(),
			OwnerID:   ownerID,
			CreatedAt: m.now().UTC(),
		}
		err := m.store.CreateReferralCode(ctx, rc)
		if errors.Is(err, storage.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save referral code: %w", err)
		}
		m.logger.WithFields(logrus.Fields{
			"user_id": ownerID,
			"code":    rc.Code,
		}).Info("Issued referral code")
		return rc, nil
	}
	return nil, fmt.Errorf("failed to generate a unique referral code after %d attempts", codeAttempts)
}

// LookupReferral resolves a code without side effects.
func (m *Manager) LookupReferral(ctx context.Context, code string) (*models.ReferralCode, error) {
	rc, err := m.store.GetReferralCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get referral code: %w", err)
	}
	return rc, nil
}

// Redeem links the invitee to the code owner and starts a wager for the
// pair unless one already exists.
func (m *Manager) Redeem(ctx context.Context, code string, inviteeID int64) (*RedeemResult, error) {
	return m.RedeemWithin(ctx, code, inviteeID, nil)
}

// RedeemWithin is Redeem with extra writes: before runs inside the same
// atomic unit, ahead of the redemption, while the pair lock is held.
func (m *Manager) RedeemWithin(ctx context.Context, code string, inviteeID int64, before func(storage.Store) error) (*RedeemResult, error) {
	rc, err := m.LookupReferral(ctx, code)
	if err != nil {
		return nil, err
	}
	if rc.OwnerID == inviteeID {
		return nil, ErrSelfReferral
	}

	pair := storage.NewPairKey(rc.OwnerID, inviteeID)
	unlock, err := m.locker.Lock(ctx, pairLockKey(pair))
	if err != nil {
		return nil, fmt.Errorf("failed to lock pair %s: %w", pair, err)
	}
	defer unlock()

	res := &RedeemResult{OwnerID: rc.OwnerID}
	err = m.store.Atomic(ctx, func(tx storage.Store) error {
		if before != nil {
			if err := before(tx); err != nil {
				return err
			}
		}

		invitee, err := tx.GetUser(ctx, inviteeID)
		if err != nil {
			return fmt.Errorf("failed to get invitee %d: %w", inviteeID, err)
		}
		if invitee.ReferrerID == nil {
			owner := rc.OwnerID
			invitee.ReferrerID = &owner
			if err := tx.UpsertUser(ctx, invitee); err != nil {
				return fmt.Errorf("failed to save referrer: %w", err)
			}
		}

		bet := &models.Bet{
			UserA:     pair.Low,
			UserB:     pair.High,
			Status:    models.BetStarted,
			StartedAt: m.now().UTC(),
		}
		created, err := tx.CreateBetIfAbsent(ctx, bet)
		if err != nil {
			return fmt.Errorf("failed to create bet: %w", err)
		}
		if created {
			res.Bet, res.Created = bet, true
			return nil
		}
		existing, err := tx.GetBetByPair(ctx, pair)
		if err != nil {
			return fmt.Errorf("failed to get bet for %s: %w", pair, err)
		}
		res.Bet = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"pair":    pair.String(),
		"code":    code,
		"created": res.Created,
	}).Info("Redeemed referral code")
	return res, nil
}

// RecordPayment sets the payment amount on the user's started bet. A bet
// stopped before the pair lock was taken is left untouched.
func (m *Manager) RecordPayment(ctx context.Context, userID int64, amount int64) (*models.Bet, error) {
	bet, err := m.findLocked(ctx, userID, func(bet *models.Bet) bool {
		if !bet.Active() {
			return false
		}
		bet.PaymentAmount = &amount
		return true
	})
	if err != nil {
		return nil, err
	}
	if !bet.Active() {
		return nil, ErrNoWager
	}
	m.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"bet_id":  bet.ID,
		"amount":  amount,
	}).Info("Recorded wager payment")
	return bet, nil
}

// StopBet moves the user's bet to stopped and tells both participants. A
// nil bet means the user has none. Stopping an already stopped bet leaves
// it as is but notifies again.
func (m *Manager) StopBet(ctx context.Context, userID int64) (*models.Bet, error) {
	bet, err := m.findLocked(ctx, userID, func(bet *models.Bet) bool {
		if bet.Status == models.BetStopped {
			return false
		}
		now := m.now().UTC()
		bet.Status = models.BetStopped
		bet.StoppedAt = &now
		return true
	})
	if err != nil || bet == nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"bet_id":  bet.ID,
	}).Info("Stopped wager")

	for _, id := range []int64{userID, bet.Partner(userID)} {
		if err := m.notifier.Send(ctx, id, m.texts.WagerStopped); err != nil {
			m.logger.WithError(err).WithField("user_id", id).Error("Failed to notify wager participant")
		}
	}
	return bet, nil
}

// Status returns the user's bet, or nil when there is none.
func (m *Manager) Status(ctx context.Context, userID int64) (*models.Bet, error) {
	bet, err := m.store.FindBetByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find bet: %w", err)
	}
	return bet, nil
}

// findLocked locates the user's bet, then re-reads and mutates it under the
// pair lock. mutate reports whether the bet must be written back.
func (m *Manager) findLocked(ctx context.Context, userID int64, mutate func(*models.Bet) bool) (*models.Bet, error) {
	found, err := m.Status(ctx, userID)
	if err != nil || found == nil {
		return nil, err
	}

	pair := storage.NewPairKey(found.UserA, found.UserB)
	unlock, err := m.locker.Lock(ctx, pairLockKey(pair))
	if err != nil {
		return nil, fmt.Errorf("failed to lock pair %s: %w", pair, err)
	}
	defer unlock()

	bet, err := m.store.GetBetByPair(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("failed to reload bet for %s: %w", pair, err)
	}
	if mutate(bet) {
		if err := m.store.UpdateBet(ctx, bet); err != nil {
			return nil, fmt.Errorf("failed to update bet: %w", err)
		}
	}
	return bet, nil
}

// WithStore returns a copy bound to st, typically a transaction.
func (m *Manager) WithStore(st storage.Store) *Manager {
	c := *m
	c.store = st
	return &c
}
