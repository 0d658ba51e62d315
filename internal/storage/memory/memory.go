// Package memory provides an in-process Store. It backs the tests and the
// DB_DRIVER=memory mode; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"reading-bet-bot/internal/models"
	"reading-bet-bot/internal/storage"
)

type logKey struct {
	userID int64
	date   string
}

type state struct {
	users     map[int64]models.User
	logs      map[logKey]models.DailyLog
	referrals map[string]models.ReferralCode
	bets      map[storage.PairKey]models.Bet
	nextBetID uint
}

func (st *state) clone() *state {
	c := &state{
		users:     make(map[int64]models.User, len(st.users)),
		logs:      make(map[logKey]models.DailyLog, len(st.logs)),
		referrals: make(map[string]models.ReferralCode, len(st.referrals)),
		bets:      make(map[storage.PairKey]models.Bet, len(st.bets)),
		nextBetID: st.nextBetID,
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.logs {
		c.logs[k] = v
	}
	for k, v := range st.referrals {
		c.referrals[k] = v
	}
	for k, v := range st.bets {
		c.bets[k] = v
	}
	return c
}

// Store is a map-backed storage.Store. Writes and Atomic units share txMu, so
// restoring a snapshot on rollback never discards a write made outside the
// unit.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	st   *state
	now  func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		st: &state{
			users:     make(map[int64]models.User),
			logs:      make(map[logKey]models.DailyLog),
			referrals: make(map[string]models.ReferralCode),
			bets:      make(map[storage.PairKey]models.Bet),
		},
		now: time.Now,
	}
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (s *Store) upsertUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if prev, ok := s.st.users[user.ID]; ok {
		user.CreatedAt = prev.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.st.users[user.ID] = *user
	return nil
}

func (s *Store) ListScheduledUsers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for _, u := range s.st.users {
		if u.NotifTimeUTC != "" {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetDailyLog(ctx context.Context, userID int64, date string) (*models.DailyLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.st.logs[logKey{userID, date}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &l, nil
}

func (s *Store) upsertDailyLog(ctx context.Context, log *models.DailyLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := logKey{log.UserID, log.Date}
	now := s.now()
	if prev, ok := s.st.logs[key]; ok {
		log.CreatedAt = prev.CreatedAt
	} else {
		log.CreatedAt = now
	}
	log.UpdatedAt = now
	s.st.logs[key] = *log
	return nil
}

func (s *Store) ListDailyLogs(ctx context.Context, userID int64) ([]models.DailyLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DailyLog
	for k, l := range s.st.logs {
		if k.userID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) createReferralCode(ctx context.Context, code *models.ReferralCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.referrals[code.Code]; ok {
		return storage.ErrAlreadyExists
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.now()
	}
	s.st.referrals[code.Code] = *code
	return nil
}

func (s *Store) GetReferralCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rc, ok := s.st.referrals[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &rc, nil
}

func (s *Store) GetBetByPair(ctx context.Context, pair storage.PairKey) (*models.Bet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.bets[pair]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &b, nil
}

func (s *Store) FindBetByUser(ctx context.Context, userID int64) (*models.Bet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Bet
	for _, b := range s.st.bets {
		if !b.Involves(userID) {
			continue
		}
		b := b
		if found == nil || storage.PreferBet(&b, found) {
			found = &b
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (s *Store) createBetIfAbsent(ctx context.Context, bet *models.Bet) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	pair := storage.NewPairKey(bet.UserA, bet.UserB)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.bets[pair]; ok {
		return false, nil
	}
	s.st.nextBetID++
	now := s.now()
	bet.ID = s.st.nextBetID
	bet.UserA, bet.UserB = pair.Low, pair.High
	bet.CreatedAt = now
	bet.UpdatedAt = now
	s.st.bets[pair] = *bet
	return true, nil
}

func (s *Store) updateBet(ctx context.Context, bet *models.Bet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pair := storage.NewPairKey(bet.UserA, bet.UserB)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.st.bets[pair]
	if !ok || prev.ID != bet.ID {
		return storage.ErrNotFound
	}
	bet.UpdatedAt = s.now()
	s.st.bets[pair] = *bet
	return nil
}

func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.upsertUser(ctx, user)
}

func (s *Store) UpsertDailyLog(ctx context.Context, log *models.DailyLog) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.upsertDailyLog(ctx, log)
}

func (s *Store) CreateReferralCode(ctx context.Context, code *models.ReferralCode) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.createReferralCode(ctx, code)
}

func (s *Store) CreateBetIfAbsent(ctx context.Context, bet *models.Bet) (bool, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.createBetIfAbsent(ctx, bet)
}

func (s *Store) UpdateBet(ctx context.Context, bet *models.Bet) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.updateBet(ctx, bet)
}

func (s *Store) Atomic(ctx context.Context, fn func(storage.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	if err := fn(txStore{s}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// txStore is handed to Atomic callbacks. It already holds txMu, so its writes
// and nested Atomic calls join the enclosing unit.
type txStore struct {
	*Store
}

func (t txStore) Atomic(ctx context.Context, fn func(storage.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(t)
}

func (t txStore) UpsertUser(ctx context.Context, user *models.User) error {
	return t.upsertUser(ctx, user)
}

func (t txStore) UpsertDailyLog(ctx context.Context, log *models.DailyLog) error {
	return t.upsertDailyLog(ctx, log)
}

func (t txStore) CreateReferralCode(ctx context.Context, code *models.ReferralCode) error {
	return t.createReferralCode(ctx, code)
}

func (t txStore) CreateBetIfAbsent(ctx context.Context, bet *models.Bet) (bool, error) {
	return t.createBetIfAbsent(ctx, bet)
}

func (t txStore) UpdateBet(ctx context.Context, bet *models.Bet) error {
	return t.updateBet(ctx, bet)
}
