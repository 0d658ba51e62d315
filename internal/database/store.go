package database

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reading-bet-bot/internal/models"
	"reading-bet-bot/internal/storage"
)

// Store implements storage.Store on gorm. Inside Atomic it is bound to the
// transaction.
type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(user).Error
}

func (s *Store) ListScheduledUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("notif_time_utc <> ?", "").
		Order("id").
		Find(&users).Error
	return users, err
}

func (s *Store) GetDailyLog(ctx context.Context, userID int64, date string) (*models.DailyLog, error) {
	var l models.DailyLog
	err := s.db.WithContext(ctx).
		Where(&models.DailyLog{UserID: userID, Date: date}).
		First(&l).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (s *Store) UpsertDailyLog(ctx context.Context, log *models.DailyLog) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(log).Error
}

func (s *Store) ListDailyLogs(ctx context.Context, userID int64) ([]models.DailyLog, error) {
	var logs []models.DailyLog
	err := s.db.WithContext(ctx).
		Where(&models.DailyLog{UserID: userID}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}}).
		Find(&logs).Error
	return logs, err
}

func (s *Store) CreateReferralCode(ctx context.Context, code *models.ReferralCode) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(code)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetReferralCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&rc).Error; err != nil {
		return nil, notFound(err)
	}
	return &rc, nil
}

func (s *Store) GetBetByPair(ctx context.Context, pair storage.PairKey) (*models.Bet, error) {
	var b models.Bet
	err := s.db.WithContext(ctx).
		Where("user_a = ? AND user_b = ?", pair.Low, pair.High).
		First(&b).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (s *Store) FindBetByUser(ctx context.Context, userID int64) (*models.Bet, error) {
	var bets []models.Bet
	err := s.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Find(&bets).Error
	if err != nil {
		return nil, err
	}
	var found *models.Bet
	for i := range bets {
		if found == nil || storage.PreferBet(&bets[i], found) {
			found = &bets[i]
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

// CreateBetIfAbsent relies on the unique pair index: a concurrent insert for
// the same pair affects no rows instead of failing.
func (s *Store) CreateBetIfAbsent(ctx context.Context, bet *models.Bet) (bool, error) {
	pair := storage.NewPairKey(bet.UserA, bet.UserB)
	bet.UserA, bet.UserB = pair.Low, pair.High
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_a"}, {Name: "user_b"}},
			DoNothing: true,
		}).
		Create(bet)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) UpdateBet(ctx context.Context, bet *models.Bet) error {
	res := s.db.WithContext(ctx).
		Model(bet).
		Select("*").
		Omit("id", "created_at").
		Updates(bet)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) Atomic(ctx context.Context, fn func(storage.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
