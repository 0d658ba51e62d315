package models

import (
	"time"
)

// User is keyed by the Telegram user ID, which is also the private chat ID.
type User struct {
	ID             int64  `gorm:"primaryKey;autoIncrement:false"`
	DisplayName    string `gorm:"size:255"`
	DailyPageGoal  int    `gorm:"default:0"`
	NotifTimeUTC   string `gorm:"size:5;index"` // "HH:MM", empty until onboarding completes
	TimezoneOffset int    `gorm:"default:0"`
	BookTitle      string `gorm:"size:512"`
	ReferrerID     *int64 `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SetupComplete reports whether the user has a goal and a reminder time.
func (u *User) SetupComplete() bool {
	return u != nil && u.DailyPageGoal > 0 && u.NotifTimeUTC != ""
}

// Name returns the display name, falling back to the numeric ID.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return fmtID(u.ID)
}
