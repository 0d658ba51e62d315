package models

import (
	"time"
)

// DailyLog holds one record per user and calendar day ("2006-01-02").
type DailyLog struct {
	UserID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Date          string `gorm:"primaryKey;size:10"`
	PagesRead     int    `gorm:"not null"`
	Note          string `gorm:"size:2048"`
	GoalCompleted bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
