package models

import (
	"strconv"
	"time"
)

type ReferralCode struct {
	Code      string `gorm:"primaryKey;size:64"`
	OwnerID   int64  `gorm:"not null;index"`
	CreatedAt time.Time
}

func fmtID(id int64) string {
	return strconv.FormatInt(id, 10)
}
