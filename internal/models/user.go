package models

import (
	"time"
)

// DateLayout is the layout of the calendar-date columns.
const DateLayout = "2006-01-02"

type User struct {
	ID                 uint   `gorm:"primaryKey" json:"-"`
	Identity           int64  `gorm:"uniqueIndex;not null" json:"identity"`
	Username           string `gorm:"size:255" json:"username"`
	LanguageCode       string `gorm:"size:16" json:"language_code,omitempty"`
	Balance            int64  `gorm:"not null;default:0;index" json:"balance"`
	Energy             int    `gorm:"not null;default:0" json:"energy"`
	TodayEarned        int64  `gorm:"not null;default:0" json:"today_earned"`
	TapsToday          int    `gorm:"not null;default:0" json:"taps_today"`
	LastResetDate      string `gorm:"size:10" json:"last_reset_date"`
	LastDailyClaimDate string `gorm:"size:10" json:"last_daily_claim_date,omitempty"`
	ReferralCount      int    `gorm:"not null;default:0" json:"referral_count"`
	ReferralPoints     int64  `gorm:"not null;default:0" json:"referral_points"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
