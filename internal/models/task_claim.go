package models

import (
	"time"
)

type TaskClaim struct {
	ID           uint   `gorm:"primaryKey"`
	UserIdentity int64  `gorm:"not null;uniqueIndex:idx_task_claim"`
	Code         string `gorm:"size:64;not null;uniqueIndex:idx_task_claim"`
	Reward       int64  `gorm:"not null"`
	CreatedAt    time.Time
}
