package models

import (
	"time"
)

// Payment tracks a checkout created with an external provider.
type Payment struct {
	ID           uint   `gorm:"primaryKey"`
	UserIdentity int64  `gorm:"not null;index"`
	PackSKU      string `gorm:"size:64;not null"`
	Amount       string `gorm:"size:32;not null"`
	Currency     string `gorm:"size:8;not null"`
	Status       string `gorm:"default:'pending'"`
	YooKassaID   string `gorm:"size:255;uniqueIndex"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
