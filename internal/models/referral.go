package models

import (
	"time"
)

// ReferralEdge records that ReferrerIdentity brought ReferredIdentity into the game.
// A referred identity has at most one edge.
type ReferralEdge struct {
	ID               uint  `gorm:"primaryKey"`
	ReferrerIdentity int64 `gorm:"not null;index"`
	ReferredIdentity int64 `gorm:"not null;uniqueIndex"`
	Reward           int64 `gorm:"not null"`
	CreatedAt        time.Time
}
