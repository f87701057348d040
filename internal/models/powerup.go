package models

import (
	"time"
)

const (
	PowerupStatusActive   = "active"
	PowerupStatusConsumed = "consumed"
)

// Powerup is a purchased or granted entitlement. (Provider, ProviderPaymentID)
// is unique so a replayed payment callback cannot grant twice.
type Powerup struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	UserIdentity      string     `gorm:"size:64;not null;index" json:"user_identity"`
	Code              string     `gorm:"size:64;not null" json:"code"`
	PackSKU           string     `gorm:"size:64" json:"pack_sku,omitempty"`
	Provider          string     `gorm:"size:32;not null;uniqueIndex:idx_powerup_payment" json:"provider"`
	ProviderPaymentID string     `gorm:"size:255;not null;uniqueIndex:idx_powerup_payment" json:"provider_payment_id"`
	Status            string     `gorm:"size:16;not null;default:'active'" json:"status"`
	Quantity          int        `gorm:"not null;default:1" json:"quantity"`
	Metadata          string     `gorm:"type:text" json:"metadata,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	ConsumedAt        *time.Time `json:"consumed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
