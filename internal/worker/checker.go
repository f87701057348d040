package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"tapcoin-bot/internal/models"
)

type ExpiringLister interface {
	ExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Powerup, error)
}

type Notifier interface {
	Notify(ctx context.Context, identity int64, text string) error
}

// Dedup remembers which notices were already delivered.
type Dedup interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// Checker warns players a day before a powerup runs out.
type Checker struct {
	Powerups ExpiringLister
	Notifier Notifier
	Dedup    Dedup
	Interval time.Duration
	Now      func() time.Time
}

func NewChecker(powerups ExpiringLister, notifier Notifier, dedup Dedup, interval time.Duration) *Checker {
	return &Checker{
		Powerups: powerups,
		Notifier: notifier,
		Dedup:    dedup,
		Interval: interval,
		Now:      time.Now,
	}
}

func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	zap.L().Info("Background powerup worker started", zap.Duration("interval", c.Interval))

	// Run once at start
	c.CheckExpiring(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Background powerup worker stopped")
			return
		case <-ticker.C:
			c.CheckExpiring(ctx)
		}
	}
}

// CheckExpiring notifies owners of powerups expiring in 23 to 25 hours.
func (c *Checker) CheckExpiring(ctx context.Context) int {
	now := c.Now()
	start := now.Add(23 * time.Hour)
	end := now.Add(25 * time.Hour)

	expiring, err := c.Powerups.ExpiringBetween(ctx, start, end)
	if err != nil {
		zap.L().Error("Error querying expiring powerups", zap.Error(err))
		return 0
	}

	sent := 0
	for _, p := range expiring {
		identity, err := strconv.ParseInt(p.UserIdentity, 10, 64)
		if err != nil {
			continue
		}

		key := fmt.Sprintf("notified_powerup_24h_%s", p.ID)
		seen, err := c.Dedup.Seen(ctx, key)
		if err != nil {
			zap.L().Warn("Failed to check notification key", zap.String("key", key), zap.Error(err))
			continue
		}
		if seen {
			continue
		}

		text := fmt.Sprintf("⚠️ Your %s pack expires in 24 hours. %d unit(s) left, use them before they are gone!", p.PackSKU, p.Quantity)
		if err := c.Notifier.Notify(ctx, identity, text); err != nil {
			zap.L().Warn("Failed to send expiry notification", zap.Int64("identity", identity), zap.Error(err))
			continue
		}

		if err := c.Dedup.Mark(ctx, key, 48*time.Hour); err != nil {
			zap.L().Warn("Failed to store notification key", zap.String("key", key), zap.Error(err))
		}
		sent++
		zap.L().Info("Sent expiry notification", zap.Int64("identity", identity), zap.String("powerup", p.ID))
	}

	return sent
}
