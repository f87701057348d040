package database

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Bootstrapper creates the schema exactly once. Callers that arrive while the
// migration runs wait for it; a failed attempt is retried by the next caller.
type Bootstrapper struct {
	db     *gorm.DB
	models []any

	mu   sync.Mutex
	done bool
}

func NewBootstrapper(db *gorm.DB, models ...any) *Bootstrapper {
	if len(models) == 0 {
		models = Models
	}
	return &Bootstrapper{db: db, models: models}
}

func (b *Bootstrapper) Ensure(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return nil
	}

	if err := b.db.WithContext(ctx).AutoMigrate(b.models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	b.done = true
	zap.L().Info("Database schema is ready")
	return nil
}
