package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tapcoin-bot/internal/config"
	"tapcoin-bot/internal/models"
)

// Models lists every table the schema bootstrap creates.
var Models = []any{
	&models.User{},
	&models.ReferralEdge{},
	&models.TaskClaim{},
	&models.Powerup{},
	&models.Payment{},
}

// ConnectPostgres opens the store. The schema is created separately by a Bootstrapper.
func ConnectPostgres(cfg *config.Config) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.AppEnv != "production" {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: NewZapGormLogger(zap.L(), level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	zap.L().Info("Connected to PostgreSQL")
	return db, nil
}
