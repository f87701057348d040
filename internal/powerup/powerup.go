package powerup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tapcoin-bot/internal/metrics"
	"tapcoin-bot/internal/models"
)

// IdentityColumn is the storage type of powerups.user_identity. Older
// deployments created it as uuid or bigint.
type IdentityColumn string

const (
	ColumnText   IdentityColumn = "text"
	ColumnUUID   IdentityColumn = "uuid"
	ColumnBigint IdentityColumn = "bigint"
)

// DetectIdentityColumn inspects the live schema once, at store construction.
func DetectIdentityColumn(ctx context.Context, db *gorm.DB) IdentityColumn {
	if db.Dialector.Name() != "postgres" {
		return ColumnText
	}

	var dataType string
	err := db.WithContext(ctx).Raw(
		`SELECT data_type FROM information_schema.columns WHERE table_name = ? AND column_name = ?`,
		"powerups", "user_identity",
	).Scan(&dataType).Error
	if err != nil {
		zap.L().Warn("Failed to detect powerup identity column type", zap.Error(err))
		return ColumnText
	}

	switch dataType {
	case "uuid":
		return ColumnUUID
	case "bigint", "integer", "numeric":
		return ColumnBigint
	default:
		return ColumnText
	}
}

// Accepts reports whether identity can be compared against the column.
func (c IdentityColumn) Accepts(identity string) bool {
	switch c {
	case ColumnUUID:
		_, err := uuid.Parse(identity)
		return err == nil
	case ColumnBigint:
		_, err := strconv.ParseInt(identity, 10, 64)
		return err == nil
	default:
		return identity != ""
	}
}

type Grant struct {
	UserIdentity      string
	Code              string
	PackSKU           string
	Provider          string
	ProviderPaymentID string
	Quantity          int
	Metadata          map[string]string
	ExpiresAt         *time.Time
}

type Store struct {
	db     *gorm.DB
	column IdentityColumn
	now    func() time.Time
}

func NewStore(db *gorm.DB, column IdentityColumn) *Store {
	return &Store{db: db, column: column, now: time.Now}
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Add inserts a grant. A nil result with a nil error means the provider
// payment was already recorded.
func (s *Store) Add(ctx context.Context, g Grant) (*models.Powerup, error) {
	if g.Quantity <= 0 {
		g.Quantity = 1
	}

	p := models.Powerup{
		ID:                uuid.NewString(),
		UserIdentity:      g.UserIdentity,
		Code:              g.Code,
		PackSKU:           g.PackSKU,
		Provider:          g.Provider,
		ProviderPaymentID: g.ProviderPaymentID,
		Status:            models.PowerupStatusActive,
		Quantity:          g.Quantity,
	}
	if g.ExpiresAt != nil {
		exp := g.ExpiresAt.UTC()
		p.ExpiresAt = &exp
	}
	if len(g.Metadata) > 0 {
		raw, err := json.Marshal(g.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode powerup metadata: %w", err)
		}
		p.Metadata = string(raw)
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_payment_id"}},
			DoNothing: true,
		}).
		Create(&p)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to add powerup: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		metrics.PowerupsGranted.WithLabelValues(g.Provider, "duplicate").Inc()
		return nil, nil
	}

	metrics.PowerupsGranted.WithLabelValues(g.Provider, "granted").Inc()
	return &p, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Powerup, error) {
	var p models.Powerup
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get powerup: %w", err)
	}
	return &p, nil
}

func (s *Store) ActiveForUser(ctx context.Context, identity string) ([]models.Powerup, error) {
	return s.active(ctx, identity, "")
}

func (s *Store) ActiveForUserByCode(ctx context.Context, identity, code string) ([]models.Powerup, error) {
	return s.active(ctx, identity, code)
}

func (s *Store) active(ctx context.Context, identity, code string) ([]models.Powerup, error) {
	if !s.column.Accepts(identity) {
		return []models.Powerup{}, nil
	}

	q := s.db.WithContext(ctx).
		Where("user_identity = ? AND status = ?", identity, models.PowerupStatusActive).
		Where("(expires_at IS NULL OR expires_at > ?)", s.now().UTC())
	if code != "" {
		q = q.Where("code = ?", code)
	}

	var out []models.Powerup
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		if isTypeMismatch(err) {
			zap.L().Warn("Powerup identity type mismatch", zap.String("identity", identity), zap.Error(err))
			return []models.Powerup{}, nil
		}
		return nil, fmt.Errorf("failed to list powerups: %w", err)
	}
	if out == nil {
		out = []models.Powerup{}
	}
	return out, nil
}

// ConsumeUnitByID spends one unit. The last unit flips the row to consumed.
// Consumed, expired or missing rows yield nil.
func (s *Store) ConsumeUnitByID(ctx context.Context, id string) (*models.Powerup, error) {
	now := s.now().UTC()

	res := s.db.WithContext(ctx).Model(&models.Powerup{}).
		Where("id = ? AND status = ?", id, models.PowerupStatusActive).
		Where("(expires_at IS NULL OR expires_at > ?)", now).
		Updates(map[string]any{
			"quantity":    gorm.Expr("CASE WHEN quantity > 1 THEN quantity - 1 ELSE quantity END"),
			"status":      gorm.Expr("CASE WHEN quantity > 1 THEN ? ELSE ? END", models.PowerupStatusActive, models.PowerupStatusConsumed),
			"consumed_at": gorm.Expr("CASE WHEN quantity > 1 THEN consumed_at ELSE ? END", now),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to consume powerup: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p != nil {
		metrics.PowerupsConsumed.WithLabelValues(p.Code).Inc()
	}
	return p, nil
}

// ExpiringBetween lists active powerups whose expiry falls in [from, to].
func (s *Store) ExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Powerup, error) {
	var out []models.Powerup
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at BETWEEN ? AND ?", models.PowerupStatusActive, from.UTC(), to.UTC()).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring powerups: %w", err)
	}
	return out, nil
}

func isTypeMismatch(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "22P02", "42883":
		return true
	}
	return false
}
