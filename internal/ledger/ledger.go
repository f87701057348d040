package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tapcoin-bot/internal/identity"
	"tapcoin-bot/internal/metrics"
	"tapcoin-bot/internal/models"
)

// Reasons reported when an operation leaves the ledger unchanged.
const (
	ReasonNoEnergy       = "no_energy"
	ReasonDailyCap       = "daily_cap"
	ReasonUnknownTask    = "unknown_task"
	ReasonReferralOnly   = "referral_only"
	ReasonAlreadyClaimed = "already_claimed"
)

var ErrUserNotFound = errors.New("user not found")

type Settings struct {
	EnergyCap      int
	PointsPerTap   int
	DailyTapCap    int
	ReferralReward int64
}

func DefaultSettings() Settings {
	return Settings{
		EnergyCap:      50,
		PointsPerTap:   1,
		DailyTapCap:    5000,
		ReferralReward: 800,
	}
}

type Profile struct {
	Username     string
	LanguageCode string
}

// Outcome is the result of a tap or reward. Reason is set when nothing changed.
type Outcome struct {
	User    *models.User
	Applied bool
	Reward  int64
	Reason  string
}

type Service struct {
	db       *gorm.DB
	settings Settings
	now      func() time.Time
}

func NewService(db *gorm.DB, settings Settings) *Service {
	return &Service{
		db:       db,
		settings: settings,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock used for calendar-day decisions.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Settings() Settings {
	return s.settings
}

// Today is the server-local calendar date.
func (s *Service) Today() string {
	return s.now().Format(models.DateLayout)
}

func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("identity = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

// GetOrCreateUser returns the row for id, creating it when absent. Referral
// credit runs only for the call whose insert created the row, so a retried
// signup cannot pay the referrer twice.
func (s *Service) GetOrCreateUser(ctx context.Context, id int64, referralCode string, profile Profile) (*models.User, bool, error) {
	user, err := s.GetUser(ctx, id)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		newUser := models.User{
			Identity:      id,
			Username:      profile.Username,
			LanguageCode:  profile.LanguageCode,
			Energy:        s.settings.EnergyCap,
			LastResetDate: s.Today(),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&newUser)
		if res.Error != nil {
			return fmt.Errorf("failed to create user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		created = true
		return s.creditReferrer(tx, id, referralCode)
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		metrics.UsersCreated.Inc()
		zap.L().Info("User created", zap.Int64("identity", id), zap.String("referral_code", referralCode))
	}

	user, err = s.GetUser(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (s *Service) creditReferrer(tx *gorm.DB, newID int64, code string) error {
	if code == "" {
		return nil
	}

	referrerID, ok := identity.ParseReferrer(code, newID)
	if !ok {
		zap.L().Info("Ignoring referral code", zap.Int64("identity", newID), zap.String("code", code))
		return nil
	}

	var referrer models.User
	err := tx.Select("id").Where("identity = ?", referrerID).First(&referrer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		zap.L().Info("Referrer not found", zap.Int64("identity", newID), zap.Int64("referrer", referrerID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load referrer: %w", err)
	}

	reward := s.settings.ReferralReward
	edge := models.ReferralEdge{
		ReferrerIdentity: referrerID,
		ReferredIdentity: newID,
		Reward:           reward,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
	if res.Error != nil {
		return fmt.Errorf("failed to record referral: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	err = tx.Model(&models.User{}).
		Where("identity = ?", referrerID).
		Updates(map[string]any{
			"balance":         gorm.Expr("balance + ?", reward),
			"referral_count":  gorm.Expr("referral_count + 1"),
			"referral_points": gorm.Expr("referral_points + ?", reward),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to credit referrer: %w", err)
	}

	metrics.ReferralCredits.Inc()
	zap.L().Info("Referral credited", zap.Int64("referrer", referrerID), zap.Int64("identity", newID), zap.Int64("reward", reward))
	return nil
}

// RefreshDailyState resets energy and daily counters on the first access of a
// calendar day. Later calls on the same day do not touch the store.
func (s *Service) RefreshDailyState(ctx context.Context, user *models.User) (*models.User, error) {
	today := s.Today()
	if user.LastResetDate == today {
		return user, nil
	}

	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND (last_reset_date IS NULL OR last_reset_date <> ?)", user.ID, today).
		Updates(map[string]any{
			"energy":          s.settings.EnergyCap,
			"today_earned":    0,
			"taps_today":      0,
			"last_reset_date": today,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reset daily state: %w", err)
	}

	return s.GetUser(ctx, user.Identity)
}

// ApplyTap spends one energy for PointsPerTap in a single conditional update.
func (s *Service) ApplyTap(ctx context.Context, user *models.User) (Outcome, error) {
	points := s.settings.PointsPerTap

	q := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ? AND energy > 0", user.ID)
	if s.settings.DailyTapCap > 0 {
		q = q.Where("taps_today < ?", s.settings.DailyTapCap)
	}
	res := q.Updates(map[string]any{
		"energy":       gorm.Expr("energy - 1"),
		"balance":      gorm.Expr("balance + ?", points),
		"today_earned": gorm.Expr("today_earned + ?", points),
		"taps_today":   gorm.Expr("taps_today + 1"),
	})
	if res.Error != nil {
		return Outcome{}, fmt.Errorf("failed to apply tap: %w", res.Error)
	}

	fresh, err := s.GetUser(ctx, user.Identity)
	if err != nil {
		return Outcome{}, err
	}

	if res.RowsAffected == 0 {
		reason := ReasonNoEnergy
		if s.settings.DailyTapCap > 0 && fresh.TapsToday >= s.settings.DailyTapCap {
			reason = ReasonDailyCap
		}
		metrics.Taps.WithLabelValues(reason).Inc()
		return Outcome{User: fresh, Reason: reason}, nil
	}

	metrics.Taps.WithLabelValues("applied").Inc()
	return Outcome{User: fresh, Applied: true, Reward: int64(points)}, nil
}

// ApplyTaskReward credits the reward configured for code. Unknown codes,
// referral-only codes and repeated claims are reported through Outcome.Reason.
func (s *Service) ApplyTaskReward(ctx context.Context, user *models.User, code string) (Outcome, error) {
	rule, ok := Rewards[code]
	switch {
	case !ok:
		return s.unchanged(code, user, ReasonUnknownTask), nil
	case rule.CreditsReferrerInstead:
		return s.unchanged(code, user, ReasonReferralOnly), nil
	case rule.Amount <= 0:
		return s.unchanged(code, user, ReasonUnknownTask), nil
	}

	var (
		applied bool
		err     error
	)
	switch {
	case rule.OncePerDay:
		applied, err = s.creditOncePerDay(ctx, user, rule.Amount)
	case rule.OneTime:
		applied, err = s.creditOnce(ctx, user, code, rule.Amount)
	default:
		applied, err = s.credit(s.db.WithContext(ctx), user, rule.Amount)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to apply task %q: %w", code, err)
	}

	fresh, err := s.GetUser(ctx, user.Identity)
	if err != nil {
		return Outcome{}, err
	}

	if !applied {
		return s.unchanged(code, fresh, ReasonAlreadyClaimed), nil
	}

	metrics.TaskRewards.WithLabelValues(code, "applied").Inc()
	return Outcome{User: fresh, Applied: true, Reward: rule.Amount}, nil
}

func (s *Service) unchanged(code string, user *models.User, reason string) Outcome {
	metrics.TaskRewards.WithLabelValues(code, reason).Inc()
	return Outcome{User: user, Reason: reason}
}

func (s *Service) creditOncePerDay(ctx context.Context, user *models.User, amount int64) (bool, error) {
	today := s.Today()
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND (last_daily_claim_date IS NULL OR last_daily_claim_date <> ?)", user.ID, today).
		Updates(map[string]any{
			"balance":               gorm.Expr("balance + ?", amount),
			"today_earned":          gorm.Expr("today_earned + ?", amount),
			"last_daily_claim_date": today,
		})
	return res.RowsAffected > 0, res.Error
}

func (s *Service) creditOnce(ctx context.Context, user *models.User, code string, amount int64) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := models.TaskClaim{UserIdentity: user.Identity, Code: code, Reward: amount}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&claim)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		var err error
		applied, err = s.credit(tx, user, amount)
		return err
	})
	return applied, err
}

func (s *Service) credit(db *gorm.DB, user *models.User, amount int64) (bool, error) {
	res := db.Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"balance":      gorm.Expr("balance + ?", amount),
			"today_earned": gorm.Expr("today_earned + ?", amount),
		})
	return res.RowsAffected > 0, res.Error
}

// RefillEnergy restores energy to the cap.
func (s *Service) RefillEnergy(ctx context.Context, user *models.User) (*models.User, error) {
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("energy", s.settings.EnergyCap).Error
	if err != nil {
		return nil, fmt.Errorf("failed to refill energy: %w", err)
	}
	return s.GetUser(ctx, user.Identity)
}
