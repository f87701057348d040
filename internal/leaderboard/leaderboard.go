package leaderboard

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tapcoin-bot/internal/models"
)

const DefaultSize = 100

type Entry struct {
	Rank     int    `json:"rank"`
	Identity int64  `json:"identity"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
}

type Me struct {
	Identity int64  `json:"identity"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
	Rank     int    `json:"rank"`
}

type Board struct {
	Me      Me      `json:"me"`
	Global  []Entry `json:"global"`
	Friends []Entry `json:"friends"`
}

// Cache holds the global window between recomputations.
type Cache interface {
	Get(ctx context.Context) ([]Entry, bool)
	Set(ctx context.Context, entries []Entry)
}

type Service struct {
	db    *gorm.DB
	size  int
	cache Cache
}

// NewService builds the aggregator. cache may be nil.
func NewService(db *gorm.DB, size int, cache Cache) *Service {
	if size <= 0 {
		size = DefaultSize
	}
	return &Service{db: db, size: size, cache: cache}
}

// Compute ranks by balance, highest first; equal balances keep signup order.
func (s *Service) Compute(ctx context.Context, user *models.User) (*Board, error) {
	global, err := s.global(ctx)
	if err != nil {
		return nil, err
	}

	rank, err := s.rankOf(ctx, user)
	if err != nil {
		return nil, err
	}

	friends, err := s.friends(ctx, user.Identity)
	if err != nil {
		zap.L().Warn("Failed to load friends leaderboard", zap.Int64("identity", user.Identity), zap.Error(err))
		friends = []Entry{}
	}

	return &Board{
		Me: Me{
			Identity: user.Identity,
			Username: user.Username,
			Balance:  user.Balance,
			Rank:     rank,
		},
		Global:  global,
		Friends: friends,
	}, nil
}

func (s *Service) global(ctx context.Context) ([]Entry, error) {
	if s.cache != nil {
		if entries, ok := s.cache.Get(ctx); ok {
			return entries, nil
		}
	}

	var entries []Entry
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("identity, username, balance").
		Order("balance DESC").
		Order("id ASC").
		Limit(s.size).
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load global leaderboard: %w", err)
	}
	entries = ranked(entries)

	if s.cache != nil {
		s.cache.Set(ctx, entries)
	}
	return entries, nil
}

// rankOf always reads the store, so it agrees with the caller's fresh balance
// even when the global window is served from cache.
func (s *Service) rankOf(ctx context.Context, user *models.User) (int, error) {
	var above int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("balance > ? OR (balance = ? AND id < ?)", user.Balance, user.Balance, user.ID).
		Count(&above).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count users above: %w", err)
	}
	return int(above) + 1, nil
}

func (s *Service) friends(ctx context.Context, referrer int64) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Table("referral_edges AS e").
		Select("u.identity, u.username, u.balance").
		Joins("JOIN users AS u ON u.identity = e.referred_identity").
		Where("e.referrer_identity = ?", referrer).
		Order("u.balance DESC").
		Order("u.id ASC").
		Limit(s.size).
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return ranked(entries), nil
}

func ranked(entries []Entry) []Entry {
	if entries == nil {
		return []Entry{}
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
