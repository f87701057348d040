package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tapcoin-bot/internal/models"
	"tapcoin-bot/internal/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, settings Settings) (*Service, *gorm.DB, *clock) {
	t.Helper()
	db := testutil.NewTestDB(t, &models.User{}, &models.ReferralEdge{}, &models.TaskClaim{})
	clk := &clock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)}
	return NewService(db, settings).WithClock(clk.Now), db, clk
}

func TestGetOrCreateUserNewRow(t *testing.T) {
	svc, _, _ := newTestService(t, DefaultSettings())
	ctx := context.Background()

	user, created, err := svc.GetOrCreateUser(ctx, 10, "", Profile{Username: "ten", LanguageCode: "en"})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(10), user.Identity)
	require.Equal(t, "ten", user.Username)
	require.Equal(t, int64(0), user.Balance)
	require.Equal(t, 50, user.Energy)
	require.Equal(t, 0, user.TapsToday)
	require.Equal(t, "2026-03-14", user.LastResetDate)

	again, created, err := svc.GetOrCreateUser(ctx, 10, "ref_99", Profile{Username: "changed"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, user.ID, again.ID)
	require.Equal(t, "ten", again.Username)
}

func TestReferralCreditedOnceUnderConcurrentSignup(t *testing.T) {
	svc, db, _ := newTestService(t, DefaultSettings())
	ctx := context.Background()

	_, _, err := svc.GetOrCreateUser(ctx, 1, "", Profile{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.GetOrCreateUser(ctx, 2, "ref_1", Profile{})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	referrer, err := svc.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(800), referrer.Balance)
	require.Equal(t, 1, referrer.ReferralCount)
	require.Equal(t, int64(800), referrer.ReferralPoints)

	var edges int64
	require.NoError(t, db.Model(&models.ReferralEdge{}).Where("referrer_identity = ? AND referred_identity = ?", 1, 2).Count(&edges).Error)
	require.Equal(t, int64(1), edges)
}

func TestReferralSkippedForBadCodes(t *testing.T) {
	svc, db, _ := newTestService(t, DefaultSettings())
	ctx := context.Background()

	for i, code := range []string{"ref_3", "ref_abc", "ref_404"} {
		user, created, err := svc.GetOrCreateUser(ctx, int64(3+i), code, Profile{})
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, int64(0), user.Balance)
	}

	var edges int64
	require.NoError(t, db.Model(&models.ReferralEdge{}).Count(&edges).Error)
	require.Zero(t, edges)
}

func TestTapEnergyFloor(t *testing.T) {
	settings := DefaultSettings()
	settings.EnergyCap = 3
	svc, _, _ := newTestService(t, settings)
	ctx := context.Background()

	user, _, err := svc.GetOrCreateUser(ctx, 1, "", Profile{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out, err := svc.ApplyTap(ctx, user)
		require.NoError(t, err)
		require.True(t, out.Applied)
		user = out.User
	}
	require.Equal(t, 0, user.Energy)
	require.Equal(t, int64(3), user.Balance)
	require.Equal(t, int64(3), user.TodayEarned)
	require.Equal(t, 3, user.TapsToday)

	for i := 0; i < 5; i++ {
		out, err := svc.ApplyTap(ctx, user)
		require.NoError(t, err)
		require.False(t, out.Applied)
		require.Equal(t, ReasonNoEnergy, out.Reason)
		require.Equal(t, 0, out.User.Energy)
		require.Equal(t, int64(3), out.User.Balance)
	}
}

func TestConcurrentTapsAreNotLost(t *testing.T) {
	svc, _, _ := newTestService(t, DefaultSettings())
	ctx := context.Background()

	user, _, err := svc.GetOrCreateUser(ctx, 1, "", Profile{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 60)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ApplyTap(ctx, user)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	fresh, err := svc.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, fresh.Energy)
	require.Equal(t, int64(50), fresh.Balance)
	require.Equal(t, 50, fresh.TapsToday)
}

func TestTapDailyCap(t *testing.T) {
	settings := DefaultSettings()
	settings.DailyTapCap = 2
	svc, _, _ := newTestService(t, settings)
	ctx := context.Background()

	user, _, err := svc.GetOrCreateUser(ctx, 1, "", Profile{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		out, err := svc.ApplyTap(ctx, user)
		require.NoError(t, err)
		require.True(t, out.Applied)
	}

	out, err := svc.ApplyTap(ctx, user)
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, ReasonDailyCap, out.Reason)
	require.Equal(t, 48, out.User.Energy)
	require.Equal(t, int64(2), out.User.Balance)
}

func TestRefreshDailyState(t *testing.T) {
	svc, db, clk := newTestService(t, DefaultSettings())
	ctx := context.Background()

	user, _, err := svc.GetOrCreateUser(ctx, 1, "", Profile{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"energy":          3,
		"today_earned":    47,
		"taps_today":      47,
		"balance":         47,
		"last_reset_date": "2026-03-13",
	}).Error)
	user, err = svc.GetUser(ctx, 1)
	require.NoError(t, err)

	fresh, err := svc.RefreshDailyState(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 50, fresh.Energy)
	require.Equal(t, int64(0), fresh.TodayEarned)
	require.Equal(t, 0, fresh.TapsToday)
	require.Equal(t, int64(47), fresh.Balance)
	require.Equal(t, "2026-03-14", fresh.LastResetDate)

	// Same day: the row is returned as-is and the store is not written.
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("energy", 10).Error)
	same, err := svc.RefreshDailyState(ctx, fresh)
	require.NoError(t, err)
	require.Same(t, fresh, same)
	stored, err := svc.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 10, stored.Energy)

	clk.Advance(24 * time.Hour)
	next, err := svc.RefreshDailyState(ctx, stored)
	require.NoError(t, err)
	require.Equal(t, 50, next.Energy)
	require.Equal(t, "2026-03-15", next.LastResetDate)
}

func TestDailyCheckinOncePerDay(t *testing.T) {
	svc, _, clk := newTestService(t, DefaultSettings())
	ctx := context.Background()

	user, _, err := svc.GetOrCreateUser(ctx, 1, "", Profile{})
	require.NoError(t, err)

	out, err := svc.ApplyTaskReward(ctx, user, TaskDailyCheckin)
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, int64(1000), out.User.Balance)
	require.Equal(t, "2026-03-14", out.User.LastDailyClaimDate)

	out, err = svc.ApplyTaskReward(ctx, out.User, TaskDailyCheckin)
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, ReasonAlreadyClaimed, out.Reason)
	require.Equal(t, int64(1000), out.User.Balance)

	clk.Advance(24 * time.Hour)
	out, err = svc.ApplyTaskReward(ctx, out.User, TaskDailyCheckin)
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, int64(2000), out.User.Balance)
}

func TestOneTimeTaskCannotBeReplayed(t *testing.T) {
	svc, _, _ := newTestService(t, DefaultSettings())
	ctx := context.Background()

	user, _, err := svc.GetOrCreateUser(ctx, 1, "", Profile{})
	require.NoError(t, err)

	out, err := svc.ApplyTaskReward(ctx, user, TaskInstagramFollow)
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, int64(500), out.User.Balance)
	require.Equal(t, int64(500), out.User.TodayEarned)

	out, err = svc.ApplyTaskReward(ctx, user, TaskInstagramFollow)
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, ReasonAlreadyClaimed, out.Reason)
	require.Equal(t, int64(500), out.User.Balance)
}

func TestRepeatableTask(t *testing.T) {
	svc, _, _ := newTestService(t, DefaultSettings())
	ctx := context.Background()

	user, _, err := svc.GetOrCreateUser(ctx, 1, "", Profile{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out, err := svc.ApplyTaskReward(ctx, user, TaskWatchAd)
		require.NoError(t, err)
		require.True(t, out.Applied)
	}

	fresh, err := svc.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(300), fresh.Balance)
}

func TestTaskNoOps(t *testing.T) {
	svc, _, _ := newTestService(t, DefaultSettings())
	ctx := context.Background()

	user, _, err := svc.GetOrCreateUser(ctx, 1, "", Profile{})
	require.NoError(t, err)

	out, err := svc.ApplyTaskReward(ctx, user, TaskInviteFriend)
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, ReasonReferralOnly, out.Reason)

	out, err = svc.ApplyTaskReward(ctx, user, "does_not_exist")
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, ReasonUnknownTask, out.Reason)

	fresh, err := svc.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), fresh.Balance)
}

func TestRefillEnergy(t *testing.T) {
	settings := DefaultSettings()
	settings.EnergyCap = 1
	svc, _, _ := newTestService(t, settings)
	ctx := context.Background()

	user, _, err := svc.GetOrCreateUser(ctx, 1, "", Profile{})
	require.NoError(t, err)
	out, err := svc.ApplyTap(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 0, out.User.Energy)

	user, err = svc.RefillEnergy(ctx, out.User)
	require.NoError(t, err)
	require.Equal(t, 1, user.Energy)
}

func TestGetUserNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, DefaultSettings())
	_, err := svc.GetUser(context.Background(), 404)
	require.ErrorIs(t, err, ErrUserNotFound)
}
