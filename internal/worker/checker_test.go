package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tapcoin-bot/internal/models"
	"tapcoin-bot/internal/powerup"
	"tapcoin-bot/internal/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type memDedup map[string]bool

func (d memDedup) Seen(_ context.Context, key string) (bool, error) { return d[key], nil }

func (d memDedup) Mark(_ context.Context, key string, _ time.Duration) error {
	d[key] = true
	return nil
}

type fakeNotifier struct {
	fail bool
	sent []int64
}

func (n *fakeNotifier) Notify(_ context.Context, identity int64, _ string) error {
	if n.fail {
		return errors.New("blocked by user")
	}
	n.sent = append(n.sent, identity)
	return nil
}

func TestCheckExpiringNotifiesOnce(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	db := testutil.NewTestDB(t, &models.Powerup{})
	store := powerup.NewStore(db, powerup.ColumnText).WithClock(func() time.Time { return now })
	ctx := context.Background()

	soon := now.Add(24 * time.Hour)
	later := now.Add(96 * time.Hour)
	for i, g := range []powerup.Grant{
		{UserIdentity: "7", Code: powerup.CodeEnergyRefill, PackSKU: "refill_day", Provider: powerup.ProviderTelegram, ProviderPaymentID: "a", ExpiresAt: &soon},
		{UserIdentity: "8", Code: powerup.CodeEnergyRefill, PackSKU: "refill_day", Provider: powerup.ProviderTelegram, ProviderPaymentID: "b", ExpiresAt: &later},
		{UserIdentity: "8", Code: powerup.CodeEnergyRefill, PackSKU: "refill_3", Provider: powerup.ProviderTelegram, ProviderPaymentID: "c"},
	} {
		_, err := store.Add(ctx, g)
		require.NoError(t, err, i)
	}

	notifier := &fakeNotifier{}
	checker := NewChecker(store, notifier, memDedup{}, time.Hour)
	checker.Now = func() time.Time { return now }

	require.Equal(t, 1, checker.CheckExpiring(ctx))
	require.Equal(t, []int64{7}, notifier.sent)

	require.Equal(t, 0, checker.CheckExpiring(ctx))
	require.Equal(t, []int64{7}, notifier.sent)
}

func TestCheckExpiringRetriesAfterSendFailure(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	db := testutil.NewTestDB(t, &models.Powerup{})
	store := powerup.NewStore(db, powerup.ColumnText)
	ctx := context.Background()

	soon := now.Add(24 * time.Hour)
	_, err := store.Add(ctx, powerup.Grant{UserIdentity: "7", Code: powerup.CodeEnergyRefill, Provider: powerup.ProviderTelegram, ProviderPaymentID: "a", ExpiresAt: &soon})
	require.NoError(t, err)

	notifier := &fakeNotifier{fail: true}
	dedup := memDedup{}
	checker := NewChecker(store, notifier, dedup, time.Hour)
	checker.Now = func() time.Time { return now }

	require.Equal(t, 0, checker.CheckExpiring(ctx))
	require.Empty(t, dedup)

	notifier.fail = false
	require.Equal(t, 1, checker.CheckExpiring(ctx))
}

func TestStartStopsWithContext(t *testing.T) {
	db := testutil.NewTestDB(t, &models.Powerup{})
	checker := NewChecker(powerup.NewStore(db, powerup.ColumnText), &fakeNotifier{}, memDedup{}, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("checker did not stop")
	}
}
