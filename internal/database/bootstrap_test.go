package database

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tapcoin-bot/internal/models"
	"tapcoin-bot/internal/testutil"
)

func TestBootstrapperCreatesSchemaOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	b := NewBootstrapper(db)
	require.False(t, db.Migrator().HasTable(&models.User{}))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = b.Ensure(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	for _, m := range []any{&models.User{}, &models.ReferralEdge{}, &models.TaskClaim{}, &models.Powerup{}, &models.Payment{}} {
		require.True(t, db.Migrator().HasTable(m))
	}
}
