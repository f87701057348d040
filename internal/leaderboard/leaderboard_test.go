package leaderboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tapcoin-bot/internal/models"
	"tapcoin-bot/internal/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func seed(t *testing.T, db *gorm.DB, users ...models.User) {
	t.Helper()
	for i := range users {
		require.NoError(t, db.Create(&users[i]).Error)
	}
}

func user(t *testing.T, db *gorm.DB, id int64) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.Where("identity = ?", id).First(&u).Error)
	return &u
}

func identities(entries []Entry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Identity)
	}
	return out
}

func TestGlobalTieBreakByCreationOrder(t *testing.T) {
	db := testutil.NewTestDB(t, &models.User{}, &models.ReferralEdge{})
	seed(t, db,
		models.User{Identity: 30, Username: "c", Balance: 100},
		models.User{Identity: 10, Username: "a", Balance: 100},
		models.User{Identity: 20, Username: "b", Balance: 500},
		models.User{Identity: 40, Username: "d", Balance: 100},
	)
	svc := NewService(db, 10, nil)

	for i := 0; i < 3; i++ {
		board, err := svc.Compute(context.Background(), user(t, db, 10))
		require.NoError(t, err)
		require.Equal(t, []int64{20, 30, 10, 40}, identities(board.Global))
		require.Equal(t, []int{1, 2, 3, 4}, []int{board.Global[0].Rank, board.Global[1].Rank, board.Global[2].Rank, board.Global[3].Rank})
		require.Equal(t, 3, board.Me.Rank)
		require.Equal(t, int64(100), board.Me.Balance)
	}
}

func TestRankOutsideWindow(t *testing.T) {
	db := testutil.NewTestDB(t, &models.User{}, &models.ReferralEdge{})
	seed(t, db,
		models.User{Identity: 1, Balance: 900},
		models.User{Identity: 2, Balance: 800},
		models.User{Identity: 3, Balance: 800},
		models.User{Identity: 4, Balance: 100},
		models.User{Identity: 5, Balance: 100},
	)
	svc := NewService(db, 2, nil)

	board, err := svc.Compute(context.Background(), user(t, db, 5))
	require.NoError(t, err)
	require.Len(t, board.Global, 2)
	require.Equal(t, 5, board.Me.Rank)

	board, err = svc.Compute(context.Background(), user(t, db, 3))
	require.NoError(t, err)
	require.Equal(t, 3, board.Me.Rank)

	board, err = svc.Compute(context.Background(), user(t, db, 2))
	require.NoError(t, err)
	require.Equal(t, 2, board.Me.Rank)
	require.Equal(t, board.Global[1].Rank, board.Me.Rank)
}

func TestFriends(t *testing.T) {
	db := testutil.NewTestDB(t, &models.User{}, &models.ReferralEdge{})
	seed(t, db,
		models.User{Identity: 1, Balance: 0},
		models.User{Identity: 2, Balance: 50},
		models.User{Identity: 3, Balance: 70},
		models.User{Identity: 4, Balance: 50},
		models.User{Identity: 5, Balance: 999},
	)
	for _, referred := range []int64{2, 3, 4} {
		require.NoError(t, db.Create(&models.ReferralEdge{ReferrerIdentity: 1, ReferredIdentity: referred, Reward: 800}).Error)
	}
	require.NoError(t, db.Create(&models.ReferralEdge{ReferrerIdentity: 2, ReferredIdentity: 5, Reward: 800}).Error)

	board, err := NewService(db, 100, nil).Compute(context.Background(), user(t, db, 1))
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2, 4}, identities(board.Friends))
	require.Equal(t, 1, board.Friends[0].Rank)
	require.Equal(t, 3, board.Friends[2].Rank)
}

func TestFriendsFailureReturnsEmptyList(t *testing.T) {
	db := testutil.NewTestDB(t, &models.User{})
	seed(t, db, models.User{Identity: 1, Balance: 10})

	board, err := NewService(db, 100, nil).Compute(context.Background(), user(t, db, 1))
	require.NoError(t, err)
	require.NotNil(t, board.Friends)
	require.Empty(t, board.Friends)
	require.Equal(t, 1, board.Me.Rank)
}

type memCache struct {
	entries []Entry
	sets    int
}

func (c *memCache) Get(context.Context) ([]Entry, bool) {
	return c.entries, c.entries != nil
}

func (c *memCache) Set(_ context.Context, entries []Entry) {
	c.entries = entries
	c.sets++
}

func TestGlobalCache(t *testing.T) {
	db := testutil.NewTestDB(t, &models.User{}, &models.ReferralEdge{})
	seed(t, db, models.User{Identity: 1, Balance: 10})
	cache := &memCache{}
	svc := NewService(db, 100, cache)

	_, err := svc.Compute(context.Background(), user(t, db, 1))
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets)

	seed(t, db, models.User{Identity: 2, Balance: 20})
	board, err := svc.Compute(context.Background(), user(t, db, 2))
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets)
	require.Equal(t, []int64{1}, identities(board.Global))
	require.Equal(t, 1, board.Me.Rank)
}

func TestRankFollowsFreshBalanceWhenWindowIsCached(t *testing.T) {
	db := testutil.NewTestDB(t, &models.User{}, &models.ReferralEdge{})
	seed(t, db,
		models.User{Identity: 1, Balance: 500},
		models.User{Identity: 2, Balance: 100},
	)
	cache := &memCache{}
	svc := NewService(db, 100, cache)

	board, err := svc.Compute(context.Background(), user(t, db, 2))
	require.NoError(t, err)
	require.Equal(t, 2, board.Me.Rank)

	require.NoError(t, db.Model(&models.User{}).Where("identity = ?", 2).Update("balance", 900).Error)

	board, err = svc.Compute(context.Background(), user(t, db, 2))
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, identities(board.Global))
	require.Equal(t, int64(900), board.Me.Balance)
	require.Equal(t, 1, board.Me.Rank)
}
