package services

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"

	"nomad-gis/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndUnlock_FirstUnlockThenNothingNearby(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.DB, "first")
	p := createPoint(t, env.DB, "Origin", 0, 0, 50)
	bonus := rewardOf(t, env.DB, models.AchievementOpen1Point)

	out, err := env.Unlock.CheckAndUnlock(ctx, u.ID, 0.0001, 0.0001)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.NotNil(t, out.UnlockedPointID)
	assert.Equal(t, p.ID, *out.UnlockedPointID)
	assert.Equal(t, DefaultUnlockXP+bonus, out.ExperienceGained)
	assert.Equal(t, []string{models.AchievementOpen1Point}, codes(out.UnlockedAchievements))
	assert.True(t, out.LeveledUp)
	assert.Equal(t, 2, out.User.Level)
	assert.Equal(t, DefaultUnlockXP+bonus-RequiredExperience(1), out.User.Experience)

	stored := reloadUser(t, env.DB, u.ID)
	assert.Equal(t, out.User.Level, stored.Level)
	assert.Equal(t, out.User.Experience, stored.Experience)

	again, err := env.Unlock.CheckAndUnlock(ctx, u.ID, 0.0001, 0.0001)
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.Equal(t, "No new points nearby.", again.Message)
	assert.Nil(t, again.UnlockedPointID)
	assert.Empty(t, again.UnlockedAchievements)
	assert.Zero(t, again.ExperienceGained)

	n, err := env.Ledger.CountUnlocksForUser(env.DB, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, stored.Experience, reloadUser(t, env.DB, u.ID).Experience)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Metrics.PointUnlocks))
}

func TestCheckAndUnlock_OutOfRange(t *testing.T) {
	env := newTestEnv(t)
	u := createUser(t, env.DB, "far")
	createPoint(t, env.DB, "Origin", 0, 0, 10)

	// ~15.7m away, outside a 10m radius
	out, err := env.Unlock.CheckAndUnlock(context.Background(), u.ID, 0.0001, 0.0001)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Zero(t, reloadUser(t, env.DB, u.ID).Experience)
}

func TestCheckAndUnlock_OnePointPerCallInIDOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.DB, "many")
	a := createPoint(t, env.DB, "A", 5, 5, 100)
	b := createPoint(t, env.DB, "B", 5, 5, 100)
	createPoint(t, env.DB, "Elsewhere", -5, -5, 100)

	want := []string{a.ID, b.ID}
	sort.Strings(want)

	var got []string
	for i := 0; i < 2; i++ {
		out, err := env.Unlock.CheckAndUnlock(ctx, u.ID, 5, 5)
		require.NoError(t, err)
		require.True(t, out.Success)
		got = append(got, *out.UnlockedPointID)
	}
	assert.Equal(t, want, got)

	out, err := env.Unlock.CheckAndUnlock(ctx, u.ID, 5, 5)
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestCheckAndUnlock_TenthPointGrantsTier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.DB, "explorer")
	for i := 0; i < 10; i++ {
		createPoint(t, env.DB, "P", float64(i), float64(i), 25)
	}

	var all []string
	for i := 0; i < 10; i++ {
		out, err := env.Unlock.CheckAndUnlock(ctx, u.ID, float64(i), float64(i))
		require.NoError(t, err)
		require.True(t, out.Success, "point %d", i)
		all = append(all, codes(out.UnlockedAchievements)...)
		if i == 9 {
			assert.Equal(t, []string{models.AchievementOpen10Points}, codes(out.UnlockedAchievements))
		}
	}
	assert.Equal(t, []string{models.AchievementOpen1Point, models.AchievementOpen10Points}, all)
}

func TestCheckAndUnlock_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.DB, "errs")

	_, err := env.Unlock.CheckAndUnlock(ctx, "00000000-0000-0000-0000-000000000000", 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.Unlock.CheckAndUnlock(ctx, u.ID, 91, 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.Unlock.CheckAndUnlock(ctx, u.ID, 0, -181)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.Unlock.CheckAndUnlock(ctx, u.ID, math.NaN(), 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCheckAndUnlock_RollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	u := createUser(t, env.DB, "atomic")
	createPoint(t, env.DB, "Origin", 0, 0, 50)
	require.NoError(t, env.DB.Migrator().DropTable(&models.UserAchievement{}))

	_, err := env.Unlock.CheckAndUnlock(context.Background(), u.ID, 0, 0)
	require.Error(t, err)

	n, err := env.Ledger.CountUnlocksForUser(env.DB, u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	stored := reloadUser(t, env.DB, u.ID)
	assert.Zero(t, stored.Experience)
	assert.Equal(t, 1, stored.Level)
}

func TestCheckAndUnlock_OtherUsersUnlocksDoNotHidePoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := createUser(t, env.DB, "first")
	second := createUser(t, env.DB, "second")
	p := createPoint(t, env.DB, "Shared", 3, 3, 100)

	out, err := env.Unlock.CheckAndUnlock(ctx, first.ID, 3, 3)
	require.NoError(t, err)
	require.True(t, out.Success)

	out, err = env.Unlock.CheckAndUnlock(ctx, second.ID, 3, 3)
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Equal(t, p.ID, *out.UnlockedPointID)

	out, err = env.Unlock.CheckAndUnlock(ctx, second.ID, 3, 3)
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestCheckAndUnlock_ConcurrentCallsUnlockOnce(t *testing.T) {
	env := newTestEnv(t)
	u := createUser(t, env.DB, "racer")
	createPoint(t, env.DB, "Origin", 0, 0, 50)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		gained    int64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := env.Unlock.CheckAndUnlock(context.Background(), u.ID, 0, 0)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if out.Success {
				successes++
				gained += out.ExperienceGained
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	n, err := env.Ledger.CountUnlocksForUser(env.DB, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored := reloadUser(t, env.DB, u.ID)
	total := TotalExperience(stored.Level, stored.Experience)
	assert.Equal(t, gained, total)
}
