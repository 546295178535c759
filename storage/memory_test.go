package storage

import (
	"context"
	"testing"
	"time"

	"taskflow-progression/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	src := "T1"

	err := store.AppendTransaction(ctx, &models.PointTransaction{
		UserID: "u1", Points: 10, Type: models.TransactionTaskCompleted, SourceID: &src,
	})
	require.NoError(t, err)

	// Same idempotency key again is rejected.
	err = store.AppendTransaction(ctx, &models.PointTransaction{
		UserID: "u1", Points: 10, Type: models.TransactionTaskCompleted, SourceID: &src,
	})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// Same source id under a different type is a different event.
	err = store.AppendTransaction(ctx, &models.PointTransaction{
		UserID: "u1", Points: 10, Type: models.TransactionDSACompleted, SourceID: &src,
	})
	require.NoError(t, err)

	// Nil source ids never collide (manual adjustments).
	for i := 0; i < 3; i++ {
		err = store.AppendTransaction(ctx, &models.PointTransaction{
			UserID: "u1", Points: -5, Type: models.TransactionManualAdjustment,
		})
		require.NoError(t, err)
	}

	sum, err := store.SumPoints(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum)
}

func TestMemoryStore_EnsureProgression(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.EnsureProgression(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, 1, first.Level)
	assert.Equal(t, int64(0), first.Points)

	again, err := store.EnsureProgression(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// Returned copies do not alias the stored row.
	again.Points = 999
	stored, err := store.GetProgression(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Points)
}

func TestMemoryStore_ListTransactionsPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 5; i++ {
		src := string(rune('a' + i))
		require.NoError(t, store.AppendTransaction(ctx, &models.PointTransaction{
			UserID: "u1", Points: int64(i + 1), Type: models.TransactionTaskCompleted, SourceID: &src,
		}))
	}

	page1, total, err := store.ListTransactions(ctx, "u1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page1, 2)
	assert.Equal(t, int64(5), page1[0].Points, "newest first")
	assert.Equal(t, int64(4), page1[1].Points)

	page3, _, err := store.ListTransactions(ctx, "u1", 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, int64(1), page3[0].Points)

	empty, _, err := store.ListTransactions(ctx, "u1", 4, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStore_UpsertUserAchievementsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	unlocked := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpsertUserAchievements(ctx, []models.UserAchievement{
		{UserID: "u1", AchievementID: "a1", Progress: 10, IsCompleted: true, UnlockedAt: &unlocked},
	}))

	// A stale write cannot regress progress, completion, or the unlock time.
	later := unlocked.Add(time.Hour)
	require.NoError(t, store.UpsertUserAchievements(ctx, []models.UserAchievement{
		{UserID: "u1", AchievementID: "a1", Progress: 4, IsCompleted: false, UnlockedAt: &later},
	}))

	rows, err := store.ListUserAchievements(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(10), rows[0].Progress)
	assert.True(t, rows[0].IsCompleted)
	require.NotNil(t, rows[0].UnlockedAt)
	assert.True(t, rows[0].UnlockedAt.Equal(unlocked))
}

func TestMemoryStore_WithUserLockTimeout(t *testing.T) {
	store := NewMemoryStore()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = store.WithUserLock(context.Background(), "u1", func(Store) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.WithUserLock(ctx, "u1", func(Store) error { return nil })
	assert.ErrorIs(t, err, ErrLockTimeout)

	// A different user's lock is free.
	err = store.WithUserLock(context.Background(), "u2", func(Store) error { return nil })
	assert.NoError(t, err)
}
