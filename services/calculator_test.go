package services

import (
	"testing"
	"time"

	"taskflow-progression/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelCurve(t *testing.T) {
	curve := LevelCurve{BaseXP: 100}

	assert.Equal(t, 1, curve.LevelFor(0))
	assert.Equal(t, 1, curve.LevelFor(99))
	assert.Equal(t, 2, curve.LevelFor(100))
	assert.Equal(t, 2, curve.LevelFor(399))
	assert.Equal(t, 3, curve.LevelFor(400))
	assert.Equal(t, 4, curve.LevelFor(900))

	t.Run("MonotonicNonDecreasing", func(t *testing.T) {
		prev := 0
		for xp := int64(0); xp <= 5000; xp += 37 {
			lvl := curve.LevelFor(xp)
			require.GreaterOrEqual(t, lvl, prev)
			prev = lvl
		}
	})

	t.Run("NegativeExperienceIsLevelOne", func(t *testing.T) {
		assert.Equal(t, 1, curve.LevelFor(-10))
	})
}

func TestCalculator_ApplyAward(t *testing.T) {
	calc := NewCalculator(LevelCurve{BaseXP: 100})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	newStats := func() *models.UserProgression {
		return &models.UserProgression{UserID: "u1", Level: 1}
	}

	t.Run("TaskCompleted", func(t *testing.T) {
		stats := newStats()
		updated, leveledUp, effective := calc.ApplyAward(stats, models.AwardEvent{
			UserID: "u1",
			Type:   models.TransactionTaskCompleted,
			Points: 20,
		}, now)

		assert.Equal(t, int64(20), effective)
		assert.Equal(t, int64(20), updated.Points)
		assert.Equal(t, int64(20), updated.Experience)
		assert.Equal(t, int64(1), updated.TotalTasksCompleted)
		assert.False(t, leveledUp)

		// Input is untouched; the calculator is pure.
		assert.Equal(t, int64(0), stats.Points)
		assert.Equal(t, int64(0), stats.TotalTasksCompleted)
	})

	t.Run("PomodoroGrantsBonusExperience", func(t *testing.T) {
		updated, _, _ := calc.ApplyAward(newStats(), models.AwardEvent{
			UserID: "u1",
			Type:   models.TransactionPomodoroCompleted,
			Points: 10,
		}, now)

		assert.Equal(t, int64(10), updated.Points)
		assert.Equal(t, int64(20), updated.Experience)
		assert.Equal(t, int64(1), updated.TotalPomodoroCompleted)
	})

	t.Run("LevelUp", func(t *testing.T) {
		stats := newStats()
		stats.Points = 90
		stats.Experience = 90

		updated, leveledUp, _ := calc.ApplyAward(stats, models.AwardEvent{
			UserID: "u1",
			Type:   models.TransactionTaskCompleted,
			Points: 20,
		}, now)

		assert.True(t, leveledUp)
		assert.Equal(t, 2, updated.Level)
		require.NotNil(t, updated.LastLevelUpAt)
		assert.Equal(t, now, *updated.LastLevelUpAt)
	})

	t.Run("ManualAdjustmentClampsAtZero", func(t *testing.T) {
		stats := newStats()
		stats.Points = 20

		updated, _, effective := calc.ApplyAward(stats, models.AwardEvent{
			UserID: "u1",
			Type:   models.TransactionManualAdjustment,
			Points: -50,
		}, now)

		// The clamped amount is what gets written to the ledger, keeping
		// sum(transactions) == stored points.
		assert.Equal(t, int64(-20), effective)
		assert.Equal(t, int64(0), updated.Points)
	})

	t.Run("ManualAdjustmentNegativeWithinBalance", func(t *testing.T) {
		stats := newStats()
		stats.Points = 100

		updated, _, effective := calc.ApplyAward(stats, models.AwardEvent{
			UserID: "u1",
			Type:   models.TransactionManualAdjustment,
			Points: -30,
		}, now)

		assert.Equal(t, int64(-30), effective)
		assert.Equal(t, int64(70), updated.Points)
	})

	t.Run("NegativePointsOnAutomaticEventIgnored", func(t *testing.T) {
		updated, _, effective := calc.ApplyAward(newStats(), models.AwardEvent{
			UserID: "u1",
			Type:   models.TransactionTaskCompleted,
			Points: -10,
		}, now)

		assert.Equal(t, int64(0), effective)
		assert.Equal(t, int64(0), updated.Points)
	})

	t.Run("StreakEligibility", func(t *testing.T) {
		assert.True(t, calc.StreakEligible(models.TransactionTaskCompleted))
		assert.True(t, calc.StreakEligible(models.TransactionPomodoroCompleted))
		assert.True(t, calc.StreakEligible(models.TransactionDSACompleted))
		assert.False(t, calc.StreakEligible(models.TransactionManualAdjustment))
		assert.False(t, calc.StreakEligible(models.TransactionAchievementBonus))
	})
}
