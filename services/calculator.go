package services

import (
	"math"
	"time"

	"taskflow-progression/models"
)

// AwardRule describes how one transaction type maps onto progression state.
// Keeping the dispatch in a table (instead of switches scattered per call
// site) keeps the set of event types exhaustively visible in one place.
type AwardRule struct {
	// ExperienceMultiplier converts base points into experience. Pomodoro
	// sessions grant bonus experience relative to their point value.
	ExperienceMultiplier int64
	// Counter bumps the matching activity counter, nil when the type has none.
	Counter func(p *models.UserProgression)
	// StreakEligible marks types that count as calendar-day activity.
	StreakEligible bool
}

// DefaultAwardRules cover every transaction type the ledger accepts.
var DefaultAwardRules = map[models.TransactionType]AwardRule{
	models.TransactionTaskCompleted: {
		ExperienceMultiplier: 1,
		Counter:              func(p *models.UserProgression) { p.TotalTasksCompleted++ },
		StreakEligible:       true,
	},
	models.TransactionPomodoroCompleted: {
		ExperienceMultiplier: 2,
		Counter:              func(p *models.UserProgression) { p.TotalPomodoroCompleted++ },
		StreakEligible:       true,
	},
	models.TransactionDSACompleted: {
		ExperienceMultiplier: 1,
		Counter:              func(p *models.UserProgression) { p.TotalDSACompleted++ },
		StreakEligible:       true,
	},
	models.TransactionManualAdjustment: {
		ExperienceMultiplier: 0,
	},
	models.TransactionAchievementBonus: {
		ExperienceMultiplier: 1,
	},
}

// LevelCurve: experience needed per level step.
// level = floor(sqrt(experience / BaseXP)) + 1, monotonic non-decreasing.
type LevelCurve struct {
	BaseXP int64
}

// DefaultLevelCurve matches the curve the original deployment shipped with.
var DefaultLevelCurve = LevelCurve{BaseXP: 100}

// LevelFor maps cumulative experience to a level (always >= 1).
func (c LevelCurve) LevelFor(experience int64) int {
	base := c.BaseXP
	if base < 1 {
		base = 1
	}
	if experience < 0 {
		experience = 0
	}
	return int(math.Sqrt(float64(experience)/float64(base))) + 1
}

// Calculator is the pure mapping from an award event to stat deltas.
// It never touches storage; the orchestrator owns persistence.
type Calculator struct {
	Rules map[models.TransactionType]AwardRule
	Curve LevelCurve
}

func NewCalculator(curve LevelCurve) *Calculator {
	return &Calculator{Rules: DefaultAwardRules, Curve: curve}
}

// ApplyAward returns the updated stats, whether the level increased, and the
// effective (possibly clamped) point delta to record in the ledger.
// MANUAL_ADJUSTMENT may be negative but must not drive points below zero:
// the clamped amount is what gets written so the ledger sum stays equal to
// the stored total. Automatic event types never carry negative points.
func (c *Calculator) ApplyAward(stats *models.UserProgression, event models.AwardEvent, now time.Time) (updated *models.UserProgression, leveledUp bool, effectivePoints int64) {
	rule, ok := c.Rules[event.Type]
	if !ok {
		rule = AwardRule{}
	}

	updated = stats.Clone()

	effectivePoints = event.Points
	if event.Type != models.TransactionManualAdjustment && effectivePoints < 0 {
		effectivePoints = 0
	}
	if updated.Points+effectivePoints < 0 {
		effectivePoints = -updated.Points
	}
	updated.Points += effectivePoints

	if effectivePoints > 0 {
		updated.Experience += effectivePoints * rule.ExperienceMultiplier
	}

	oldLevel := updated.Level
	newLevel := c.Curve.LevelFor(updated.Experience)
	if newLevel > oldLevel {
		updated.Level = newLevel
		ts := now
		updated.LastLevelUpAt = &ts
		leveledUp = true
	}

	if rule.Counter != nil {
		rule.Counter(updated)
	}

	return updated, leveledUp, effectivePoints
}

// StreakEligible reports whether the event type counts as daily activity.
func (c *Calculator) StreakEligible(t models.TransactionType) bool {
	return c.Rules[t].StreakEligible
}
