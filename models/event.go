package models

import "time"

// AwardEvent is the contract the collaborating services (task completion,
// pomodoro completion, DSA progress) invoke the progression service with.
type AwardEvent struct {
	UserID      string          `json:"user_id" validate:"required"`
	Type        TransactionType `json:"type" validate:"required,oneof=TASK_COMPLETED POMODORO_COMPLETED DSA_COMPLETED MANUAL_ADJUSTMENT"`
	SourceID    *string         `json:"source_id" validate:"required_unless=Type MANUAL_ADJUSTMENT"` // idempotency key component
	Points      int64           `json:"points"`
	OccurredAt  time.Time       `json:"occurred_at" validate:"required"` // calendar date for streak purposes
	Description string          `json:"description" validate:"max=255"`
}

// ProgressionOutcome is what an award call hands back to the trigger handler.
// Duplicate, StreakSkipped and Degraded are benign conditions: the caller's
// primary action already succeeded and must not be failed on their account.
type ProgressionOutcome struct {
	Transaction  *PointTransaction `json:"transaction"`
	UpdatedStats *UserProgression  `json:"updated_stats"`
	LeveledUp    bool              `json:"leveled_up"`

	// Newly unlocked achievement codes, ordered by ascending requirement so
	// the UI reports the smallest milestone first.
	NewlyUnlockedAchievements []string `json:"newly_unlocked_achievements"`

	Duplicate     bool `json:"duplicate"`      // event was already recorded; prior outcome returned
	StreakSkipped bool `json:"streak_skipped"` // event arrived out of order; streak left untouched
	Degraded      bool `json:"degraded"`       // achievement persistence failed; reconciler will re-run
}
