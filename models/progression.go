package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProgression tracks gamified progression for each user (denormalized for performance).
// Mutated only by the progression service inside the per-user critical section.
type UserProgression struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // links to the auth/profile service

	// Core progression
	Points     int64 `json:"points" gorm:"default:0"`
	Experience int64 `json:"experience" gorm:"default:0"`
	Level      int   `json:"level" gorm:"default:1"`

	// Activity counters
	TotalTasksCompleted    int64 `json:"total_tasks_completed" gorm:"default:0"`
	TotalPomodoroCompleted int64 `json:"total_pomodoro_completed" gorm:"default:0"`
	TotalDSACompleted      int64 `json:"total_dsa_completed" gorm:"default:0"`

	// Streaks (calendar days with at least one streak-eligible event)
	CurrentStreak    int        `json:"current_streak" gorm:"default:0"`
	LongestStreak    int        `json:"longest_streak" gorm:"default:0"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`

	// Milestones
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// Clone returns a deep copy; the calculator and streak tracker are pure and
// must never mutate the caller's record in place.
func (p *UserProgression) Clone() *UserProgression {
	cp := *p
	if p.LastActivityDate != nil {
		d := *p.LastActivityDate
		cp.LastActivityDate = &d
	}
	if p.LastLevelUpAt != nil {
		d := *p.LastLevelUpAt
		cp.LastLevelUpAt = &d
	}
	return &cp
}
