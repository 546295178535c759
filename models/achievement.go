package models

import (
	"time"
)

// AchievementCategory selects which UserProgression counter an achievement
// tracks. Dispatch over categories lives in services.CounterFor.
type AchievementCategory string

const (
	CategoryTasks    AchievementCategory = "tasks"
	CategoryPomodoro AchievementCategory = "pomodoro"
	CategoryDSA      AchievementCategory = "dsa"
	CategoryStreak   AchievementCategory = "streak"
	CategoryPoints   AchievementCategory = "points"
	CategoryLevel    AchievementCategory = "level"
)

// Achievement: static catalog entry (admin-curated, read-only at runtime)
type Achievement struct {
	ID           string              `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Code         string              `gorm:"uniqueIndex;not null" json:"code"` // e.g., "task-warrior"
	Name         string              `gorm:"not null" json:"name"`
	Description  string              `gorm:"type:text" json:"description"`
	Category     AchievementCategory `gorm:"not null;index" json:"category"`
	Requirement  int64               `gorm:"not null" json:"requirement"` // threshold on the tracked counter
	PointsReward int64               `gorm:"default:0" json:"points_reward"`
	Rarity       string              `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary
	IconURL      string              `gorm:"type:text" json:"icon_url"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// UserAchievement: per-user progress toward a catalog entry. Created lazily
// on first progress, updated in place, never deleted. IsCompleted is
// monotonic and UnlockedAt is set exactly once.
type UserAchievement struct {
	ID            string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID        string     `gorm:"uniqueIndex:ux_user_achievement,priority:1;not null" json:"user_id"`
	AchievementID string     `gorm:"uniqueIndex:ux_user_achievement,priority:2;not null" json:"achievement_id"`
	Progress      int64      `gorm:"default:0" json:"progress"`
	IsCompleted   bool       `gorm:"default:false;index" json:"is_completed"`
	UnlockedAt    *time.Time `json:"unlocked_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultAchievements seeds the catalog on first boot (FirstOrCreate by Code).
var DefaultAchievements = []Achievement{
	{
		Code:        "first-task",
		Name:        "First Steps",
		Description: "Completed your first task",
		Category:    CategoryTasks,
		Requirement: 1,
		Rarity:      "common",
	},
	{
		Code:         "task-warrior",
		Name:         "Task Warrior",
		Description:  "Completed 10 tasks",
		Category:     CategoryTasks,
		Requirement:  10,
		PointsReward: 50,
		Rarity:       "common",
	},
	{
		Code:         "task-master",
		Name:         "Task Master",
		Description:  "Completed 100 tasks",
		Category:     CategoryTasks,
		Requirement:  100,
		PointsReward: 250,
		Rarity:       "rare",
	},
	{
		Code:        "first-pomodoro",
		Name:        "Tomato Picker",
		Description: "Finished your first pomodoro session",
		Category:    CategoryPomodoro,
		Requirement: 1,
		Rarity:      "common",
	},
	{
		Code:         "focus-machine",
		Name:         "Focus Machine",
		Description:  "Finished 50 pomodoro sessions",
		Category:     CategoryPomodoro,
		Requirement:  50,
		PointsReward: 150,
		Rarity:       "rare",
	},
	{
		Code:         "problem-solver",
		Name:         "Problem Solver",
		Description:  "Solved 25 DSA questions",
		Category:     CategoryDSA,
		Requirement:  25,
		PointsReward: 100,
		Rarity:       "rare",
	},
	{
		Code:         "week-streak",
		Name:         "Consistency Is Key",
		Description:  "Kept a 7-day activity streak",
		Category:     CategoryStreak,
		Requirement:  7,
		PointsReward: 70,
		Rarity:       "rare",
	},
	{
		Code:         "month-streak",
		Name:         "Unstoppable",
		Description:  "Kept a 30-day activity streak",
		Category:     CategoryStreak,
		Requirement:  30,
		PointsReward: 300,
		Rarity:       "epic",
	},
	{
		Code:        "point-collector",
		Name:        "Point Collector",
		Description: "Earned 1000 points",
		Category:    CategoryPoints,
		Requirement: 1000,
		Rarity:      "epic",
	},
	{
		Code:        "level-10",
		Name:        "Double Digits",
		Description: "Reached level 10",
		Category:    CategoryLevel,
		Requirement: 10,
		Rarity:      "epic",
	},
}
