package services

import (
	"sort"
	"time"

	"taskflow-progression/models"
)

// CounterFor maps an achievement category to the progression counter it
// tracks. Returns false for categories this build does not know.
func CounterFor(category models.AchievementCategory, stats *models.UserProgression) (int64, bool) {
	switch category {
	case models.CategoryTasks:
		return stats.TotalTasksCompleted, true
	case models.CategoryPomodoro:
		return stats.TotalPomodoroCompleted, true
	case models.CategoryDSA:
		return stats.TotalDSACompleted, true
	case models.CategoryStreak:
		return int64(stats.CurrentStreak), true
	case models.CategoryPoints:
		return stats.Points, true
	case models.CategoryLevel:
		return int64(stats.Level), true
	}
	return 0, false
}

// EvaluationResult holds the rows to persist and the catalog entries that
// crossed their threshold in this pass, ordered by ascending requirement.
type EvaluationResult struct {
	Updated       []models.UserAchievement
	NewlyUnlocked []models.Achievement
}

// Evaluator compares cumulative counters against the achievement catalog.
// It is stateless and safe to call redundantly: a second pass with the same
// stats unlocks nothing because IsCompleted is already set.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate walks the catalog against current stats. Rows already completed
// are left alone (IsCompleted is monotonic). Rows below threshold get their
// Progress refreshed for progress-bar display, never decreased.
func (e *Evaluator) Evaluate(stats *models.UserProgression, catalog []models.Achievement, existing []models.UserAchievement, now time.Time) EvaluationResult {
	byAchievement := make(map[string]models.UserAchievement, len(existing))
	for _, ua := range existing {
		byAchievement[ua.AchievementID] = ua
	}

	var result EvaluationResult
	for _, ach := range catalog {
		counter, ok := CounterFor(ach.Category, stats)
		if !ok {
			continue
		}

		ua, seen := byAchievement[ach.ID]
		if seen && ua.IsCompleted {
			continue
		}
		if !seen {
			ua = models.UserAchievement{
				UserID:        stats.UserID,
				AchievementID: ach.ID,
			}
		}

		if counter > ua.Progress {
			ua.Progress = counter
		}
		if counter >= ach.Requirement {
			ua.IsCompleted = true
			ts := now
			ua.UnlockedAt = &ts
			result.NewlyUnlocked = append(result.NewlyUnlocked, ach)
		}

		// Rows are created lazily on first progress; a zero counter for an
		// unseen achievement persists nothing.
		if !seen && ua.Progress == 0 && !ua.IsCompleted {
			continue
		}
		result.Updated = append(result.Updated, ua)
	}

	// Smallest milestones reported first; deterministic for the UI sequence.
	sort.SliceStable(result.NewlyUnlocked, func(i, j int) bool {
		return result.NewlyUnlocked[i].Requirement < result.NewlyUnlocked[j].Requirement
	})
	return result
}
