package services

import (
	"time"

	"taskflow-progression/models"
)

// StreakTracker maintains the consecutive-activity counters. Day boundaries
// use a fixed reference timezone so results stay deterministic regardless of
// where the process runs.
type StreakTracker struct {
	Location *time.Location
}

func NewStreakTracker(loc *time.Location) *StreakTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakTracker{Location: loc}
}

// RecordActivity applies one calendar-day activity to the streak counters.
// Same day: no-op (multiple activities per day are idempotent). Next day:
// increment. Gap: reset to 1. Earlier day: ErrOutOfOrderEvent, stats
// untouched — the caller decides whether to ignore or log.
func (t *StreakTracker) RecordActivity(stats *models.UserProgression, activityDate time.Time) (*models.UserProgression, error) {
	updated := stats.Clone()
	day := t.truncateToDay(activityDate)

	if updated.LastActivityDate == nil {
		updated.CurrentStreak = 1
		updated.LastActivityDate = &day
		if updated.LongestStreak < 1 {
			updated.LongestStreak = 1
		}
		return updated, nil
	}

	last := t.truncateToDay(*updated.LastActivityDate)
	switch days := daysBetween(last, day); {
	case days < 0:
		return stats, ErrOutOfOrderEvent
	case days == 0:
		// already counted today
	case days == 1:
		updated.CurrentStreak++
		if updated.CurrentStreak > updated.LongestStreak {
			updated.LongestStreak = updated.CurrentStreak
		}
	default:
		updated.CurrentStreak = 1
	}

	updated.LastActivityDate = &day
	return updated, nil
}

func (t *StreakTracker) truncateToDay(ts time.Time) time.Time {
	local := ts.In(t.Location)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location)
}

// daysBetween counts calendar days from a to b. Re-anchoring both dates in
// UTC sidesteps DST transitions where a local day is not 24 hours.
func daysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}
