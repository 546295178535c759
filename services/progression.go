package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskflow-progression/models"
	"taskflow-progression/storage"
	"taskflow-progression/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProgressionService is the single entry point the task/pomodoro/DSA
// handlers award through. It owns the per-user critical section and keeps
// the ledger, stats, streaks and achievements consistent under concurrent
// calls for the same user.
type ProgressionService struct {
	Store storage.Store

	calc        *Calculator
	streak      *StreakTracker
	eval        *Evaluator
	leaderboard *LeaderboardService
	log         *logrus.Logger
	lockTimeout time.Duration
	now         func() time.Time

	catalogMu sync.RWMutex
	catalog   []models.Achievement // read-only at runtime, cached after first load

	degradedMu sync.Mutex
	degraded   map[string]struct{} // users whose achievement write failed; reconciler re-runs
}

type ProgressionConfig struct {
	Curve          LevelCurve
	StreakLocation *time.Location
	LockTimeout    time.Duration
	Leaderboard    *LeaderboardService // optional
	Logger         *logrus.Logger
}

func NewProgressionService(store storage.Store, cfg ProgressionConfig) *ProgressionService {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Curve.BaseXP == 0 {
		cfg.Curve = DefaultLevelCurve
	}
	return &ProgressionService{
		Store:       store,
		calc:        NewCalculator(cfg.Curve),
		streak:      NewStreakTracker(cfg.StreakLocation),
		eval:        NewEvaluator(),
		leaderboard: cfg.Leaderboard,
		log:         cfg.Logger,
		lockTimeout: cfg.LockTimeout,
		now:         time.Now,
		degraded:    make(map[string]struct{}),
	}
}

// AwardForEvent validates and applies one award event. Benign conditions
// (duplicate, out-of-order streak, degraded achievement write) come back as
// outcome flags with a nil error; the subsystem never fails the caller's
// primary action over them. ErrInvalidEvent and ErrProgressionUnavailable
// are the only errors surfaced.
func (s *ProgressionService) AwardForEvent(ctx context.Context, event models.AwardEvent) (*models.ProgressionOutcome, error) {
	if err := utils.ValidateStruct(event); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, err)
	}
	if event.Type != models.TransactionManualAdjustment && event.Points < 0 {
		return nil, fmt.Errorf("%w: negative points for automatic event", ErrInvalidEvent)
	}

	outcome, unlocked, err := s.award(ctx, event, true)
	if err != nil {
		return nil, err
	}
	if outcome.Duplicate {
		utils.DuplicateEventsTotal.Inc()
		return outcome, nil
	}
	utils.AwardsTotal.WithLabelValues(string(event.Type)).Inc()

	if len(unlocked) > 0 {
		s.awardUnlockBonuses(ctx, outcome, unlocked)
	}

	if s.leaderboard != nil && outcome.UpdatedStats != nil {
		if err := s.leaderboard.UpdateScore(ctx, event.UserID, outcome.UpdatedStats.Points); err != nil {
			s.log.WithError(err).WithField("user_id", event.UserID).Warn("leaderboard update failed")
		}
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  event.UserID,
		"type":     event.Type,
		"points":   outcome.Transaction.Points,
		"level":    outcome.UpdatedStats.Level,
		"streak":   outcome.UpdatedStats.CurrentStreak,
		"unlocked": outcome.NewlyUnlockedAchievements,
	}).Info("points awarded")

	return outcome, nil
}

// award runs the locked ledger-append and stats read-modify-write, then,
// when evaluate is set, the achievement pass in the same scope: evaluation
// and the UserAchievement write are linearized with the progression write,
// so one unlock lands on exactly one outcome. Unlock bonuses re-acquire the
// lock, so the caller awards them after release. The bonus path itself runs
// with evaluate false.
func (s *ProgressionService) award(ctx context.Context, event models.AwardEvent, evaluate bool) (*models.ProgressionOutcome, []models.Achievement, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var outcome *models.ProgressionOutcome
	var unlocked []models.Achievement
	err := s.Store.WithUserLock(lockCtx, event.UserID, func(tx storage.Store) error {
		// Idempotency: a replayed (userId, type, sourceId) short-circuits to
		// the previously recorded outcome instead of re-awarding.
		if event.SourceID != nil {
			prior, err := tx.FindTransaction(lockCtx, event.UserID, event.Type, *event.SourceID)
			if err == nil {
				stats, serr := tx.EnsureProgression(lockCtx, event.UserID)
				if serr != nil {
					return serr
				}
				outcome = &models.ProgressionOutcome{
					Transaction:  prior,
					UpdatedStats: stats,
					Duplicate:    true,
				}
				return nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}

		stats, err := tx.EnsureProgression(lockCtx, event.UserID)
		if err != nil {
			return err
		}

		updated, leveledUp, effectivePoints := s.calc.ApplyAward(stats, event, s.now())

		streakSkipped := false
		if s.calc.StreakEligible(event.Type) {
			streaked, serr := s.streak.RecordActivity(updated, event.OccurredAt)
			switch {
			case errors.Is(serr, ErrOutOfOrderEvent):
				streakSkipped = true
				s.log.WithFields(logrus.Fields{
					"user_id":     event.UserID,
					"occurred_at": event.OccurredAt,
				}).Warn("out-of-order activity, streak untouched")
			case serr != nil:
				return serr
			default:
				updated = streaked
			}
		}

		ptx := &models.PointTransaction{
			ID:          uuid.NewString(),
			UserID:      event.UserID,
			Points:      effectivePoints,
			Type:        event.Type,
			SourceID:    event.SourceID,
			Description: event.Description,
		}
		if err := tx.AppendTransaction(lockCtx, ptx); err != nil {
			return err
		}

		if err := tx.SaveProgression(lockCtx, updated); err != nil {
			return err
		}

		outcome = &models.ProgressionOutcome{
			Transaction:   ptx,
			UpdatedStats:  updated,
			LeveledUp:     leveledUp,
			StreakSkipped: streakSkipped,
		}
		if evaluate {
			unlocked = s.evaluateAchievements(lockCtx, tx, outcome)
		}
		return nil
	})

	switch {
	case err == nil:
		return outcome, unlocked, nil
	case errors.Is(err, storage.ErrLockTimeout):
		utils.LockTimeoutsTotal.Inc()
		return nil, nil, fmt.Errorf("%w: %s", ErrProgressionUnavailable, err)
	case errors.Is(err, storage.ErrDuplicateKey):
		// Unique-index backstop fired between check and append; fetch prior.
		prior, perr := s.priorOutcome(ctx, event)
		return prior, nil, perr
	default:
		return nil, nil, err
	}
}

func (s *ProgressionService) priorOutcome(ctx context.Context, event models.AwardEvent) (*models.ProgressionOutcome, error) {
	if event.SourceID == nil {
		return nil, ErrDuplicateEvent
	}
	prior, err := s.Store.FindTransaction(ctx, event.UserID, event.Type, *event.SourceID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Store.EnsureProgression(ctx, event.UserID)
	if err != nil {
		return nil, err
	}
	return &models.ProgressionOutcome{
		Transaction:  prior,
		UpdatedStats: stats,
		Duplicate:    true,
	}, nil
}

// evaluateAchievements runs inside the per-user scope, right after the
// progression write, so concurrent awards for the same user serialize and
// an unlock is reported on exactly one outcome. The achievement write is
// isolated from the points commit (the postgres store uses a savepoint):
// a failure there degrades the outcome, queues the user for the
// reconciliation pass, and leaves the awarded points intact. Returns the
// catalog entries that crossed their threshold so the caller can grant
// bonuses after the scope is released.
func (s *ProgressionService) evaluateAchievements(ctx context.Context, tx storage.Store, outcome *models.ProgressionOutcome) []models.Achievement {
	userID := outcome.UpdatedStats.UserID

	catalog, err := s.Catalog(ctx)
	if err != nil {
		s.degrade(outcome, userID, err)
		return nil
	}
	existing, err := tx.ListUserAchievements(ctx, userID)
	if err != nil {
		s.degrade(outcome, userID, err)
		return nil
	}

	result := s.eval.Evaluate(outcome.UpdatedStats, catalog, existing, s.now())
	if len(result.Updated) == 0 {
		return nil
	}
	if err := tx.UpsertUserAchievements(ctx, result.Updated); err != nil {
		s.degrade(outcome, userID, err)
		return nil
	}

	for _, ach := range result.NewlyUnlocked {
		outcome.NewlyUnlockedAchievements = append(outcome.NewlyUnlockedAchievements, ach.Code)
		utils.AchievementsUnlockedTotal.Inc()
	}
	return result.NewlyUnlocked
}

// awardUnlockBonuses routes achievement point rewards back through the
// locked award path as ACHIEVEMENT_BONUS transactions keyed by the
// achievement code, so a replay cannot grant a bonus twice. Runs after the
// triggering scope is released (the award path re-acquires the lock).
// Bonuses do not re-trigger evaluation in the same pass; a threshold they
// cross is picked up by the next event or the reconciler.
func (s *ProgressionService) awardUnlockBonuses(ctx context.Context, outcome *models.ProgressionOutcome, unlocked []models.Achievement) {
	for _, ach := range unlocked {
		if ach.PointsReward <= 0 {
			continue
		}
		code := ach.Code
		bonus, _, err := s.award(ctx, models.AwardEvent{
			UserID:      outcome.UpdatedStats.UserID,
			Type:        models.TransactionAchievementBonus,
			SourceID:    &code,
			Points:      ach.PointsReward,
			OccurredAt:  s.now(),
			Description: fmt.Sprintf("Achievement unlocked: %s", ach.Name),
		}, false)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"user_id":     outcome.UpdatedStats.UserID,
				"achievement": ach.Code,
			}).Warn("achievement bonus award failed")
			continue
		}
		if !bonus.Duplicate {
			outcome.UpdatedStats = bonus.UpdatedStats
			outcome.LeveledUp = outcome.LeveledUp || bonus.LeveledUp
		}
	}
}

func (s *ProgressionService) degrade(outcome *models.ProgressionOutcome, userID string, err error) {
	outcome.Degraded = true
	outcome.NewlyUnlockedAchievements = nil
	s.degradedMu.Lock()
	s.degraded[userID] = struct{}{}
	s.degradedMu.Unlock()
	s.log.WithError(err).WithField("user_id", userID).
		Error("achievement persistence failed, queued for reconciliation")
}

// Catalog returns the achievement catalog, cached after the first load. The
// catalog is admin-curated and read-only at runtime, so one copy is shared
// across all users.
func (s *ProgressionService) Catalog(ctx context.Context) ([]models.Achievement, error) {
	s.catalogMu.RLock()
	cached := s.catalog
	s.catalogMu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	catalog, err := s.Store.ListCatalog(ctx)
	if err != nil {
		return nil, err
	}
	s.catalogMu.Lock()
	s.catalog = catalog
	s.catalogMu.Unlock()
	return catalog, nil
}

// InvalidateCatalog drops the cache; admin catalog handlers call this after
// a mutation.
func (s *ProgressionService) InvalidateCatalog() {
	s.catalogMu.Lock()
	s.catalog = nil
	s.catalogMu.Unlock()
}

// DrainDegraded returns and clears the set of users queued for achievement
// re-evaluation.
func (s *ProgressionService) DrainDegraded() []string {
	s.degradedMu.Lock()
	defer s.degradedMu.Unlock()
	ids := make([]string, 0, len(s.degraded))
	for id := range s.degraded {
		ids = append(ids, id)
	}
	s.degraded = make(map[string]struct{})
	return ids
}

// ReevaluateUser re-runs the achievement evaluator for one user, inside the
// same per-user scope the award path uses so the pass cannot interleave with
// a concurrent award. Idempotent; used by the reconciliation worker.
func (s *ProgressionService) ReevaluateUser(ctx context.Context, userID string) error {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return err
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var stats *models.UserProgression
	var unlocked []models.Achievement
	err = s.Store.WithUserLock(lockCtx, userID, func(tx storage.Store) error {
		var terr error
		stats, terr = tx.GetProgression(lockCtx, userID)
		if terr != nil {
			return terr
		}
		existing, terr := tx.ListUserAchievements(lockCtx, userID)
		if terr != nil {
			return terr
		}
		result := s.eval.Evaluate(stats, catalog, existing, s.now())
		if len(result.Updated) == 0 {
			return nil
		}
		if terr := tx.UpsertUserAchievements(lockCtx, result.Updated); terr != nil {
			return terr
		}
		unlocked = result.NewlyUnlocked
		return nil
	})
	if err != nil {
		return err
	}

	// Unlocks recovered here still owe their bonus; the keyed award path
	// makes the grant safe to repeat.
	if len(unlocked) > 0 {
		outcome := &models.ProgressionOutcome{UpdatedStats: stats}
		s.awardUnlockBonuses(ctx, outcome, unlocked)
	}
	return nil
}

// CheckLedgerConsistency verifies sum(transactions) == stored points for one
// user. Drift is reported, never auto-corrected.
func (s *ProgressionService) CheckLedgerConsistency(ctx context.Context, userID string) (bool, error) {
	sum, err := s.Store.SumPoints(ctx, userID)
	if err != nil {
		return false, err
	}
	stats, err := s.Store.GetProgression(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	if sum != stats.Points {
		utils.LedgerDriftTotal.Inc()
		s.log.WithFields(logrus.Fields{
			"user_id":    userID,
			"ledger_sum": sum,
			"stored":     stats.Points,
		}).Error("ledger drift detected")
		return false, nil
	}
	return true, nil
}
