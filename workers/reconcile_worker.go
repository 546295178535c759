package workers

import (
	"context"
	"time"

	"taskflow-progression/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// ReconcileWorker periodically verifies ledger/aggregate consistency and
// re-runs the achievement evaluator for users whose achievement write
// degraded. Both passes are idempotent, so overlapping runs are harmless;
// drift is reported, never auto-corrected.
type ReconcileWorker struct {
	svc      *services.ProgressionService
	log      *logrus.Logger
	interval time.Duration
	sched    gocron.Scheduler
}

func NewReconcileWorker(svc *services.ProgressionService, log *logrus.Logger, interval time.Duration) *ReconcileWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ReconcileWorker{svc: svc, log: log, interval: interval}
}

func (w *ReconcileWorker) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	w.sched = sched

	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			w.RunOnce(ctx)
		}),
	)
	if err != nil {
		return err
	}

	sched.Start()

	go func() {
		<-ctx.Done()
		_ = sched.Shutdown()
	}()
	return nil
}

// RunOnce executes a single reconciliation pass.
func (w *ReconcileWorker) RunOnce(ctx context.Context) {
	start := time.Now()

	// Degraded users first: their unlock notifications are already late.
	for _, userID := range w.svc.DrainDegraded() {
		if err := w.svc.ReevaluateUser(ctx, userID); err != nil {
			w.log.WithError(err).WithField("user_id", userID).
				Warn("[reconcile] achievement re-evaluation failed")
		}
	}

	userIDs, err := w.svc.Store.ListUserIDs(ctx)
	if err != nil {
		w.log.WithError(err).Error("[reconcile] failed to list users")
		return
	}

	drifted := 0
	for _, userID := range userIDs {
		consistent, err := w.svc.CheckLedgerConsistency(ctx, userID)
		if err != nil {
			w.log.WithError(err).WithField("user_id", userID).
				Warn("[reconcile] consistency check failed")
			continue
		}
		if !consistent {
			drifted++
		}
	}

	w.log.WithFields(logrus.Fields{
		"users":    len(userIDs),
		"drifted":  drifted,
		"duration": time.Since(start).String(),
	}).Info("[reconcile] pass complete")
}
