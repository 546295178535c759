package storage

import (
	"context"
	"errors"

	"taskflow-progression/models"
)

var (
	// ErrDuplicateKey: the (user_id, type, source_id) idempotency index
	// rejected an append.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrLockTimeout: the per-user critical section was not acquired within
	// the caller's context deadline.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	ErrNotFound = errors.New("record not found")
)

// Store is the persistence contract of the progression engine. The postgres
// implementation backs production; the memory implementation backs tests and
// local development.
type Store interface {
	// WithUserLock runs fn inside this user's exclusive critical section.
	// All mutations to a user's progression and achievements happen here;
	// operations for different users never contend. The context deadline
	// bounds lock acquisition.
	WithUserLock(ctx context.Context, userID string, fn func(tx Store) error) error

	// EnsureProgression returns the user's progression row, creating it with
	// zero counters on first touch (idempotent).
	EnsureProgression(ctx context.Context, userID string) (*models.UserProgression, error)
	GetProgression(ctx context.Context, userID string) (*models.UserProgression, error)
	SaveProgression(ctx context.Context, p *models.UserProgression) error
	ListUserIDs(ctx context.Context) ([]string, error)

	// AppendTransaction adds a ledger entry; ErrDuplicateKey when the
	// idempotency key already exists. Ledger rows are never updated.
	AppendTransaction(ctx context.Context, t *models.PointTransaction) error
	FindTransaction(ctx context.Context, userID string, typ models.TransactionType, sourceID string) (*models.PointTransaction, error)
	SumPoints(ctx context.Context, userID string) (int64, error)
	ListTransactions(ctx context.Context, userID string, page, size int) ([]models.PointTransaction, int64, error)

	// Achievement catalog is read-only at runtime outside admin tooling.
	ListCatalog(ctx context.Context) ([]models.Achievement, error)
	ListUserAchievements(ctx context.Context, userID string) ([]models.UserAchievement, error)
	// UpsertUserAchievements persists evaluator output. Monotonic: progress
	// never decreases, is_completed never reverts, unlocked_at is kept once set.
	UpsertUserAchievements(ctx context.Context, rows []models.UserAchievement) error
}
