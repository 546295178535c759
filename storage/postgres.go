package storage

import (
	"context"
	"errors"

	"taskflow-progression/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore implements Store on GORM. The per-user critical section is a
// transaction holding a row lock (SELECT ... FOR UPDATE) on the user's
// progression row for the duration of the read-modify-write.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// AutoMigrate creates or updates the progression tables.
func (s *PostgresStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&models.UserProgression{},
		&models.PointTransaction{},
		&models.Achievement{},
		&models.UserAchievement{},
	)
}

// SeedCatalog inserts the default achievement catalog, keyed by code so
// reboots are idempotent and admin edits are not overwritten.
func (s *PostgresStore) SeedCatalog(ctx context.Context) error {
	for _, ach := range models.DefaultAchievements {
		ach.ID = uuid.NewString()
		var existing models.Achievement
		err := s.db.WithContext(ctx).
			Where("code = ?", ach.Code).
			Attrs(ach).
			FirstOrCreate(&existing).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) WithUserLock(ctx context.Context, userID string, fn func(tx Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Create the row if missing so there is something to lock.
		seed := models.UserProgression{
			ID:     uuid.NewString(),
			UserID: userID,
			Level:  1,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		var locked models.UserProgression
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&locked).Error; err != nil {
			return err
		}

		return fn(&PostgresStore{db: tx})
	})
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrLockTimeout
	}
	return err
}

func (s *PostgresStore) EnsureProgression(ctx context.Context, userID string) (*models.UserProgression, error) {
	var prog models.UserProgression
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prog = models.UserProgression{
			ID:     uuid.NewString(),
			UserID: userID,
			Level:  1,
		}
		if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&prog).Error; err != nil {
			return nil, err
		}
		// Re-read in case a concurrent create won the conflict.
		if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&prog).Error; err != nil {
			return nil, err
		}
		return &prog, nil
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}

func (s *PostgresStore) GetProgression(ctx context.Context, userID string) (*models.UserProgression, error) {
	var prog models.UserProgression
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}

func (s *PostgresStore) SaveProgression(ctx context.Context, p *models.UserProgression) error {
	return s.db.WithContext(ctx).Save(p).Error
}

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.UserProgression{}).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (s *PostgresStore) AppendTransaction(ctx context.Context, t *models.PointTransaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Create(t).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

func (s *PostgresStore) FindTransaction(ctx context.Context, userID string, typ models.TransactionType, sourceID string) (*models.PointTransaction, error) {
	var t models.PointTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND source_id = ?", userID, typ, sourceID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) SumPoints(ctx context.Context, userID string) (int64, error) {
	var sum *int64
	err := s.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("user_id = ?", userID).
		Select("SUM(points)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, page, size int) ([]models.PointTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []models.PointTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&txs).Error
	return txs, total, err
}

func (s *PostgresStore) ListCatalog(ctx context.Context) ([]models.Achievement, error) {
	var catalog []models.Achievement
	err := s.db.WithContext(ctx).
		Order("requirement ASC").
		Find(&catalog).Error
	return catalog, err
}

func (s *PostgresStore) ListUserAchievements(ctx context.Context, userID string) ([]models.UserAchievement, error) {
	var rows []models.UserAchievement
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rows).Error
	return rows, err
}

func (s *PostgresStore) UpsertUserAchievements(ctx context.Context, rows []models.UserAchievement) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
	}
	// Monotonic merge at the database: progress never decreases, completion
	// never reverts, unlock timestamps are kept once set. Concurrent writers
	// converge regardless of ordering. Wrapped in its own transaction so that
	// inside the per-user scope this becomes a savepoint: a failure here rolls
	// back only the achievement write, not the progression commit around it.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"progress":     gorm.Expr("GREATEST(user_achievements.progress, excluded.progress)"),
				"is_completed": gorm.Expr("user_achievements.is_completed OR excluded.is_completed"),
				"unlocked_at":  gorm.Expr("COALESCE(user_achievements.unlocked_at, excluded.unlocked_at)"),
				"updated_at":   gorm.Expr("NOW()"),
			}),
		}).Create(&rows).Error
	})
}
