package models

import (
	"time"

	"gorm.io/gorm"
)

// TransactionType tags the domain event a ledger entry was produced by
type TransactionType string

const (
	TransactionTaskCompleted     TransactionType = "TASK_COMPLETED"
	TransactionPomodoroCompleted TransactionType = "POMODORO_COMPLETED"
	TransactionDSACompleted      TransactionType = "DSA_COMPLETED"
	TransactionManualAdjustment  TransactionType = "MANUAL_ADJUSTMENT"
	TransactionAchievementBonus  TransactionType = "ACHIEVEMENT_BONUS"
)

// PointTransaction is the append-only audit trail behind UserProgression.Points.
// Rows are never updated or deleted. The composite unique index on
// (user_id, type, source_id) is the idempotency key: a retried completion of
// the same task cannot award points twice.
type PointTransaction struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string          `gorm:"index;uniqueIndex:ux_user_type_source,priority:1;not null" json:"user_id"`
	Points      int64           `gorm:"not null" json:"points"` // signed; negative only for MANUAL_ADJUSTMENT
	Type        TransactionType `gorm:"uniqueIndex:ux_user_type_source,priority:2;not null" json:"type"`
	SourceID    *string         `gorm:"uniqueIndex:ux_user_type_source,priority:3" json:"source_id,omitempty"` // id of the task/session/question, nil for manual
	Description string          `gorm:"type:text" json:"description"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (PointTransaction) TableName() string { return "point_transactions" }

// BeforeUpdate blocks in-place mutation of ledger rows.
func (PointTransaction) BeforeUpdate(tx *gorm.DB) error {
	return gorm.ErrInvalidData
}
