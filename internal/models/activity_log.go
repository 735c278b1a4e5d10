package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog records a staff or operator action for the audit trail.
// Entries are append-only and fire-and-forget for callers.
type ActivityLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   string         `gorm:"type:text;not null;index"` // Acting user, "unknown" when absent.
	Action   string         `gorm:"type:text;not null"`       // Human-readable action description.
	Metadata datatypes.JSON // Optional structured context (voucher code, session id).

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Entry timestamp.
}
