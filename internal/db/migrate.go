package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/wartelsys/wartel/internal/models"
)

// Migrate creates or updates the schema for all collections.
//
// Beyond AutoMigrate it installs the partial unique index that backs the
// session exclusivity guard: at most one row per voucher_code may have
// active = true, so a second concurrent reservation fails the insert instead
// of racing a read-then-write check.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errMigrate := conn.AutoMigrate(
		&models.Voucher{},
		&models.Session{},
		&models.Receiver{},
		&models.ActivityLog{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}

	if errIndex := conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_voucher_active ON sessions (voucher_code) WHERE active`,
	).Error; errIndex != nil {
		return fmt.Errorf("db: exclusivity index: %w", errIndex)
	}

	return nil
}
