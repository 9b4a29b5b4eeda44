package initializers

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mental-health-navigator/high-tea/internals/models"
)

// SyncDatabase migrates the transient tables.
func SyncDatabase(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.OTPChallenge{},
		&models.Blacklist{},
	); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}
