package postgres

import (
	"fmt"

	"gorm.io/gorm"
	"yield-vault.backend/internal/infrastructure/models"
)

// Migrate creates or updates every engine table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
