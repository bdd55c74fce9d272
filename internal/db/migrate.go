package db

import (
	"fmt"

	"github.com/convert-iq/convertiq/internal/models"
	"gorm.io/gorm"
)

// Migrate applies the forward-only schema for all persisted entities.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.Usage{},
		&models.WebhookEvent{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}
