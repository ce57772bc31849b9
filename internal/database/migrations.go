package database

import (
	"fmt"

	"avmboard/server/internal/models"
)

func (d *Database) RunMigrations() error {
	if err := d.db.AutoMigrate(&models.Registration{}, &models.ModelRun{}); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}

	// Registrations are read back in submission order
	if err := d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_registrations_timestamp_id
		ON registrations(timestamp, id);
	`).Error; err != nil {
		return fmt.Errorf("failed to create registrations index: %w", err)
	}

	return nil
}
