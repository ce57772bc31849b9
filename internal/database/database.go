package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"avmboard/server/internal/models"
)

type Database struct {
	db *gorm.DB
}

// NewDatabase opens (creating if needed) the SQLite database at dbPath
func NewDatabase(dbPath string) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// InsertRegistration appends a visitor registration. Registrations are
// append-only: there is no update or delete counterpart.
//
// commit, when non-nil, runs inside the same transaction after the row is
// written; an error from it rolls the insert back.
func (d *Database) InsertRegistration(rec *models.Registration, commit func() error) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to insert registration: %w", err)
		}
		if commit == nil {
			return nil
		}
		return commit()
	})
}

// CountRegistrations returns the number of stored registrations
func (d *Database) CountRegistrations() (int64, error) {
	var count int64
	if err := d.db.Model(&models.Registration{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

// RecordModelRun stores the metadata of a startup training run
func (d *Database) RecordModelRun(run *models.ModelRun) error {
	if err := d.db.Create(run).Error; err != nil {
		return fmt.Errorf("failed to record model run: %w", err)
	}
	return nil
}

// LatestModelRun returns the most recent training run, or nil if none exists
func (d *Database) LatestModelRun() (*models.ModelRun, error) {
	var run models.ModelRun
	err := d.db.Order("trained_at DESC").Order("id DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest model run: %w", err)
	}
	return &run, nil
}
