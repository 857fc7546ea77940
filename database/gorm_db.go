package database

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/camden-git/entomobackend/models"
)

// InitGormDB opens the sqlite database at dataSourceName.
func InitGormDB(dataSourceName string, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := gorm.Open(sqlite.Open(dataSourceName), &gorm.Config{
		Logger: NewGormLogger(log.With("component", "gorm"), 200*time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	// enable write-ahead logging so readers don't block the changeset writer
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Warn("failed to set WAL mode", "error", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		log.Warn("failed to enable foreign keys", "error", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(1) // sqlite allows a single writer
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("GORM database initialized", "path", dataSourceName)
	return db, nil
}

// AutoMigrateModels creates or updates the schema.
func AutoMigrateModels(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Upload{}, &models.Detection{}); err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	return sqlDB.Close()
}
