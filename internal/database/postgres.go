package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-arena/internal/models"
)

// Connect opens the relational store. DSNs starting with "sqlite:" or "file:" use the embedded SQLite driver,
// anything else is handed to PostgreSQL.
func Connect(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database dsn must not be empty")
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return open(sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), cfg, "sqlite")
	case strings.HasPrefix(dsn, "file:"):
		return open(sqlite.Open(dsn), cfg, "sqlite")
	default:
		return open(postgres.Open(dsn), cfg, "postgres")
	}
}

func open(dialector gorm.Dialector, cfg *gorm.Config, name string) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	return db, nil
}

// Migrate creates or updates the arena tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Problem{},
		&models.AcceptedSolution{},
		&models.SecurityEvent{},
		&models.GameRecord{},
		&models.GameParticipant{},
	); err != nil {
		return fmt.Errorf("migrate arena schema: %w", err)
	}
	return nil
}
