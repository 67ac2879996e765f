package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Config contains database connection options. The pending-grant table lives
// in a single local SQLite file so it survives process restarts.
type Config struct {
	Path string // SQLite database path; empty or ":memory:" opens an in-memory database
	DSN  string // Optional DSN override
}

// Open initialises a gorm.DB using the provided configuration.
func Open(cfg Config) (*gorm.DB, error) {
	return openSQLite(cfg)
}

// Migrate applies the schema during application start-up. A failure here is
// fatal to the caller: the bot cannot run without its durable table.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}
