package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsTable keeps the schema version apart from other apps sharing the database
const migrationsTable = "mediecho_schema_migrations"

// RunMigrations applies every pending migration
func RunMigrations(db *gorm.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("Database schema up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logVersion(m, "Database migrations applied")
	return nil
}

// RollbackMigrations reverts the most recent steps migrations
func RollbackMigrations(db *gorm.DB, steps int) error {
	if steps < 1 {
		return fmt.Errorf("rollback steps must be positive, got %d", steps)
	}

	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}

	logVersion(m, "Database migrations rolled back", "steps", steps)
	return nil
}

// newMigrator builds a migrate instance over the embedded SQL files. The caller
// must not Close it: that would close db's connection pool too.
func newMigrator(db *gorm.DB) (*migrate.Migrate, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source driver: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func logVersion(m *migrate.Migrate, msg string, args ...any) {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		slog.Warn("Failed to read schema version", "error", err)
		return
	}
	slog.Info(msg, append(args, "version", version, "dirty", dirty)...)
}
