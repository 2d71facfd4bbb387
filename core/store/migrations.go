package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"incidents-reseau/core/utils"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// sqliteMigrations mirrors the goose migrations for the sqlite runtime used
// in development and tests, where BIGSERIAL and TIMESTAMPTZ do not exist.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		severity TEXT NOT NULL DEFAULT 'Moyenne',
		description TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMP NOT NULL,
		has_attachments INTEGER NOT NULL DEFAULT 0,
		attachments_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS incident_attachments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER NOT NULL,
		stored_name TEXT NOT NULL UNIQUE,
		original_name TEXT NOT NULL,
		location TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		mime_type TEXT NOT NULL DEFAULT 'application/octet-stream',
		uploaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_occurred_at ON incidents(occurred_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_incident_attachments_incident ON incident_attachments(incident_id);`,
}

func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	isPG, err := isPostgresDB(ctx, db)
	if err != nil {
		return err
	}
	if !isPG {
		return applySQLiteMigrations(ctx, db, logger)
	}
	return applyGooseMigrations(ctx, db, logger)
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	goose.SetBaseFS(migrationFiles)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	if logger != nil {
		logger.Printf("postgres migrations applied")
	}
	return nil
}

func applySQLiteMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	for i, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	if logger != nil {
		logger.Printf("sqlite migrations applied")
	}
	return nil
}

func isPostgresDB(ctx context.Context, db *sql.DB) (bool, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT sqlite_version()`).Scan(&v)
	if err == nil {
		return false, nil
	}
	if err := db.QueryRowContext(ctx, `SELECT current_database()`).Scan(&v); err != nil {
		return false, fmt.Errorf("detect database flavor: %w", err)
	}
	return true, nil
}
