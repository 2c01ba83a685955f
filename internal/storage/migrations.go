package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migration represents a single schema change.
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "create_samples_table",
		sql: `
		CREATE TABLE IF NOT EXISTS samples (
			id TEXT PRIMARY KEY,
			module_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			natural_key TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			quality_score REAL NOT NULL DEFAULT 1.0,
			features TEXT NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_samples_module_user ON samples(module_id, user_id);
		CREATE INDEX IF NOT EXISTS idx_samples_timestamp ON samples(module_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_samples_natural_key ON samples(module_id, natural_key)
			WHERE natural_key != '';
		`,
	},
	{
		name: "create_rules_table",
		sql: `
		CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			module_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			rule_key TEXT NOT NULL,
			source TEXT NOT NULL,
			confidence REAL NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			sample_count INTEGER NOT NULL DEFAULT 0,
			hit_count INTEGER NOT NULL DEFAULT 0,
			false_positives INTEGER NOT NULL DEFAULT 0,
			payload_kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_used_at DATETIME,
			UNIQUE(module_id, user_id, rule_key)
		);
		CREATE INDEX IF NOT EXISTS idx_rules_module_user ON rules(module_id, user_id, priority DESC, confidence DESC);
		`,
	},
}

// runMigrations applies all pending migrations in order.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i, m := range migrations {
		version := i + 1
		if version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}

		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", version, m.name, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}

		slog.Debug("Applied migration", "version", version, "name", m.name)
	}

	return nil
}
