package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pending_links (
		token       TEXT PRIMARY KEY,
		telegram_id INTEGER NOT NULL,
		created_at  TEXT    NOT NULL,
		expires_at  TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_pending_links_expires ON pending_links(expires_at)`,

	`CREATE TABLE IF NOT EXISTS user_links (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		discord_id        INTEGER NOT NULL UNIQUE,
		telegram_id       INTEGER NOT NULL UNIQUE,
		guild_id          INTEGER NOT NULL,
		created_at        TEXT    NOT NULL,
		updated_at        TEXT    NOT NULL,
		added_to_group_at TEXT,
		last_check        TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_user_links_guild ON user_links(guild_id)`,

	`CREATE TABLE IF NOT EXISTS guilds (
		guild_id          INTEGER PRIMARY KEY,
		telegram_group_id INTEGER NOT NULL,
		created_at        TEXT    NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS guild_roles (
		guild_id INTEGER NOT NULL,
		role_id  INTEGER NOT NULL,
		PRIMARY KEY (guild_id, role_id)
	)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	// Ensure schema_version table exists first.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
