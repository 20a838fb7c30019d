package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Migration is one versioned schema change. {{id}} in SQL expands to the
// driver's auto-increment primary key column type.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id {{id}},
					username VARCHAR(100) NOT NULL UNIQUE,
					password_hash VARCHAR(255) NOT NULL,
					first_name VARCHAR(100) NOT NULL DEFAULT '',
					last_name VARCHAR(100) NOT NULL DEFAULT '',
					birth_date TIMESTAMP NULL,
					hire_date TIMESTAMP NULL,
					department VARCHAR(100) NOT NULL,
					role VARCHAR(20) NOT NULL DEFAULT 'worker',
					profile_picture_path VARCHAR(255) NULL,
					refresh_token VARCHAR(255) NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_refresh_token ON users(refresh_token);
			`,
		},
		{
			Version:     2,
			Description: "Create tasks table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tasks (
					id {{id}},
					title VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status VARCHAR(20) NOT NULL DEFAULT 'new',
					deadline TIMESTAMP NULL,
					created_by BIGINT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
			`,
		},
		{
			Version:     3,
			Description: "Create user_tasks assignment table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_tasks (
					user_id BIGINT NOT NULL,
					task_id BIGINT NOT NULL,
					PRIMARY KEY (user_id, task_id)
				);
				CREATE INDEX IF NOT EXISTS idx_user_tasks_task ON user_tasks(task_id);
			`,
		},
		{
			Version:     4,
			Description: "Create news table",
			SQL: `
				CREATE TABLE IF NOT EXISTS news (
					id {{id}},
					title VARCHAR(255) NOT NULL,
					content TEXT NOT NULL DEFAULT '',
					author_id BIGINT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_news_created_at ON news(created_at);
			`,
		},
		{
			Version:     5,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id {{id}},
					timestamp TIMESTAMP NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					user_id BIGINT NULL,
					username VARCHAR(100) NOT NULL DEFAULT '',
					resource_type VARCHAR(50) NOT NULL DEFAULT '',
					resource_id VARCHAR(100) NOT NULL DEFAULT '',
					ip_address VARCHAR(64) NOT NULL DEFAULT '',
					request_id VARCHAR(100) NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					metadata TEXT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_events_user ON audit_events(user_id);
			`,
		},
	}
}

// render expands dialect placeholders for driver
func (m Migration) render(driver string) string {
	id := "BIGSERIAL PRIMARY KEY"
	if driver == DriverSQLite {
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return strings.ReplaceAll(m.SQL, "{{id}}", id)
}

// Migrate applies every migration newer than the recorded schema version.
// Each migration runs in its own transaction.
func Migrate(ctx context.Context, db *sql.DB, driver string) (int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	applied := 0
	for _, m := range GetMigrations() {
		if m.Version <= current {
			continue
		}
		if err := apply(ctx, db, driver, m); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func apply(ctx context.Context, db *sql.DB, driver string, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer Rollback(tx)

	if _, err := tx.ExecContext(ctx, m.render(driver)); err != nil {
		return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)",
		m.Version, m.Description, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}
