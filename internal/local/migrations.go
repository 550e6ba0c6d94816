package local

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// legacyOwner owns the rows written before notes were tied to accounts.
const legacyOwner = "unknown"

type migration struct {
	version     int
	description string
	apply       func(ctx context.Context, tx *sql.Tx, owner string) error
}

// migrations run in order, each in its own transaction. Every step tolerates
// a database where its change already exists.
var migrations = []migration{
	{1, "create notes", func(ctx context.Context, tx *sql.Tx, _ string) error {
		_, err := tx.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS notes (
				id      INTEGER PRIMARY KEY AUTOINCREMENT,
				title   TEXT    NOT NULL DEFAULT '',
				content TEXT    NOT NULL DEFAULT '',
				date    INTEGER NOT NULL
			)`)
		return err
	}},
	{2, "add note owner", func(ctx context.Context, tx *sql.Tx, _ string) error {
		if err := addColumn(ctx, tx, "notes", "user_id", "TEXT NOT NULL DEFAULT '"+legacyOwner+"'"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE notes SET user_id = ? WHERE user_id IS NULL OR user_id = ''`, legacyOwner)
		return err
	}},
	{3, "add test note flag", func(ctx context.Context, tx *sql.Tx, _ string) error {
		return addColumn(ctx, tx, "notes", "is_test_note", "INTEGER NOT NULL DEFAULT 0")
	}},
	{4, "create sync checkpoints", func(ctx context.Context, tx *sql.Tx, _ string) error {
		_, err := tx.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS sync_checkpoints (
				key   TEXT PRIMARY KEY,
				value INTEGER NOT NULL
			)`)
		return err
	}},
	{5, "index notes by owner and date", func(ctx context.Context, tx *sql.Tx, _ string) error {
		_, err := tx.ExecContext(ctx,
			`CREATE INDEX IF NOT EXISTS idx_notes_user_date ON notes(user_id, date DESC)`)
		return err
	}},
	{6, "assign legacy notes", func(ctx context.Context, tx *sql.Tx, owner string) error {
		if owner == "" {
			return nil
		}
		_, err := tx.ExecContext(ctx, `UPDATE notes SET user_id = ? WHERE user_id = ?`, owner, legacyOwner)
		return err
	}},
}

func migrate(ctx context.Context, db *sql.DB, owner string, logger *slog.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("failed to read applied migrations: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := runMigration(ctx, db, m, owner); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}
		logger.Debug("applied migration", "version", m.version, "description", m.description)
	}

	return nil
}

func runMigration(ctx context.Context, db *sql.DB, m migration, owner string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.apply(ctx, tx, owner); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.version, time.Now().UnixMilli()); err != nil {
		return err
	}

	return tx.Commit()
}

func addColumn(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	exists, err := hasColumn(ctx, tx, table, column)
	if err != nil || exists {
		return err
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition))
	return err
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}

	return false, rows.Err()
}
