package database

import (
	"context"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// DefaultMigrations returns the schema migrations for the redaction history
// store. The table holds audit metadata only; input text and detected values
// are never persisted.
func DefaultMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_redactions_table",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS redactions (
					id BIGSERIAL PRIMARY KEY,
					request_id VARCHAR(128) NOT NULL,
					categories TEXT[] NOT NULL DEFAULT '{}',
					detected_count INTEGER NOT NULL DEFAULT 0,
					outcome VARCHAR(32) NOT NULL,
					duration_ms BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_redactions_created_at ON redactions (created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_redactions_outcome ON redactions (outcome);
			`,
			DownSQL: `DROP TABLE IF EXISTS redactions;`,
		},
	}
}

// Migrator applies migrations in version order, tracking progress in a
// schema_migrations table. Each migration runs in its own transaction.
type Migrator struct {
	pool       *Pool
	migrations []Migration
}

// NewMigrator creates a Migrator over the given migration set.
func NewMigrator(pool *Pool, migrations []Migration) *Migrator {
	return &Migrator{pool: pool, migrations: migrations}
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureTrackingTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if applied[mig.Version] {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return count, fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}

	return count, nil
}

// Down rolls back the most recently applied migration, if any.
func (m *Migrator) Down(ctx context.Context) error {
	version, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		return nil
	}

	for _, mig := range m.migrations {
		if mig.Version == version {
			return m.rollback(ctx, mig)
		}
	}

	return fmt.Errorf("migration %d not found", version)
}

// CurrentVersion returns the highest applied migration version, or 0.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (m *Migrator) ensureTrackingTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}

	return applied, rows.Err()
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
		return fmt.Errorf("failed to execute up SQL: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
		mig.Version, mig.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit(ctx)
}

func (m *Migrator) rollback(ctx context.Context, mig Migration) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if mig.DownSQL != "" {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to execute down SQL: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM schema_migrations WHERE version = $1`,
		mig.Version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit(ctx)
}
