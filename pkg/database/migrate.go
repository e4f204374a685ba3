package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationRunner applies numbered SQL files and records them in
// schema_migrations.
type MigrationRunner struct {
	db *sql.DB
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// RunMigrations applies every pending migration found in fsys.
// It returns the versions it applied.
func (mr *MigrationRunner) RunMigrations(ctx context.Context, fsys fs.FS) ([]int, error) {
	if _, err := mr.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := loadMigrations(fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := mr.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var ran []int
	for _, m := range migrations {
		if slices.Contains(applied, m.Version) {
			continue
		}
		if err := mr.runMigration(ctx, m); err != nil {
			return ran, fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
		ran = append(ran, m.Version)
	}
	return ran, nil
}

// loadMigrations reads files named NNN_name.sql, sorted by version.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, file := range files {
		filename := path.Base(file)
		if len(filename) < 8 || filename[3] != '_' {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(filename[:3], "%d", &version); err != nil {
			continue
		}
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    filename[4 : len(filename)-4],
			SQL:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (mr *MigrationRunner) appliedVersions(ctx context.Context) ([]int, error) {
	rows, err := mr.db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (mr *MigrationRunner) runMigration(ctx context.Context, m Migration) error {
	tx, err := mr.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
