package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// migrationLockKey serializes migrations across processes sharing a database.
const migrationLockKey = "starledger.migrate"

// Migration is one numbered schema change: {version}_{name}.up.sql with a
// matching .down.sql in the same directory.
type Migration struct {
	Version  string
	Name     string
	UpFile   string
	DownFile string
}

// MigrationStatus reports whether a migration found on disk is applied.
type MigrationStatus struct {
	Migration
	Applied   bool
	AppliedAt time.Time
}

// Migrator applies the SQL files in a directory and tracks them in
// ledger.schema_migrations.
type Migrator struct {
	db  *sql.DB
	dir string
	log zerolog.Logger
}

func NewMigrator(db *sql.DB, migrationsDir string, logger zerolog.Logger) *Migrator {
	return &Migrator{db: db, dir: migrationsDir, log: logger}
}

// Up applies every pending migration in version order. Each one runs in its
// own transaction under an advisory lock, so two daemons starting together
// apply it once.
func (m *Migrator) Up(ctx context.Context) error {
	migrations, err := loadMigrations(m.dir)
	if err != nil {
		return err
	}
	if err := m.ensureTrackingTable(ctx); err != nil {
		return fmt.Errorf("ensure tracking table: %w", err)
	}

	applied := 0
	for _, mg := range migrations {
		ran, err := m.apply(ctx, mg)
		if err != nil {
			return err
		}
		if ran {
			applied++
		}
	}
	m.log.Info().Int("applied", applied).Int("known", len(migrations)).Msg("schema up to date")
	return nil
}

func (m *Migrator) apply(ctx context.Context, mg Migration) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin %s: %w", mg.UpFile, err)
	}
	defer tx.Rollback()

	if err := lockMigrations(ctx, tx); err != nil {
		return false, err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger.schema_migrations WHERE version = $1)`, mg.Version,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s: %w", mg.Version, err)
	}
	if exists {
		return false, nil
	}

	if err := execFile(ctx, tx, m.dir, mg.UpFile); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger.schema_migrations (version, name) VALUES ($1, $2)`, mg.Version, mg.Name,
	); err != nil {
		return false, fmt.Errorf("record %s: %w", mg.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit %s: %w", mg.UpFile, err)
	}

	m.log.Info().Str("version", mg.Version).Str("name", mg.Name).Msg("applied migration")
	return true, nil
}

// Down rolls back the most recently applied migration. It is a no-op on an
// empty schema.
func (m *Migrator) Down(ctx context.Context) error {
	migrations, err := loadMigrations(m.dir)
	if err != nil {
		return err
	}
	if err := m.ensureTrackingTable(ctx); err != nil {
		return fmt.Errorf("ensure tracking table: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockMigrations(ctx, tx); err != nil {
		return err
	}

	var version string
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM ledger.schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version)
	if err == sql.ErrNoRows {
		m.log.Info().Msg("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("latest migration: %w", err)
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == version {
			target = &migrations[i]
		}
	}
	if target == nil {
		return fmt.Errorf("applied migration %s has no files in %s", version, m.dir)
	}

	if err := execFile(ctx, tx, m.dir, target.DownFile); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ledger.schema_migrations WHERE version = $1`, version,
	); err != nil {
		return fmt.Errorf("unrecord %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	m.log.Info().Str("version", target.Version).Str("name", target.Name).Msg("rolled back migration")
	return nil
}

// Status lists every migration on disk with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	migrations, err := loadMigrations(m.dir)
	if err != nil {
		return nil, err
	}
	if err := m.ensureTrackingTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `SELECT version, applied_at FROM ledger.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appliedAt := make(map[string]time.Time)
	for rows.Next() {
		var v string
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		appliedAt[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, mg := range migrations {
		at, ok := appliedAt[mg.Version]
		out = append(out, MigrationStatus{Migration: mg, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

func (m *Migrator) ensureTrackingTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE SCHEMA IF NOT EXISTS ledger;
		CREATE TABLE IF NOT EXISTS ledger.schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func lockMigrations(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, migrationLockKey); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	return nil
}

func execFile(ctx context.Context, tx *sql.Tx, dir, file string) error {
	content, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("exec %s: %w", file, err)
	}
	return nil
}

// loadMigrations pairs the up and down files in dir and sorts them by
// version. A version without both files, or named twice, is an error.
func loadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, direction, ok := parseMigrationName(e.Name())
		if !ok {
			continue
		}

		mg := byVersion[version]
		if mg == nil {
			mg = &Migration{Version: version, Name: name}
			byVersion[version] = mg
		}
		if mg.Name != name {
			return nil, fmt.Errorf("migration %s has two names: %s and %s", version, mg.Name, name)
		}

		slot := &mg.UpFile
		if direction == "down" {
			slot = &mg.DownFile
		}
		if *slot != "" {
			return nil, fmt.Errorf("migration %s has two %s files", version, direction)
		}
		*slot = e.Name()
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mg := range byVersion {
		if mg.UpFile == "" || mg.DownFile == "" {
			return nil, fmt.Errorf("migration %s_%s needs both .up.sql and .down.sql", mg.Version, mg.Name)
		}
		out = append(out, *mg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigrationName splits "000001_blocks.up.sql" into its version, name and
// direction. Files that do not follow the pattern are skipped.
func parseMigrationName(filename string) (version, name, direction string, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return "", "", "", false
	}
	switch {
	case strings.HasSuffix(base, ".up"):
		direction = "up"
	case strings.HasSuffix(base, ".down"):
		direction = "down"
	default:
		return "", "", "", false
	}
	base = strings.TrimSuffix(base, "."+direction)

	version, name, found = strings.Cut(base, "_")
	if !found || version == "" || name == "" {
		return "", "", "", false
	}
	for _, r := range version {
		if r < '0' || r > '9' {
			return "", "", "", false
		}
	}
	return version, name, direction, true
}
