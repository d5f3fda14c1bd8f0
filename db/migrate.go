package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationsDirEnv overrides where the versioned migration files are looked up.
const MigrationsDirEnv = "MIGRATIONS_DIR"

// the binary runs from the module root; tests run from inside db/
var migrationDirs = []string{"db/migrations", "migrations", "../db/migrations"}

func migrationsSource() (string, error) {
	dirs := migrationDirs
	if d := os.Getenv(MigrationsDirEnv); d != "" {
		dirs = append([]string{d}, dirs...)
	}
	for _, d := range dirs {
		fi, err := os.Stat(d)
		if err != nil || !fi.IsDir() {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", d, err)
		}
		return "file://" + abs, nil
	}
	return "", fmt.Errorf("migrations directory not found (tried %v)", dirs)
}

// Migrator drives golang-migrate against the versioned files in db/migrations.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator locates the migration files and binds them to db.
func NewMigrator(db *sql.DB) (*Migrator, error) {
	src, err := migrationsSource()
	if err != nil {
		return nil, err
	}
	return NewMigratorFromSource(db, src)
}

// NewMigratorFromSource binds the migrations at a file:// URL to db.
func NewMigratorFromSource(db *sql.DB, src string) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (mg *Migrator) Up() error {
	err := mg.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return mg.checkClean("applied")
}

// Down rolls back the latest n migrations.
func (mg *Migrator) Down(n int) error {
	err := mg.m.Steps(-n)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return mg.checkClean("rolled back")
}

// Version reports the applied version; 0 means nothing is applied.
func (mg *Migrator) Version() (version uint, dirty bool, err error) {
	v, d, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration version: %w", err)
	}
	return v, d, nil
}

func (mg *Migrator) checkClean(action string) error {
	v, dirty, err := mg.Version()
	if err != nil {
		slog.Warn("could not read migration version", slog.Any("err", err), slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("schema is dirty at version %d; fix it by hand before retrying", v)
	}
	slog.Info("migrations "+action, slog.Uint64("version", uint64(v)), slog.String("component", "db_migrate"))
	return nil
}

// RunMigrations applies pending versioned migrations to db.
func RunMigrations(db *sql.DB) error {
	mg, err := NewMigrator(db)
	if err != nil {
		return err
	}
	return mg.Up()
}
