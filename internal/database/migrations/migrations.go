package migrations

import (
	"errors"
	"fmt"
	"os"

	"ms-booking/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/uptrace/bun"
)

// SchemaVersion is the last migration that only creates schema. Later
// versions load seed data.
const SchemaVersion uint = 2

// MigrateOptions defines configuration options for migration
type MigrateOptions struct {
	// MigrationsDir is the directory containing migration files
	MigrationsDir string
	// SeedData also applies the sample auditorium migrations
	SeedData bool
}

func DefaultOptions() MigrateOptions {
	return MigrateOptions{
		MigrationsDir: "./migrations",
		SeedData:      false,
	}
}

// Runner handles database migrations
type Runner struct {
	bunDB    *bun.DB
	options  MigrateOptions
	log      *logger.Logger
	migrator *migrate.Migrate
}

func NewRunner(bunDB *bun.DB, opts MigrateOptions, log *logger.Logger) *Runner {
	return &Runner{bunDB: bunDB, options: opts, log: log}
}

// Initialize prepares the migration system
func (r *Runner) Initialize() error {
	if r.migrator != nil {
		return nil
	}
	driver, err := postgres.WithInstance(r.bunDB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	if _, err := os.Stat(r.options.MigrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", r.options.MigrationsDir)
	}

	migrator, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.options.MigrationsDir),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

// RunMigrations brings the schema up to date, and the seed data too when
// SeedData is set. A dirty version is forced clean first.
func (r *Runner) RunMigrations() error {
	if err := r.Initialize(); err != nil {
		return err
	}

	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		r.log.Warn("MIGRATE", fmt.Sprintf("Detected dirty migration at version %d, forcing", version))
		if err := r.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if r.options.SeedData {
		r.log.Info("MIGRATE", "Running all migrations including seed data")
		err = r.migrator.Up()
	} else if errors.Is(err, migrate.ErrNilVersion) || version < SchemaVersion {
		r.log.Info("MIGRATE", "Running schema migrations only")
		err = r.migrator.Migrate(SchemaVersion)
	} else {
		err = nil
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if version, _, err := r.migrator.Version(); err == nil {
		r.log.LogDatabase("MIGRATE", "schema_migrations", fmt.Sprintf("Current schema version: %d", version))
	}
	return nil
}

// MigrateDown rolls back all migrations
func (r *Runner) MigrateDown() error {
	if err := r.Initialize(); err != nil {
		return err
	}
	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateTo migrates up or down to a specific version
func (r *Runner) MigrateTo(version uint) error {
	if err := r.Initialize(); err != nil {
		return err
	}
	if err := r.migrator.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

// Version reports the applied version; zero when nothing ran yet.
func (r *Runner) Version() (uint, bool, error) {
	if err := r.Initialize(); err != nil {
		return 0, false, err
	}
	version, dirty, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close frees resources associated with the migrator
func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	sourceErr, databaseErr := r.migrator.Close()
	if sourceErr != nil {
		return fmt.Errorf("error closing migrator source: %w", sourceErr)
	}
	if databaseErr != nil {
		return fmt.Errorf("error closing migrator database: %w", databaseErr)
	}
	return nil
}
