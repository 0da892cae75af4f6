package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

var (
	ErrNilDatabase = errors.New("migration database handle is required")
	ErrDirtySchema = errors.New("schema is dirty")
)

// Status reports the schema version before and after a run.
type Status struct {
	From uint
	To   uint
}

// Applied reports whether the run moved the schema forward.
func (s Status) Applied() bool {
	return s.To != s.From
}

// RunMigrations applies the embedded postgres schema. A dirty schema left by
// a failed run is refused and must be repaired with `migrate force`.
func RunMigrations(db *sql.DB) (Status, error) {
	if db == nil {
		return Status{}, ErrNilDatabase
	}

	src, err := embeddedSource()
	if err != nil {
		return Status{}, err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return Status{}, fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return Status{}, fmt.Errorf("create migrator: %w", err)
	}
	// migrator.Close would close the shared *sql.DB.

	var status Status
	status.From, err = currentVersion(migrator)
	if err != nil {
		return status, err
	}

	if upErr := migrator.Up(); upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return status, fmt.Errorf("apply migrations: %w", upErr)
	}

	status.To, err = currentVersion(migrator)
	return status, err
}

// LatestVersion returns the highest version shipped in the embedded schema.
func LatestVersion() (uint, error) {
	src, err := embeddedSource()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("read first migration: %w", err)
	}
	for {
		next, err := src.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read migration after %d: %w", version, err)
		}
		version = next
	}
}

func embeddedSource() (source.Driver, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return src, nil
}

func currentVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("%w at version %d", ErrDirtySchema, version)
	}
	return version, nil
}
