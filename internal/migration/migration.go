package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies every pending Postgres migration.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return withMigrator(ctx, db, func(migrator *migrate.Migrate) error {
		upErr := migrator.Up()
		if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", upErr)
		}
		return nil
	})
}

// RollbackMigrations reverts the given number of applied migrations.
func RollbackMigrations(ctx context.Context, db *sql.DB, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	return withMigrator(ctx, db, func(migrator *migrate.Migrate) error {
		downErr := migrator.Steps(-steps)
		if downErr != nil && !errors.Is(downErr, migrate.ErrNoChange) {
			return fmt.Errorf("rollback migrations: %w", downErr)
		}
		return nil
	})
}

// Version reports the applied schema version and whether the last run left it dirty.
func Version(ctx context.Context, db *sql.DB) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := withMigrator(ctx, db, func(migrator *migrate.Migrate) error {
		var versionErr error
		version, dirty, versionErr = migrator.Version()
		if errors.Is(versionErr, migrate.ErrNilVersion) {
			return nil
		}
		if versionErr != nil {
			return fmt.Errorf("read migration version: %w", versionErr)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

// withMigrator runs fn against a migrator bound to one dedicated connection taken from db.
// The connection goes back to db afterwards; db itself stays open.
func withMigrator(ctx context.Context, db *sql.DB, fn func(migrator *migrate.Migrate) error) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	migrations, err := Source()
	if err != nil {
		return err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = migrations.Close()
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = conn.Close()
		_ = migrations.Close()
		return fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", migrations, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		_ = migrations.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	runErr := fn(migrator)
	sourceErr, databaseErr := migrator.Close()
	if runErr != nil {
		return runErr
	}
	if sourceErr != nil {
		return fmt.Errorf("close migration source: %w", sourceErr)
	}
	if databaseErr != nil {
		return fmt.Errorf("release migration connection: %w", databaseErr)
	}
	return nil
}

// Source exposes the embedded migration files as a golang-migrate source.
func Source() (source.Driver, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	driver, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return driver, nil
}
