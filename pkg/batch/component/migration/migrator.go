// Package migration applies versioned SQL migrations held in an fs.FS to a
// database.DBConnection with golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Fixed table names for migration tracking.
const (
	FrameworkMigrationsTable = "batch_framework_migrations"
	AppMigrationsTable       = "batch_app_migrations"
)

// Migrator handles database schema migrations.
type Migrator interface {
	// Up applies all pending migrations found under path. tableName tracks the applied versions.
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Down rolls back all applied migrations.
	Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Version returns the current version and whether the last migration left it dirty.
	Version(ctx context.Context, migrationFS fs.FS, path string, tableName string) (uint, bool, error)
}

type migrator struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator creates a Migrator for dbConn. The connection type picks the golang-migrate driver.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migrator{dbConn: dbConn, dbType: dbConn.Type()}
}

// databaseDriver wraps sqlDB in the golang-migrate driver of the connection type.
func (m *migrator) databaseDriver(sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres", "redshift":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *migrator) instance(migrationFS fs.FS, path string, tableName string) (*migrate.Migrate, error) {
	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.databaseDriver(sqlDB, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mInstance, nil
}

// run executes fn and asks golang-migrate to stop after the current migration when ctx is done.
// The instance is not closed: closing it would close the shared *sql.DB of the connection.
func (m *migrator) run(ctx context.Context, command string, migrationFS fs.FS, path string, tableName string, fn func(*migrate.Migrate) error) error {
	logger.Infof("Executing migration '%s' on '%s' (Path: %s, Table: %s)", command, m.dbConn.Name(), path, tableName)

	mInstance, err := m.instance(migrationFS, path, tableName)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mInstance.GracefulStop <- true
		case <-done:
		}
	}()

	if err := fn(mInstance); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if version, dirty, vErr := mInstance.Version(); vErr == nil {
			logger.Errorf("Migration '%s' failed at version %d (dirty: %t).", command, version, dirty)
		}
		return fmt.Errorf("migration failed for command '%s' (DB: %s, Path: %s): %w", command, m.dbType, path, err)
	}

	logger.Infof("Migration '%s' on '%s' completed.", command, m.dbConn.Name())
	return nil
}

// Up implements Migrator. Nothing to apply is not an error.
func (m *migrator) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(ctx, "up", migrationFS, path, tableName, func(mi *migrate.Migrate) error { return mi.Up() })
}

// Down implements Migrator.
func (m *migrator) Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(ctx, "down", migrationFS, path, tableName, func(mi *migrate.Migrate) error { return mi.Down() })
}

// Version implements Migrator. A database without migrations reports version 0.
func (m *migrator) Version(ctx context.Context, migrationFS fs.FS, path string, tableName string) (uint, bool, error) {
	mInstance, err := m.instance(migrationFS, path, tableName)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := mInstance.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
