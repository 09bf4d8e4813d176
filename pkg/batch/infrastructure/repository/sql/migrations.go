package sql

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/migration"
)

//go:embed resource
var rawMigrationFS embed.FS

// MigrationFS returns the metadata schema migrations, one directory per database type.
func MigrationFS() fs.FS {
	sub, err := fs.Sub(rawMigrationFS, "resource")
	if err != nil {
		panic(fmt.Sprintf("metadata migrations not embedded: %v", err))
	}
	return sub
}

// MigrationPath returns the migration directory for a connection type.
func MigrationPath(dbType string) string {
	if dbType == "redshift" {
		return "postgres"
	}
	return dbType
}

// Migrate creates or upgrades the metadata tables on conn.
func Migrate(ctx context.Context, conn database.DBConnection) error {
	return migration.NewMigrator(conn).Up(ctx, MigrationFS(), MigrationPath(conn.Type()), migration.FrameworkMigrationsTable)
}
