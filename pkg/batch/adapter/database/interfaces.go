// Package database defines the database connection abstraction used by the job
// repository, the paging readers and the table writers.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
)

// Query is a parameterized SELECT fragment. Where uses '?' placeholders bound to Args.
type Query struct {
	// Table overrides the table inferred from the target slice.
	Table   string
	Where   string
	Args    []interface{}
	OrderBy string
}

// PageQueryExecutor fetches one page of a Query.
type PageQueryExecutor interface {
	// ExecuteQueryPage loads at most limit rows starting at offset into target, a pointer to a slice.
	ExecuteQueryPage(ctx context.Context, target interface{}, query Query, offset, limit int) error
	// CountQuery counts the rows matched by query.
	CountQuery(ctx context.Context, model interface{}, query Query) (int64, error)
}

// DBExecutor defines the read and write operations available on a connection and inside a transaction.
type DBExecutor interface {
	PageQueryExecutor

	// ExecuteUpdate performs CREATE, UPDATE or DELETE on model.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert inserts model, updating updateColumns on a conflict over conflictColumns.
	// An empty updateColumns means DO NOTHING.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// ExecuteQuery loads the rows matching the equality conditions of query.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// ExecuteQueryAdvanced is ExecuteQuery with ordering and a row limit (0 = none).
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error

	// Count counts the rows matching the equality conditions of query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)

	// Pluck loads the distinct values of column into target.
	Pluck(ctx context.Context, model interface{}, column string, target interface{}, query map[string]interface{}) error
}

// DBConnection is a named database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection
	DBExecutor

	// IsTableNotExistError reports whether err means a missing table.
	IsTableNotExistError(err error) bool
	// RefreshConnection pings the connection pool.
	RefreshConnection(ctx context.Context) error
	// Config returns the settings the connection was opened with.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB, used by schema migrations.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a healthy connection by name.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	GetConnection(name string) (DBConnection, error)
	CloseAll() error
	Type() string
	// ForceReconnect closes and reopens the named connection.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the fx value group all DBProvider implementations are contributed to.
const DBProviderGroup = "db_providers"
