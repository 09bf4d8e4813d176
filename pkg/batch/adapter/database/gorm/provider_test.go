package gorm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func sqliteConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Surfin.Adapter.Database["metadata"] = map[string]interface{}{
		"type":     "sqlite",
		"database": "file:provider_test?mode=memory&cache=shared",
	}
	cfg.Surfin.Adapter.Database["warehouse"] = map[string]interface{}{
		"type": "postgres",
		"host": "localhost",
	}
	return cfg
}

func TestBaseProvider_CachesConnections(t *testing.T) {
	provider := sqlite.NewProvider(sqliteConfig())
	defer provider.CloseAll()

	first, err := provider.GetConnection("metadata")
	require.NoError(t, err)
	second, err := provider.GetConnection("metadata")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "sqlite", first.Type())
	assert.Equal(t, "metadata", first.Name())
	assert.NoError(t, first.RefreshConnection(context.Background()))

	reconnected, err := provider.ForceReconnect("metadata")
	require.NoError(t, err)
	assert.NotSame(t, first, reconnected)
}

func TestBaseProvider_ConfigErrors(t *testing.T) {
	provider := sqlite.NewProvider(sqliteConfig())

	_, err := provider.GetConnection("missing")
	assert.Error(t, err)

	_, err = provider.GetConnection("warehouse")
	assert.ErrorContains(t, err, "provider type mismatch")
}

func TestGormDBConnectionResolver_ResolvesByType(t *testing.T) {
	cfg := sqliteConfig()
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.GormDBConnectionResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})
	defer resolver.CloseAll()

	conn, err := resolver.ResolveDBConnection(context.Background(), "metadata")
	require.NoError(t, err)
	assert.Equal(t, "metadata", conn.Name())

	_, err = resolver.ResolveDBConnection(context.Background(), "warehouse")
	assert.ErrorContains(t, err, "DBProvider for type 'postgres' not found")
}

func TestConnectionStrings(t *testing.T) {
	dsn, err := mysql.ConnectionString(dbconfig.DatabaseConfig{
		Host: "db", User: "batch", Password: "p@ss", Database: "meta", Params: "charset=utf8mb4",
	})
	require.NoError(t, err)
	assert.Contains(t, dsn, "batch:p@ss@tcp(db:3306)/meta")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "multiStatements=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	pg := postgres.ConnectionString(dbconfig.DatabaseConfig{
		Host: "db", User: "batch", Password: "secret", Database: "meta", Schema: "batch",
	})
	assert.Equal(t, "host=db port=5432 user=batch password=secret dbname=meta sslmode=disable search_path=batch", pg)

	assert.Equal(t, "test.db?_busy_timeout=5000", sqlite.ConnectionString(dbconfig.DatabaseConfig{
		Database: "test.db", Params: "_busy_timeout=5000",
	}))
}

func TestNewGormLogger_LevelsDoNotPanic(t *testing.T) {
	for _, level := range []string{"", "silent", "ERROR", "WARN", "INFO", "DEBUG"} {
		assert.NotNil(t, gormadapter.NewGormLogger(level))
	}
	gormadapter.NewGormWriter().Printf("[%.3fms] %s", 1.5, "SELECT 1")
}
