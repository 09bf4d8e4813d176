package test

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

var sqliteSeq atomic.Int64

// NewSQLiteConnection opens a private in-memory SQLite database registered under name and
// closes it when the test ends. models are auto-migrated.
func NewSQLiteConnection(t *testing.T, name string, models ...interface{}) *gormadapter.GormDBAdapter {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.Adapter.Database[name] = map[string]interface{}{
		"type":     "sqlite",
		"database": fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, sqliteSeq.Add(1)),
	}
	provider := sqlite.NewProvider(cfg)
	t.Cleanup(func() { _ = provider.CloseAll() })

	conn, err := provider.GetConnection(name)
	require.NoError(t, err)
	adapter, ok := conn.(*gormadapter.GormDBAdapter)
	require.True(t, ok, "sqlite provider returned %T", conn)
	if len(models) > 0 {
		require.NoError(t, adapter.GetGormDB().AutoMigrate(models...))
	}
	return adapter
}

