package gorm_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

type customerRow struct {
	ID   string
	Name string
	City string
}

func (customerRow) TableName() string { return "customers" }

func setupMock(t *testing.T) (*gormadapter.GormDBAdapter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormadapter.NewGormLogger("SILENT")})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "mysql"}, "mock_db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn, mock
}

type singleResolver struct {
	conn database.DBConnection
}

func (r singleResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

func (r singleResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.conn, nil
}

func TestGormDBAdapter_ExecuteQueryPage(t *testing.T) {
	conn, mock := setupMock(t)

	rows := sqlmock.NewRows([]string{"id", "name", "city"}).
		AddRow("11", "Homer", "Springfield").
		AddRow("12", "Marge", "Springfield")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `customers` WHERE city = ? ORDER BY id") + ".*LIMIT.*OFFSET").
		WillReturnRows(rows)

	var page []customerRow
	err := conn.ExecuteQueryPage(context.Background(), &page, database.Query{
		Where:   "city = ?",
		Args:    []interface{}{"Springfield"},
		OrderBy: "id",
	}, 10, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Homer", page[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDBAdapter_CountQuery(t *testing.T) {
	conn, mock := setupMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `customers` WHERE city = ?")).
		WithArgs("Springfield").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))

	count, err := conn.CountQuery(context.Background(), &customerRow{}, database.Query{
		Where: "city = ?",
		Args:  []interface{}{"Springfield"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDBAdapter_UpdateWithVersionCondition(t *testing.T) {
	conn, mock := setupMock(t)

	mock.ExpectExec("UPDATE `customers` SET .* WHERE .*version.*").
		WillReturnResult(sqlmock.NewResult(0, 0))

	row := &customerRow{ID: "1", Name: "Homer", City: "Springfield"}
	affected, err := conn.ExecuteUpdate(context.Background(), row, "UPDATE", "customers", map[string]interface{}{"version": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDBAdapter_UnsupportedOperation(t *testing.T) {
	conn, _ := setupMock(t)
	_, err := conn.ExecuteUpdate(context.Background(), &customerRow{}, "MERGE", "customers", nil)
	assert.Error(t, err)
}

func TestGormDBAdapter_IsTableNotExistError(t *testing.T) {
	conn, _ := setupMock(t)
	assert.True(t, conn.IsTableNotExistError(errors.New("no such table: batch_job_instance")))
	assert.True(t, conn.IsTableNotExistError(errors.New(`ERROR: relation "batch_job_instance" does not exist`)))
	assert.True(t, conn.IsTableNotExistError(errors.New("Error 1146: Table 'db.batch_job_instance' doesn't exist")))
	assert.False(t, conn.IsTableNotExistError(errors.New("duplicate key")))
	assert.False(t, conn.IsTableNotExistError(nil))
}

func TestGormTransactionManager_CommitRunsCallbacks(t *testing.T) {
	conn, mock := setupMock(t)
	tm := gormadapter.NewGormTransactionManager(singleResolver{conn: conn}, "mock_db")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `customers`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	txn, err := tm.Begin(context.Background())
	require.NoError(t, err)
	called := false
	txn.AfterCommit(func() { called = true })

	affected, err := txn.ExecuteUpsert(context.Background(), &customerRow{ID: "1", Name: "Homer"}, "customers", []string{"id"}, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.False(t, called)

	require.NoError(t, tm.Commit(txn))
	assert.True(t, called)
	assert.Error(t, tm.Commit(txn), "a finished transaction cannot commit again")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTransactionManager_RollbackDiscardsCallbacks(t *testing.T) {
	conn, mock := setupMock(t)
	tm := gormadapter.NewGormTransactionManager(singleResolver{conn: conn}, "mock_db")

	mock.ExpectBegin()
	mock.ExpectRollback()

	txn, err := tm.Begin(context.Background())
	require.NoError(t, err)
	called := false
	txn.AfterCommit(func() { called = true })

	require.NoError(t, tm.Rollback(txn))
	require.NoError(t, tm.Rollback(txn))
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTransactionManager_RejectsForeignTx(t *testing.T) {
	conn, _ := setupMock(t)
	tm := gormadapter.NewGormTransactionManager(singleResolver{conn: conn}, "mock_db")
	assert.Error(t, tm.Commit(&tx.NoopTx{}))
	assert.Error(t, tm.Rollback(&tx.NoopTx{}))
}
