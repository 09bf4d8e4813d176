package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// GormTxAdapter implements tx.Tx on an open GORM transaction. Besides the
// write operations it exposes the read side of database.DBExecutor.
type GormTxAdapter struct {
	gormExecutor
	tx.Callbacks
	done bool
}

// Savepoint implements tx.Tx.
func (t *GormTxAdapter) Savepoint(name string) error {
	return t.db.SavePoint(name).Error
}

// RollbackToSavepoint implements tx.Tx.
func (t *GormTxAdapter) RollbackToSavepoint(name string) error {
	return t.db.RollbackTo(name).Error
}

// IsTableNotExistError reports whether err means a missing table.
func (t *GormTxAdapter) IsTableNotExistError(err error) bool {
	return isTableNotExistError(err)
}

// GormTransactionManager implements tx.TransactionManager on one named connection.
// The connection is resolved on every Begin so a reconnected pool is picked up.
type GormTransactionManager struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

// NewGormTransactionManager creates a GormTransactionManager for the connection dbName.
func NewGormTransactionManager(dbResolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{dbResolver: dbResolver, dbName: dbName}
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	conn, err := m.dbResolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB connection '%s' for transaction: %w", m.dbName, err)
	}
	adapter, ok := conn.(*GormDBAdapter)
	if !ok {
		return nil, fmt.Errorf("connection '%s' is %T, not a GORM connection", m.dbName, conn)
	}

	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = opts[0]
	}
	gormTx := adapter.GetGormDB().WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction on '%s': %w", m.dbName, gormTx.Error)
	}
	return &GormTxAdapter{gormExecutor: gormExecutor{db: gormTx, inTx: true}}, nil
}

// Commit implements tx.TransactionManager. AfterCommit callbacks run once the commit succeeded.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gormTx, err := asGormTx(t)
	if err != nil {
		return err
	}
	if gormTx.done {
		return fmt.Errorf("transaction on '%s' already finished", m.dbName)
	}
	gormTx.done = true
	if err := gormTx.db.Commit().Error; err != nil {
		gormTx.Discard()
		return err
	}
	gormTx.RunAfterCommit()
	return nil
}

// Rollback implements tx.TransactionManager. Rolling back a finished transaction is a no-op.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gormTx, err := asGormTx(t)
	if err != nil {
		return err
	}
	gormTx.Discard()
	if gormTx.done {
		return nil
	}
	gormTx.done = true
	return gormTx.db.Rollback().Error
}

func asGormTx(t tx.Tx) (*GormTxAdapter, error) {
	gormTx, ok := t.(*GormTxAdapter)
	if !ok {
		return nil, fmt.Errorf("invalid transaction type: expected *gorm.GormTxAdapter, got %T", t)
	}
	return gormTx, nil
}

var (
	_ tx.Tx                 = (*GormTxAdapter)(nil)
	_ database.DBExecutor   = (*GormTxAdapter)(nil)
	_ tx.TransactionManager = (*GormTransactionManager)(nil)
)
