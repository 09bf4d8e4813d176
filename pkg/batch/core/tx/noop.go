package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoDatabase is returned by the write operations of a NoopTx.
var ErrNoDatabase = errors.New("no database is bound to this transaction")

// NoopTx is a transaction without a database. It only orders AfterCommit callbacks,
// which is what the in-memory job repository relies on to apply checkpoints atomically.
type NoopTx struct {
	Callbacks
	done bool
}

// ExecuteUpdate implements TxExecutor.
func (t *NoopTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return 0, ErrNoDatabase
}

// ExecuteUpsert implements TxExecutor.
func (t *NoopTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return 0, ErrNoDatabase
}

// Savepoint implements Tx.
func (t *NoopTx) Savepoint(name string) error { return nil }

// RollbackToSavepoint implements Tx.
func (t *NoopTx) RollbackToSavepoint(name string) error { return nil }

// NoopTransactionManager hands out NoopTx values.
type NoopTransactionManager struct{}

// NewNoopTransactionManager creates a NoopTransactionManager.
func NewNoopTransactionManager() *NoopTransactionManager {
	return &NoopTransactionManager{}
}

// Begin implements TransactionManager.
func (m *NoopTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &NoopTx{}, nil
}

// Commit implements TransactionManager.
func (m *NoopTransactionManager) Commit(t Tx) error {
	n, ok := t.(*NoopTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *tx.NoopTx, got %T", t)
	}
	if n.done {
		return errors.New("transaction already finished")
	}
	n.done = true
	n.RunAfterCommit()
	return nil
}

// Rollback implements TransactionManager.
func (m *NoopTransactionManager) Rollback(t Tx) error {
	n, ok := t.(*NoopTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *tx.NoopTx, got %T", t)
	}
	if n.done {
		return nil
	}
	n.done = true
	n.Discard()
	return nil
}
