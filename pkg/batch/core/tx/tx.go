// Package tx abstracts the transaction that brackets every chunk: the chunk's write
// and its checkpoint save either commit together or roll back together.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor defines the write operations executable within a transaction.
type TxExecutor interface {
	// ExecuteUpdate performs CREATE, UPDATE or DELETE on model. query holds equality conditions.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert inserts model, updating updateColumns on a conflict over conflictColumns.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
}

// Tx is an ongoing transaction.
type Tx interface {
	TxExecutor

	Savepoint(name string) error
	RollbackToSavepoint(name string) error

	// AfterCommit registers fn to run once the transaction has committed.
	// Registered callbacks are discarded on rollback.
	AfterCommit(fn func())
}

// TransactionManager begins, commits and rolls back transactions.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

type txKey struct{}

// WithTx returns a context carrying t. Repositories use the carried transaction for their writes.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

// FromContext returns the transaction carried by ctx.
func FromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txKey{}).(Tx)
	return t, ok
}

// Callbacks collects AfterCommit functions. Tx implementations embed it.
type Callbacks struct {
	fns []func()
}

// AfterCommit implements Tx.
func (c *Callbacks) AfterCommit(fn func()) {
	c.fns = append(c.fns, fn)
}

// RunAfterCommit runs and clears the registered callbacks.
func (c *Callbacks) RunAfterCommit() {
	fns := c.fns
	c.fns = nil
	for _, fn := range fns {
		fn()
	}
}

// Discard clears the registered callbacks without running them.
func (c *Callbacks) Discard() {
	c.fns = nil
}
