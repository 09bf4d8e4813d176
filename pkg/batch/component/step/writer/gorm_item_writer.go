package writer

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// GormItemWriter upserts the items of a chunk into a table through the chunk's transaction,
// so the rows and the checkpoint commit together. Re-delivered chunks update the same
// rows, keyed by the conflict columns.
type GormItemWriter[T any] struct {
	name            string
	tableName       string
	conflictColumns []string
	updateColumns   []string
	bulkSize        int
}

var _ port.ItemWriter[any] = (*GormItemWriter[any])(nil)

// NewGormItemWriter creates a GormItemWriter.
//
// Parameters:
//   name: Writer name, used in logs and errors.
//   tableName: Target table. Empty means the table of T.
//   conflictColumns: Columns identifying a row, typically the primary key.
//   updateColumns: Columns replaced on conflict. Empty means existing rows are kept.
//   bulkSize: Rows per INSERT statement. Zero or less writes the whole chunk at once.
func NewGormItemWriter[T any](name, tableName string, conflictColumns, updateColumns []string, bulkSize int) (*GormItemWriter[T], error) {
	if name == "" {
		return nil, exception.NewConfigurationError("gorm_writer", "writer name is required", nil)
	}
	if len(conflictColumns) == 0 {
		return nil, exception.NewConfigurationError(name, "conflict columns are required for an idempotent upsert", nil)
	}
	return &GormItemWriter[T]{
		name:            name,
		tableName:       tableName,
		conflictColumns: append([]string(nil), conflictColumns...),
		updateColumns:   append([]string(nil), updateColumns...),
		bulkSize:        bulkSize,
	}, nil
}

// TableName returns the target table.
func (w *GormItemWriter[T]) TableName() string {
	return w.tableName
}

// Open implements port.ItemStream.
func (w *GormItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	logger.Debugf("GormItemWriter '%s' opened (table %q).", w.name, w.tableName)
	return nil
}

// Write implements port.ItemWriter.
func (w *GormItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if t == nil {
		return exception.NewSinkWriteError(w.name, "a transaction is required", nil)
	}
	size := w.bulkSize
	if size <= 0 {
		size = len(items)
	}
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		if _, err := t.ExecuteUpsert(ctx, &batch, w.tableName, w.conflictColumns, w.updateColumns); err != nil {
			return exception.NewSinkWriteError(w.name, fmt.Sprintf("failed to upsert rows %d-%d", start, end-1), err)
		}
	}
	logger.Debugf("GormItemWriter '%s': upserted %d rows.", w.name, len(items))
	return nil
}

// Close implements port.ItemStream.
func (w *GormItemWriter[T]) Close(ctx context.Context) error {
	return nil
}

// GetExecutionContext implements port.ItemStream. The table is the state.
func (w *GormItemWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return nil, port.ErrExecutionContextNotSupported
}
