package reader

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// QueryProvider builds the query of a PagingItemReader from the parameters of a run.
type QueryProvider interface {
	// Validate checks the provider's own inputs. A failure is a ConfigurationError.
	Validate() error
	// CreateQuery returns the query to page through. Its OrderBy must give a stable order.
	CreateQuery(params model.JobParameters) (database.Query, error)
}

// PagingItemReader reads the rows of a query one page at a time through a
// database.PageQueryExecutor. Page n is fetched with OFFSET n*pageSize LIMIT pageSize.
type PagingItemReader[T any] struct {
	executor database.PageQueryExecutor
	query    database.Query
	*pager[T]
}

var _ port.ItemReader[any] = (*PagingItemReader[any])(nil)

// NewPagingItemReader creates a PagingItemReader. The provider is validated and its query
// built here, so a bad provider fails step setup with a ConfigurationError.
//
// Parameters:
//   name: Reader name, the prefix of its checkpoint keys.
//   executor: Connection the pages are fetched from.
//   provider: Source of the query.
//   params: Parameters of the run, handed to provider.CreateQuery.
//   pageSize: Rows per fetch. Zero or less means DefaultPageSize.
func NewPagingItemReader[T any](name string, executor database.PageQueryExecutor, provider QueryProvider, params model.JobParameters, pageSize int, opts ...Option[T]) (*PagingItemReader[T], error) {
	if name == "" {
		return nil, exception.NewConfigurationError("paging_reader", "reader name is required", nil)
	}
	if executor == nil {
		return nil, exception.NewConfigurationError(name, "a PageQueryExecutor is required", nil)
	}
	if provider == nil {
		return nil, exception.NewConfigurationError(name, "a QueryProvider is required", nil)
	}
	if err := provider.Validate(); err != nil {
		return nil, asConfigurationError(name, "query provider validation failed", err)
	}
	query, err := provider.CreateQuery(params)
	if err != nil {
		return nil, asConfigurationError(name, "failed to create query", err)
	}
	if query.OrderBy == "" {
		logger.Warnf("PagingItemReader '%s': query has no ORDER BY, page boundaries may be unstable.", name)
	}

	r := &PagingItemReader[T]{executor: executor, query: query}
	r.pager = newPager(name, pageSize, r.fetchPage, opts)
	return r, nil
}

func (r *PagingItemReader[T]) fetchPage(ctx context.Context, number, size int) ([]T, int64, error) {
	var rows []T
	if err := r.executor.ExecuteQueryPage(ctx, &rows, r.query, number*size, size); err != nil {
		return nil, -1, err
	}
	return rows, -1, nil
}

// Query returns the query built by the provider.
func (r *PagingItemReader[T]) Query() database.Query {
	return r.query
}

// PageSize returns the number of rows fetched per page.
func (r *PagingItemReader[T]) PageSize() int {
	return r.pageSize
}

// Open implements port.ItemStream.
func (r *PagingItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.open(ec)
	logger.Debugf("PagingItemReader '%s' opened (page size %d, where %q, order by %q).", r.name, r.pageSize, r.query.Where, r.query.OrderBy)
	return nil
}

// Read implements port.ItemReader.
func (r *PagingItemReader[T]) Read(ctx context.Context) (T, error) {
	return r.read(ctx)
}

// Close implements port.ItemStream.
func (r *PagingItemReader[T]) Close(ctx context.Context) error {
	r.close()
	return nil
}

// GetExecutionContext implements port.ItemStream.
func (r *PagingItemReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return r.executionContext(), nil
}

func asConfigurationError(name, message string, err error) error {
	if exception.Kind(err) == exception.ConfigurationError {
		return err
	}
	return exception.NewConfigurationError(name, fmt.Sprintf("%s: %v", message, exception.ExtractErrorMessage(err)), err)
}
