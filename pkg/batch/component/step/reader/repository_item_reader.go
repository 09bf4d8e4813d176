package reader

import (
	"context"
	"fmt"
	"strings"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Sort orders the results of a PagedFinder.
type Sort struct {
	Property  string
	Direction Direction
}

// String returns the ORDER BY form of s, e.g. "last_name ASC".
func (s Sort) String() string {
	return fmt.Sprintf("%s %s", s.Property, s.Direction)
}

// Validate reports a ConfigurationError for an empty property or an unknown direction.
func (s Sort) Validate() error {
	if strings.TrimSpace(s.Property) == "" {
		return exception.NewConfigurationError("repository_reader", "a sort property is required", nil)
	}
	switch s.Direction {
	case Asc, Desc:
		return nil
	default:
		return exception.NewConfigurationError("repository_reader", fmt.Sprintf("invalid sort direction %q", s.Direction), nil)
	}
}

// PageRequest selects one page of a sorted query. Number is 0-based.
type PageRequest struct {
	Number int
	Size   int
	Sort   Sort
}

// Offset returns the index of the first item of the page.
func (p PageRequest) Offset() int {
	return p.Number * p.Size
}

// Page is one page of results.
type Page[T any] struct {
	Content []T
	// TotalElements counts the matches across all pages.
	TotalElements int64
}

// PagedFinder is a typed, sorted, paged repository query. args are the finder's own
// arguments, such as the city of a find-by-city query.
type PagedFinder[T any] func(ctx context.Context, args []interface{}, page PageRequest) (Page[T], error)

// RepositoryItemReader reads the results of a PagedFinder page by page.
// It stops at the first short page or once TotalElements items have been read.
type RepositoryItemReader[T any] struct {
	finder PagedFinder[T]
	args   []interface{}
	sort   Sort
	*pager[T]
}

var _ port.ItemReader[any] = (*RepositoryItemReader[any])(nil)

// NewRepositoryItemReader creates a RepositoryItemReader. sort is mandatory: paging an
// unordered result is not restartable.
func NewRepositoryItemReader[T any](name string, finder PagedFinder[T], args []interface{}, sort Sort, pageSize int, opts ...Option[T]) (*RepositoryItemReader[T], error) {
	if name == "" {
		return nil, exception.NewConfigurationError("repository_reader", "reader name is required", nil)
	}
	if finder == nil {
		return nil, exception.NewConfigurationError(name, "a PagedFinder is required", nil)
	}
	if err := sort.Validate(); err != nil {
		return nil, err
	}
	r := &RepositoryItemReader[T]{finder: finder, args: append([]interface{}(nil), args...), sort: sort}
	r.pager = newPager(name, pageSize, r.fetchPage, opts)
	return r, nil
}

func (r *RepositoryItemReader[T]) fetchPage(ctx context.Context, number, size int) ([]T, int64, error) {
	page, err := r.finder(ctx, r.args, PageRequest{Number: number, Size: size, Sort: r.sort})
	if err != nil {
		return nil, -1, err
	}
	return page.Content, page.TotalElements, nil
}

// Sort returns the order of the reader.
func (r *RepositoryItemReader[T]) Sort() Sort {
	return r.sort
}

// Open implements port.ItemStream.
func (r *RepositoryItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.open(ec)
	logger.Debugf("RepositoryItemReader '%s' opened (page size %d, sort %s).", r.name, r.pageSize, r.sort)
	return nil
}

// Read implements port.ItemReader.
func (r *RepositoryItemReader[T]) Read(ctx context.Context) (T, error) {
	return r.read(ctx)
}

// Close implements port.ItemStream.
func (r *RepositoryItemReader[T]) Close(ctx context.Context) error {
	r.close()
	return nil
}

// GetExecutionContext implements port.ItemStream.
func (r *RepositoryItemReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return r.executionContext(), nil
}
