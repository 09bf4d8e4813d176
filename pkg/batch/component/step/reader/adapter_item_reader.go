package reader

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ItemSupplier hands out items one at a time, typically from an existing service.
type ItemSupplier[T any] interface {
	// NextItem returns the next item. ok is false once the supplier is exhausted.
	NextItem(ctx context.Context) (item T, ok bool, err error)
}

// ItemSupplierFunc adapts a function to ItemSupplier.
type ItemSupplierFunc[T any] func(ctx context.Context) (T, bool, error)

// NextItem implements ItemSupplier.
func (f ItemSupplierFunc[T]) NextItem(ctx context.Context) (T, bool, error) {
	return f(ctx)
}

// AdapterItemReader turns an ItemSupplier into an ItemReader.
//
// The supplier has no cursor, so the checkpoint is the number of items consumed and a
// resumed reader discards that many items before reading.
type AdapterItemReader[T any] struct {
	name      string
	supplier  ItemSupplier[T]
	readCount int
	exhausted bool
	opened    bool
}

var _ port.ItemReader[any] = (*AdapterItemReader[any])(nil)

// NewAdapterItemReader creates an AdapterItemReader named name over supplier.
func NewAdapterItemReader[T any](name string, supplier ItemSupplier[T]) (*AdapterItemReader[T], error) {
	if name == "" {
		return nil, exception.NewConfigurationError("adapter_reader", "reader name is required", nil)
	}
	if supplier == nil {
		return nil, exception.NewConfigurationError(name, "an ItemSupplier is required", nil)
	}
	return &AdapterItemReader[T]{name: name, supplier: supplier}, nil
}

func (r *AdapterItemReader[T]) countKey() string {
	return r.name + "." + keyReadCount
}

// Open implements port.ItemStream. It skips the items consumed before the checkpoint.
func (r *AdapterItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.readCount, r.exhausted = 0, false
	r.opened = true

	skip, _ := ec.GetInt(r.countKey())
	for r.readCount < skip {
		_, ok, err := r.supplier.NextItem(ctx)
		if err != nil {
			return exception.NewSourceReadError(r.name, "failed to skip already processed items", err)
		}
		if !ok {
			logger.Warnf("AdapterItemReader '%s': supplier exhausted after %d of %d checkpointed items.", r.name, r.readCount, skip)
			r.exhausted = true
			break
		}
		r.readCount++
	}
	if skip > 0 {
		logger.Infof("AdapterItemReader '%s': resumed after %d items.", r.name, r.readCount)
	}
	return nil
}

// Read implements port.ItemReader.
func (r *AdapterItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if !r.opened {
		return zero, exception.NewSourceReadError(r.name, "reader is not open", nil)
	}
	if r.exhausted {
		return zero, port.ErrNoMoreItems
	}
	it, ok, err := r.supplier.NextItem(ctx)
	if err != nil {
		return zero, exception.NewSourceReadError(r.name, "supplier failed", err)
	}
	if !ok {
		r.exhausted = true
		return zero, port.ErrNoMoreItems
	}
	r.readCount++
	return it, nil
}

// Close implements port.ItemStream.
func (r *AdapterItemReader[T]) Close(ctx context.Context) error {
	r.opened = false
	return nil
}

// GetExecutionContext implements port.ItemStream.
func (r *AdapterItemReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(r.countKey(), r.readCount)
	return ec, nil
}
