// Package item provides general-purpose item processors.
package item

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// PassThroughItemProcessor is a [port.ItemProcessor] that returns the input item unchanged.
type PassThroughItemProcessor[T any] struct{}

// NewPassThroughItemProcessor creates a [PassThroughItemProcessor].
func NewPassThroughItemProcessor[T any]() *PassThroughItemProcessor[T] {
	return &PassThroughItemProcessor[T]{}
}

// Process returns item as is.
func (p *PassThroughItemProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	logger.Debugf("PassThroughItemProcessor: Processing item: %+v", item)
	return item, nil
}

var _ port.ItemProcessor[string, string] = (*PassThroughItemProcessor[string])(nil)

// ItemProcessorFunc adapts a plain function to [port.ItemProcessor].
// Returning a nil output filters the item.
type ItemProcessorFunc[I, O any] func(ctx context.Context, item I) (O, error)

// Process calls f.
func (f ItemProcessorFunc[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

// NewFilteringItemProcessor returns a processor that keeps the items for which keep returns true.
// Filtered items come out as nil, so T must be a pointer, slice, map or interface type.
func NewFilteringItemProcessor[T any](keep func(T) bool) ItemProcessorFunc[T, T] {
	return func(ctx context.Context, item T) (T, error) {
		if keep(item) {
			return item, nil
		}
		var zero T
		return zero, nil
	}
}
