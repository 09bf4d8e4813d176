package reader

import (
	"context"

	"golang.org/x/time/rate"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// ThrottledItemReader caps the read rate of another reader.
type ThrottledItemReader[T any] struct {
	delegate port.ItemReader[T]
	limiter  *rate.Limiter
}

var _ port.ItemReader[any] = (*ThrottledItemReader[any])(nil)

// NewThrottledItemReader allows at most perSecond reads per second from delegate,
// with bursts of up to burst reads. A burst below 1 is raised to 1.
func NewThrottledItemReader[T any](delegate port.ItemReader[T], perSecond float64, burst int) *ThrottledItemReader[T] {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledItemReader[T]{
		delegate: delegate,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Open implements port.ItemStream.
func (r *ThrottledItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return r.delegate.Open(ctx, ec)
}

// Read waits for the limiter, then reads from the delegate.
func (r *ThrottledItemReader[T]) Read(ctx context.Context) (T, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		var zero T
		return zero, exception.NewSourceReadError("throttled_reader", "rate limiter wait failed", err)
	}
	return r.delegate.Read(ctx)
}

// Close implements port.ItemStream.
func (r *ThrottledItemReader[T]) Close(ctx context.Context) error {
	return r.delegate.Close(ctx)
}

// GetExecutionContext implements port.ItemStream.
func (r *ThrottledItemReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return r.delegate.GetExecutionContext(ctx)
}
