// Package writer provides the item sinks of chunk steps.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// LineItemWriter writes one line per item to an io.Writer, stdout by default.
// A chunk is written with a single Write call on the underlying writer.
type LineItemWriter[T any] struct {
	name   string
	out    io.Writer
	format func(T) string

	mu    sync.Mutex
	lines int
}

var _ port.ItemWriter[any] = (*LineItemWriter[any])(nil)

// LineOption configures a LineItemWriter.
type LineOption[T any] func(*LineItemWriter[T])

// WithOutput sets the destination of the lines.
func WithOutput[T any](out io.Writer) LineOption[T] {
	return func(w *LineItemWriter[T]) { w.out = out }
}

// WithFormat sets the function that renders an item. The default is fmt.Sprint.
func WithFormat[T any](format func(T) string) LineOption[T] {
	return func(w *LineItemWriter[T]) { w.format = format }
}

// NewLineItemWriter creates a LineItemWriter named name.
func NewLineItemWriter[T any](name string, opts ...LineOption[T]) *LineItemWriter[T] {
	w := &LineItemWriter[T]{
		name:   name,
		out:    os.Stdout,
		format: func(item T) string { return fmt.Sprint(item) },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open implements port.ItemStream.
func (w *LineItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

// Write implements port.ItemWriter.
func (w *LineItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, item := range items {
		buf.WriteString(w.format(item))
		buf.WriteByte('\n')
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return exception.NewSinkWriteError(w.name, fmt.Sprintf("failed to write %d lines", len(items)), err)
	}
	w.lines += len(items)
	logger.Debugf("LineItemWriter '%s': wrote %d lines.", w.name, len(items))
	return nil
}

// Lines returns the number of lines written so far.
func (w *LineItemWriter[T]) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Close implements port.ItemStream. The underlying writer is not closed.
func (w *LineItemWriter[T]) Close(ctx context.Context) error {
	logger.Debugf("LineItemWriter '%s' closed after %d lines.", w.name, w.Lines())
	return nil
}

// GetExecutionContext implements port.ItemStream. Lines cannot be taken back, so there is no state.
func (w *LineItemWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return nil, port.ErrExecutionContextNotSupported
}
