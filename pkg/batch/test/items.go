package test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// SliceReaderIndexKey is the checkpoint key of SliceReader.
const SliceReaderIndexKey = "slice.index"

// SliceReader is a port.ItemReader over a fixed slice. Its checkpoint is the index of
// the next item. FailAt makes the Nth Read (1-based, counted across the reader's lifetime)
// fail with ReadErr.
type SliceReader[T any] struct {
	Items   []T
	FailAt  int
	ReadErr error

	index  int
	reads  int
	Opened bool
	Closed bool
}

// NewSliceReader creates a SliceReader over items.
func NewSliceReader[T any](items []T) *SliceReader[T] {
	return &SliceReader[T]{Items: items}
}

func (r *SliceReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.index = 0
	if i, ok := ec.GetInt(SliceReaderIndexKey); ok {
		r.index = i
	}
	r.Opened = true
	return nil
}

func (r *SliceReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	r.reads++
	if r.FailAt > 0 && r.reads == r.FailAt {
		if r.ReadErr != nil {
			return zero, r.ReadErr
		}
		return zero, errors.New("read failed")
	}
	if r.index >= len(r.Items) {
		return zero, port.ErrNoMoreItems
	}
	item := r.Items[r.index]
	r.index++
	return item, nil
}

func (r *SliceReader[T]) Close(ctx context.Context) error {
	r.Closed = true
	return nil
}

func (r *SliceReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(SliceReaderIndexKey, r.index)
	return ec, nil
}

// RecordingWriter is a port.ItemWriter that records committed chunks.
// Chunks become visible in Chunks only when the transaction commits, like a real store.
// FailOn maps a 1-based Write call number to the error that call returns.
type RecordingWriter[T any] struct {
	FailOn map[int]error

	mu     sync.Mutex
	calls  int
	Chunks [][]T
	Closed bool
}

// NewRecordingWriter creates a RecordingWriter.
func NewRecordingWriter[T any]() *RecordingWriter[T] {
	return &RecordingWriter[T]{FailOn: map[int]error{}}
}

func (w *RecordingWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

func (w *RecordingWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	w.mu.Lock()
	w.calls++
	call := w.calls
	w.mu.Unlock()

	if err, ok := w.FailOn[call]; ok {
		if err == nil {
			err = fmt.Errorf("write %d failed", call)
		}
		return err
	}
	chunk := append([]T(nil), items...)
	t.AfterCommit(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.Chunks = append(w.Chunks, chunk)
	})
	return nil
}

func (w *RecordingWriter[T]) Close(ctx context.Context) error {
	w.Closed = true
	return nil
}

func (w *RecordingWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return nil, port.ErrExecutionContextNotSupported
}

// ChunkSizes returns the size of every committed chunk in commit order.
func (w *RecordingWriter[T]) ChunkSizes() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	sizes := make([]int, len(w.Chunks))
	for i, c := range w.Chunks {
		sizes[i] = len(c)
	}
	return sizes
}

// Items returns all committed items in commit order.
func (w *RecordingWriter[T]) Items() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	var all []T
	for _, c := range w.Chunks {
		all = append(all, c...)
	}
	return all
}

var (
	_ port.ItemReader[int] = (*SliceReader[int])(nil)
	_ port.ItemWriter[int] = (*RecordingWriter[int])(nil)
)
