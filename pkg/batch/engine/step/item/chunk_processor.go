// Package item implements chunk-oriented steps: items are read one at a time, grouped
// into chunks of at most the commit interval, processed, and written together with the
// step's checkpoint in a single transaction.
package item

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Step counters mirrored into the checkpoint.
const (
	KeyReadCount   = "step.read.count"
	KeyWriteCount  = "step.write.count"
	KeyFilterCount = "step.filter.count"
	KeyCommitCount = "step.commit.count"
)

// ChunkResult describes one pass of ChunkProcessor.ProcessChunk.
type ChunkResult struct {
	ReadCount   int
	FilterCount int
	WriteCount  int
	// EndOfStream is set when the reader reported ErrNoMoreItems during the pass.
	EndOfStream bool
}

// Params holds the collaborators of a chunk step.
type Params[I, O any] struct {
	Name           string
	Reader         port.ItemReader[I]
	Processor      port.ItemProcessor[I, O]
	Writer         port.ItemWriter[O]
	CommitInterval int

	JobRepository repository.JobRepository
	TxManager     tx.TransactionManager

	StepListeners  []port.StepExecutionListener
	ChunkListeners []port.ChunkListener
	ReadListeners  []port.ItemReadListener
	WriteListeners []port.ItemWriteListener

	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

func (p *Params[I, O]) validate() error {
	switch {
	case p.Name == "":
		return exception.NewConfigurationError("chunk_step", "step name is required", nil)
	case p.Reader == nil:
		return exception.NewConfigurationError(p.Name, "an ItemReader is required", nil)
	case p.Processor == nil:
		return exception.NewConfigurationError(p.Name, "an ItemProcessor is required", nil)
	case p.Writer == nil:
		return exception.NewConfigurationError(p.Name, "an ItemWriter is required", nil)
	case p.CommitInterval < 1:
		return exception.NewConfigurationError(p.Name, fmt.Sprintf("commit interval must be positive, got %d", p.CommitInterval), nil)
	case p.JobRepository == nil:
		return exception.NewConfigurationError(p.Name, "a JobRepository is required", nil)
	}
	if p.TxManager == nil {
		p.TxManager = tx.NewNoopTransactionManager()
	}
	if p.MetricRecorder == nil {
		p.MetricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if p.Tracer == nil {
		p.Tracer = metrics.NewNoOpTracer()
	}
	return nil
}

// ChunkProcessor runs one chunk at a time. The checkpoint held in the StepExecution's
// ExecutionContext advances only when the chunk's transaction commits.
type ChunkProcessor[I, O any] struct {
	p Params[I, O]
}

// NewChunkProcessor validates p and creates a ChunkProcessor.
func NewChunkProcessor[I, O any](p Params[I, O]) (*ChunkProcessor[I, O], error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &ChunkProcessor[I, O]{p: p}, nil
}

// CommitInterval returns the maximum chunk size.
func (c *ChunkProcessor[I, O]) CommitInterval() int {
	return c.p.CommitInterval
}

// ProcessChunk reads up to the commit interval, processes the items and writes the
// survivors together with the checkpoint.
//
// A pass that reads nothing returns EndOfStream without opening a transaction.
// A failed write, checkpoint save or commit rolls the transaction back, restores the
// counters and checkpoint of se, increments its RollbackCount and returns a SinkWriteError.
func (c *ChunkProcessor[I, O]) ProcessChunk(ctx context.Context, se *model.StepExecution) (ChunkResult, error) {
	var result ChunkResult
	name := c.p.Name

	for _, l := range c.p.ChunkListeners {
		l.BeforeChunk(ctx, se)
	}

	items := make([]I, 0, c.p.CommitInterval)
	for len(items) < c.p.CommitInterval {
		it, err := c.p.Reader.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			result.EndOfStream = true
			break
		}
		if err != nil {
			for _, l := range c.p.ReadListeners {
				l.OnReadError(ctx, err)
			}
			c.p.Tracer.RecordError(ctx, "reader", err)
			return result, asSourceReadError(name, err)
		}
		items = append(items, it)
	}
	result.ReadCount = len(items)
	if len(items) == 0 {
		return result, nil
	}
	c.p.MetricRecorder.RecordItemRead(ctx, name, len(items))

	outputs := make([]O, 0, len(items))
	for _, it := range items {
		out, err := c.p.Processor.Process(ctx, it)
		if err != nil {
			c.p.Tracer.RecordError(ctx, "processor", err)
			if exception.IsBatchError(err) {
				return result, err
			}
			return result, exception.NewBatchError(name, "item processing failed", err, false, false)
		}
		if isNilItem(out) {
			result.FilterCount++
			continue
		}
		outputs = append(outputs, out)
	}
	if result.FilterCount > 0 {
		c.p.MetricRecorder.RecordItemFilter(ctx, name, result.FilterCount)
	}

	snapshot := takeSnapshot(se)
	start := time.Now()
	if err := c.writeAndCheckpoint(ctx, se, result, outputs); err != nil {
		snapshot.restore(se)
		se.RollbackCount++

		wrapped := exception.NewSinkWriteError(name, fmt.Sprintf("chunk %d failed and was rolled back", se.CommitCount+1), err)
		c.notifyWriteError(ctx, outputs, wrapped)
		for _, l := range c.p.ChunkListeners {
			l.AfterChunkError(ctx, se, wrapped)
		}
		c.p.Tracer.RecordError(ctx, "writer", wrapped)
		c.p.MetricRecorder.RecordChunkRollback(ctx, name, exception.Kind(wrapped))
		logger.Warnf("ChunkStep '%s': chunk rolled back after %d items read: %v", name, len(items), err)
		return result, wrapped
	}
	result.WriteCount = len(outputs)

	c.p.MetricRecorder.RecordItemWrite(ctx, name, len(outputs))
	c.p.MetricRecorder.RecordChunkCommit(ctx, name, len(outputs))
	c.p.MetricRecorder.RecordDuration(ctx, "chunk_write", time.Since(start), map[string]string{"step": name})
	for _, l := range c.p.ChunkListeners {
		l.AfterChunk(ctx, se)
	}
	logger.Debugf("ChunkStep '%s': committed chunk %d (read=%d, filtered=%d, written=%d).",
		name, se.CommitCount, result.ReadCount, result.FilterCount, result.WriteCount)
	return result, nil
}

// writeAndCheckpoint runs the write, the checkpoint save and the step update in one transaction.
func (c *ChunkProcessor[I, O]) writeAndCheckpoint(ctx context.Context, se *model.StepExecution, result ChunkResult, outputs []O) (err error) {
	t, err := c.p.TxManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin chunk transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := c.p.TxManager.Rollback(t); rbErr != nil {
				logger.Errorf("ChunkStep '%s': rollback failed: %v", c.p.Name, rbErr)
			}
		}
	}()
	txCtx := tx.WithTx(ctx, t)

	if len(outputs) > 0 {
		if err := c.p.Writer.Write(txCtx, t, outputs); err != nil {
			return err
		}
	}

	se.ReadCount += result.ReadCount
	se.FilterCount += result.FilterCount
	se.WriteCount += len(outputs)
	se.CommitCount++
	if err := c.updateCheckpoint(txCtx, se); err != nil {
		return err
	}

	if err := c.p.JobRepository.SaveCheckpointData(txCtx, model.NewCheckpointData(se.ID, se.ExecutionContext)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if err := c.p.JobRepository.UpdateStepExecution(txCtx, se); err != nil {
		return fmt.Errorf("failed to update step execution: %w", err)
	}

	committed = true
	if err := c.p.TxManager.Commit(t); err != nil {
		return fmt.Errorf("failed to commit chunk: %w", err)
	}
	return nil
}

// updateCheckpoint merges the reader and writer state and the counters into se.ExecutionContext.
func (c *ChunkProcessor[I, O]) updateCheckpoint(ctx context.Context, se *model.StepExecution) error {
	ec := se.ExecutionContext.Copy()
	for _, stream := range []port.ItemStream{c.p.Reader, c.p.Writer} {
		state, err := stream.GetExecutionContext(ctx)
		if errors.Is(err, port.ErrExecutionContextNotSupported) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to collect checkpoint state: %w", err)
		}
		ec.Merge(state)
	}
	ec.Put(KeyReadCount, se.ReadCount)
	ec.Put(KeyWriteCount, se.WriteCount)
	ec.Put(KeyFilterCount, se.FilterCount)
	ec.Put(KeyCommitCount, se.CommitCount)
	se.ExecutionContext = ec
	return nil
}

func (c *ChunkProcessor[I, O]) notifyWriteError(ctx context.Context, outputs []O, err error) {
	if len(c.p.WriteListeners) == 0 {
		return
	}
	items := make([]interface{}, len(outputs))
	for i, o := range outputs {
		items[i] = o
	}
	for _, l := range c.p.WriteListeners {
		l.OnWriteError(ctx, items, err)
	}
}

// stepSnapshot is the part of a StepExecution a failed chunk must not change.
type stepSnapshot struct {
	readCount, writeCount, filterCount, commitCount int
	version                                          int
	ec                                               model.ExecutionContext
}

func takeSnapshot(se *model.StepExecution) stepSnapshot {
	return stepSnapshot{
		readCount:   se.ReadCount,
		writeCount:  se.WriteCount,
		filterCount: se.FilterCount,
		commitCount: se.CommitCount,
		version:     se.Version,
		ec:          se.ExecutionContext.Copy(),
	}
}

func (s stepSnapshot) restore(se *model.StepExecution) {
	se.ReadCount = s.readCount
	se.WriteCount = s.writeCount
	se.FilterCount = s.filterCount
	se.CommitCount = s.commitCount
	se.Version = s.version
	se.ExecutionContext = s.ec
}

// asSourceReadError keeps classified errors and wraps anything else as a SourceReadError.
func asSourceReadError(stepName string, err error) error {
	if exception.Kind(err) != exception.UnknownError {
		return err
	}
	return exception.NewSourceReadError(stepName, "failed to read item", err)
}

// isNilItem reports whether a processor output means "filtered".
func isNilItem(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
