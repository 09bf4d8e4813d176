package item

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ChunkStep is a port.Step that drives a ChunkProcessor until the reader is exhausted,
// a chunk fails, or a stop is requested.
//
// A stop request is the cancellation of the context passed to Execute. It is honoured
// between chunks only: a chunk that has started always runs to commit or rollback.
type ChunkStep[I, O any] struct {
	p     Params[I, O]
	chunk *ChunkProcessor[I, O]
}

var _ port.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep validates p and creates a ChunkStep.
func NewChunkStep[I, O any](p Params[I, O]) (*ChunkStep[I, O], error) {
	chunk, err := NewChunkProcessor(p)
	if err != nil {
		return nil, err
	}
	return &ChunkStep[I, O]{p: chunk.p, chunk: chunk}, nil
}

// StepName implements port.Step.
func (s *ChunkStep[I, O]) StepName() string {
	return s.p.Name
}

// CommitInterval returns the chunk size of the step.
func (s *ChunkStep[I, O]) CommitInterval() int {
	return s.p.CommitInterval
}

// Execute implements port.Step.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	name := s.p.Name
	ctx, endSpan := s.p.Tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)
	// Chunk work must not be interrupted halfway; cancellation of ctx is polled between chunks.
	work := context.WithoutCancel(ctx)

	logger.Infof("ChunkStep '%s' executing (StepExecution ID: %s, commit interval: %d).", name, stepExecution.ID, s.p.CommitInterval)
	stepExecution.MarkAsRunning()
	if err := s.p.JobRepository.UpdateStepExecution(work, stepExecution); err != nil {
		err = exception.NewBatchError(name, "failed to mark StepExecution as RUNNING", err, false, false)
		stepExecution.MarkAsFailed(err)
		return err
	}
	s.p.MetricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.p.StepListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	stopped, stepErr := s.run(ctx, work, stepExecution)

	switch {
	case stepErr != nil:
		logger.Errorf("ChunkStep '%s' failed: %v", name, stepErr)
		s.p.Tracer.RecordError(ctx, name, stepErr)
		stepExecution.MarkAsFailed(stepErr)
	case stopped:
		logger.Infof("ChunkStep '%s' stopped after %d committed chunks.", name, stepExecution.CommitCount)
		stepExecution.MarkAsStopped()
	default:
		stepExecution.MarkAsCompleted()
	}

	if err := s.p.JobRepository.UpdateStepExecution(work, stepExecution); err != nil {
		logger.Errorf("ChunkStep '%s': failed to persist final StepExecution state: %v", name, err)
		if stepErr == nil {
			stepErr = exception.NewBatchError(name, "failed to persist final StepExecution state", err, false, false)
			stepExecution.MarkAsFailed(stepErr)
		}
	}

	for _, l := range s.p.StepListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.p.MetricRecorder.RecordStepEnd(ctx, stepExecution)
	logger.Infof("ChunkStep '%s' finished. %s", name, stepExecution)
	return stepErr
}

// run opens the streams, loops over chunks and closes the streams.
func (s *ChunkStep[I, O]) run(ctx, work context.Context, se *model.StepExecution) (stopped bool, err error) {
	checkpoint, err := s.restoreCheckpoint(work, se)
	if err != nil {
		return false, err
	}
	se.ExecutionContext = checkpoint.Copy()

	if err := s.p.Reader.Open(work, checkpoint); err != nil {
		return false, classifyOpenError(s.p.Name, "failed to open ItemReader", err, exception.NewSourceReadError)
	}
	if err := s.p.Writer.Open(work, checkpoint); err != nil {
		if closeErr := s.p.Reader.Close(work); closeErr != nil {
			logger.Warnf("ChunkStep '%s': failed to close ItemReader: %v", s.p.Name, closeErr)
		}
		return false, classifyOpenError(s.p.Name, "failed to open ItemWriter", err, exception.NewSinkWriteError)
	}

	for {
		if ctx.Err() != nil {
			stopped = true
			break
		}
		result, chunkErr := s.chunk.ProcessChunk(work, se)
		if chunkErr != nil {
			err = chunkErr
			break
		}
		if result.EndOfStream {
			break
		}
	}

	if closeErr := s.closeStreams(work); closeErr != nil {
		logger.Warnf("ChunkStep '%s': failed to close streams: %v", s.p.Name, closeErr)
		if err == nil {
			err = closeErr
		}
	}
	return stopped && err == nil, err
}

// restoreCheckpoint returns the checkpoint saved for se, falling back to the context it was
// created with (a restarted step execution inherits the checkpoint of its predecessor).
func (s *ChunkStep[I, O]) restoreCheckpoint(ctx context.Context, se *model.StepExecution) (model.ExecutionContext, error) {
	data, err := s.p.JobRepository.FindCheckpointData(ctx, se.ID)
	switch {
	case err == nil && data != nil:
		logger.Infof("ChunkStep '%s': resuming from saved checkpoint.", s.p.Name)
		return data.ExecutionContext, nil
	case err != nil && !errors.Is(err, repository.ErrCheckpointDataNotFound):
		return nil, exception.NewBatchError(s.p.Name, "failed to load checkpoint", err, false, false)
	}
	if len(se.ExecutionContext) > 0 {
		logger.Infof("ChunkStep '%s': resuming from inherited checkpoint.", s.p.Name)
		return se.ExecutionContext, nil
	}
	return model.NewExecutionContext(), nil
}

func (s *ChunkStep[I, O]) closeStreams(ctx context.Context) error {
	var result *multierror.Error
	if err := s.p.Reader.Close(ctx); err != nil {
		result = multierror.Append(result, classifyOpenError(s.p.Name, "failed to close ItemReader", err, exception.NewSourceReadError))
	}
	if err := s.p.Writer.Close(ctx); err != nil {
		result = multierror.Append(result, classifyOpenError(s.p.Name, "failed to close ItemWriter", err, exception.NewSinkWriteError))
	}
	return result.ErrorOrNil()
}

// classifyOpenError keeps classified errors and wraps anything else with wrap.
func classifyOpenError(stepName, message string, err error, wrap func(string, string, error) *exception.BatchError) error {
	if exception.Kind(err) != exception.UnknownError {
		return err
	}
	return wrap(stepName, message, err)
}
