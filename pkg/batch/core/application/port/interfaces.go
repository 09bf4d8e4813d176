// Package port defines the contracts between the engine and the components a job is
// assembled from: item readers, processors and writers, steps, jobs and listeners.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by ItemReader.Read when the source is exhausted.
var ErrNoMoreItems = errors.New("no more items")

// ErrExecutionContextNotSupported is returned by GetExecutionContext of a stream that keeps no restart state.
var ErrExecutionContextNotSupported = errors.New("execution context not supported")

// ItemStream is the lifecycle shared by readers and writers.
type ItemStream interface {
	// Open acquires resources and restores state from ec. An empty ec means a fresh start.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   ec: The checkpoint saved with the last committed chunk.
	//
	// Returns:
	//   error: An error if the stream cannot be opened.
	Open(ctx context.Context, ec model.ExecutionContext) error

	// Close releases resources. It is called once, whatever the outcome of the step.
	Close(ctx context.Context) error

	// GetExecutionContext returns the restart state of the stream as of the last item handed out
	// (readers) or the last chunk written (writers).
	//
	// Returns:
	//   model.ExecutionContext: A copy of the current state.
	//   error: ErrExecutionContextNotSupported if the stream keeps no state.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// ItemReader produces the items of a step one at a time.
// O is the type of item read. Readers are not safe for concurrent use.
type ItemReader[O any] interface {
	ItemStream

	// Read returns the next item, or ErrNoMoreItems at the end of the source.
	Read(ctx context.Context) (O, error)
}

// ItemProcessor transforms a read item into the item to be written.
// I is the type of input item, O is the type of output item.
type ItemProcessor[I, O any] interface {
	// Process transforms item. A nil output filters the item out of the chunk.
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter persists the items of a chunk.
// I is the type of item to be written.
type ItemWriter[I any] interface {
	ItemStream

	// Write persists items as one unit. Writers that own a store write through tx so the
	// chunk and its checkpoint commit together. A chunk may be delivered more than once
	// after a failure, so writes must be idempotent.
	Write(ctx context.Context, tx tx.Tx, items []I) error
}

// Step is an executable unit of a job.
type Step interface {
	// StepName returns the name under which executions of the step are recorded.
	StepName() string

	// Execute runs the step for stepExecution. The step moves stepExecution through its
	// statuses and persists it. A STOPPED outcome is not an error.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
}

// StepBuilder creates a Step once the parameters of a run are known.
//
// Building happens after parameter validation, so components whose setup depends on
// parameters (query providers, finders) see complete parameters.
type StepBuilder interface {
	StepName() string
	Build(ctx context.Context, params model.JobParameters) (Step, error)
}

type stepBuilderFunc struct {
	name  string
	build func(ctx context.Context, params model.JobParameters) (Step, error)
}

func (b stepBuilderFunc) StepName() string { return b.name }

func (b stepBuilderFunc) Build(ctx context.Context, params model.JobParameters) (Step, error) {
	return b.build(ctx, params)
}

// NewStepBuilder returns a StepBuilder named name that delegates to build.
func NewStepBuilder(name string, build func(ctx context.Context, params model.JobParameters) (Step, error)) StepBuilder {
	return stepBuilderFunc{name: name, build: build}
}

// Job is a named, ordered sequence of steps.
type Job interface {
	// JobName returns the logical name of the job.
	JobName() string

	// ValidateParameters checks params against the job's parameter schema.
	ValidateParameters(params model.JobParameters) error

	// Incrementer returns the run discriminator strategy of the job, or nil.
	Incrementer() JobParametersIncrementer

	// Run executes the job for jobExecution. On return jobExecution is in a terminal status.
	//
	// Parameters:
	//   ctx: Cancelling ctx stops the job at the next chunk boundary.
	//   jobExecution: The execution to run. Its step executions carry restart state.
	//   params: The parameters of the run.
	//
	// Returns:
	//   error: The failure that ended the job, or nil for COMPLETED and STOPPED.
	Run(ctx context.Context, jobExecution *model.JobExecution, params model.JobParameters) error
}

// JobParametersValidator validates the parameters of a launch.
type JobParametersValidator interface {
	Validate(params model.JobParameters) error
}

// JobParametersIncrementer derives the parameters of the next run of a job.
type JobParametersIncrementer interface {
	// GetNext returns params with a fresh run discriminator for jobName.
	GetNext(ctx context.Context, jobName string, params model.JobParameters) (model.JobParameters, error)

	// DiscriminatorKey returns the parameter key set by GetNext.
	DiscriminatorKey() string
}

// JobExecutionListener observes job executions.
type JobExecutionListener interface {
	// BeforeJob is called after validation, just before the first step runs.
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	// AfterJob is called once the job has reached a terminal status.
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

// StepExecutionListener observes step executions.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener observes chunk boundaries.
type ChunkListener interface {
	// BeforeChunk is called before the first read of a chunk.
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunk is called after the chunk committed.
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunkError is called after the chunk rolled back.
	AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error)
}

// ItemReadListener observes read failures.
type ItemReadListener interface {
	OnReadError(ctx context.Context, err error)
}

// ItemWriteListener observes write failures.
type ItemWriteListener interface {
	// OnWriteError is called with the items of the chunk whose write failed.
	OnWriteError(ctx context.Context, items []interface{}, err error)
}

type contextKey string

// StepExecutionKey is the context key under which the running StepExecution is stored.
const StepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution stores a StepExecution in the Context.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, StepExecutionKey, se)
}

// GetStepExecutionFromContext retrieves a StepExecution from the Context. Returns nil if not found.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(StepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
