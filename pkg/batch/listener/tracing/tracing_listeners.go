// Package tracing provides listeners that annotate the job and step spans opened by the
// engine with chunk and job events.
package tracing

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// Span event names.
const (
	EventJobRunning      = "batch.job.running"
	EventJobFinished     = "batch.job.finished"
	EventChunkCommitted  = "batch.chunk.committed"
	EventChunkRolledBack = "batch.chunk.rolled_back"
)

// TracingJobListener adds job lifecycle events to the job span.
type TracingJobListener struct {
	tracer metrics.Tracer
}

func NewTracingJobListener(tracer metrics.Tracer) *TracingJobListener {
	return &TracingJobListener{tracer: tracer}
}

func (l *TracingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.tracer.RecordEvent(ctx, EventJobRunning, map[string]interface{}{
		"job.execution_id": jobExecution.ID,
		"job.restart":      jobExecution.RestartCount,
	})
}

func (l *TracingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.tracer.RecordEvent(ctx, EventJobFinished, map[string]interface{}{
		"job.status":    jobExecution.Status.String(),
		"job.exit_code": jobExecution.ExitCode(),
	})
}

var _ port.JobExecutionListener = (*TracingJobListener)(nil)

// TracingChunkListener adds one event per chunk to the step span.
type TracingChunkListener struct {
	tracer metrics.Tracer
}

func NewTracingChunkListener(tracer metrics.Tracer) *TracingChunkListener {
	return &TracingChunkListener{tracer: tracer}
}

func (l *TracingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
}

func (l *TracingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	l.tracer.RecordEvent(ctx, EventChunkCommitted, map[string]interface{}{
		"step.name":   stepExecution.StepName,
		"step.commit": stepExecution.CommitCount,
		"step.read":   stepExecution.ReadCount,
		"step.write":  stepExecution.WriteCount,
	})
}

func (l *TracingChunkListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) {
	l.tracer.RecordEvent(ctx, EventChunkRolledBack, map[string]interface{}{
		"step.name":     stepExecution.StepName,
		"step.rollback": stepExecution.RollbackCount,
		"error.kind":    exception.Kind(err),
	})
}

var _ port.ChunkListener = (*TracingChunkListener)(nil)
