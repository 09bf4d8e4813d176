// Package metrics defines the observability ports of the engine: a MetricRecorder for
// counters and durations, and a Tracer for job and step spans.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// MetricRecorder records metrics of batch execution.
//
// Implementations must be safe for concurrent use. Backends live in the
// infrastructure layer (Prometheus, OpenTelemetry).
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd records the end of a JobExecution, labelled by its final status.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)

	// RecordStepStart records the start of a StepExecution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	// RecordStepEnd records the end of a StepExecution.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead records count items read by stepName.
	RecordItemRead(ctx context.Context, stepName string, count int)
	// RecordItemFilter records count items dropped by the processor of stepName.
	RecordItemFilter(ctx context.Context, stepName string, count int)
	// RecordItemWrite records count items written by stepName.
	RecordItemWrite(ctx context.Context, stepName string, count int)

	// RecordChunkCommit records a committed chunk of count items.
	RecordChunkCommit(ctx context.Context, stepName string, count int)
	// RecordChunkRollback records a rolled back chunk. reason is the error kind.
	RecordChunkRollback(ctx context.Context, stepName string, reason string)

	// RecordDuration records the duration of a named operation.
	//
	// tags: additional labels, e.g. `{"step": "customerStep", "status": "COMPLETED"}`.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
