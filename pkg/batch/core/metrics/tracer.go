package metrics

import (
	"context"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// Tracer integrates job and step execution with a distributed tracing system.
type Tracer interface {
	// StartJobSpan starts a span for a JobExecution.
	//
	// Returns a context carrying the span and a function that ends it.
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())

	// StartStepSpan starts a span for a StepExecution, usually as a child of the job span.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())

	// RecordError records err on the span carried by ctx.
	// module names the component that failed (e.g. "reader", "writer").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent adds a named event to the span carried by ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
