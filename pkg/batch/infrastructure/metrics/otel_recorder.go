package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// instrumentationName is the OpenTelemetry scope of the engine's metrics and spans.
const instrumentationName = "github.com/tigerroll/chunkbatch"

// OTelMetricRecorder implements metrics.MetricRecorder with OpenTelemetry instruments.
// Instruments that cannot be created fall back to the API's no-op instruments.
type OTelMetricRecorder struct {
	jobDuration       metric.Float64Histogram
	jobExecutions     metric.Int64Counter
	stepDuration      metric.Float64Histogram
	stepExecutions    metric.Int64Counter
	itemsRead         metric.Int64Counter
	itemsFiltered     metric.Int64Counter
	itemsWritten      metric.Int64Counter
	chunkCommits      metric.Int64Counter
	chunkRollbacks    metric.Int64Counter
	operationDuration metric.Float64Histogram
}

// NewOTelMetricRecorder creates the instruments on meter.
func NewOTelMetricRecorder(meter metric.Meter) *OTelMetricRecorder {
	r := &OTelMetricRecorder{}
	r.jobDuration, _ = meter.Float64Histogram("batch.job.duration",
		metric.WithDescription("Duration of job executions in seconds"), metric.WithUnit("s"))
	r.jobExecutions, _ = meter.Int64Counter("batch.job.executions",
		metric.WithDescription("Finished job executions"), metric.WithUnit("{execution}"))
	r.stepDuration, _ = meter.Float64Histogram("batch.step.duration",
		metric.WithDescription("Duration of step executions in seconds"), metric.WithUnit("s"))
	r.stepExecutions, _ = meter.Int64Counter("batch.step.executions",
		metric.WithDescription("Finished step executions"), metric.WithUnit("{execution}"))
	r.itemsRead, _ = meter.Int64Counter("batch.items.read", metric.WithUnit("{item}"))
	r.itemsFiltered, _ = meter.Int64Counter("batch.items.filtered", metric.WithUnit("{item}"))
	r.itemsWritten, _ = meter.Int64Counter("batch.items.written", metric.WithUnit("{item}"))
	r.chunkCommits, _ = meter.Int64Counter("batch.chunk.commits", metric.WithUnit("{chunk}"))
	r.chunkRollbacks, _ = meter.Int64Counter("batch.chunk.rollbacks", metric.WithUnit("{chunk}"))
	r.operationDuration, _ = meter.Float64Histogram("batch.operation.duration",
		metric.WithDescription("Duration of named batch operations in seconds"), metric.WithUnit("s"))
	return r
}

// RecordJobStart implements metrics.MetricRecorder. Only finished executions are counted.
func (r *OTelMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}

// RecordJobEnd implements metrics.MetricRecorder.
func (r *OTelMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	)
	r.jobExecutions.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

// RecordStepStart implements metrics.MetricRecorder.
func (r *OTelMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}

// RecordStepEnd implements metrics.MetricRecorder.
func (r *OTelMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", jobNameOf(execution)),
		attribute.String("step_name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	)
	r.stepExecutions.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

// RecordItemRead implements metrics.MetricRecorder.
func (r *OTelMetricRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.itemsRead.Add(ctx, int64(count), stepAttrs(ctx, stepName))
}

// RecordItemFilter implements metrics.MetricRecorder.
func (r *OTelMetricRecorder) RecordItemFilter(ctx context.Context, stepName string, count int) {
	r.itemsFiltered.Add(ctx, int64(count), stepAttrs(ctx, stepName))
}

// RecordItemWrite implements metrics.MetricRecorder.
func (r *OTelMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemsWritten.Add(ctx, int64(count), stepAttrs(ctx, stepName))
}

// RecordChunkCommit implements metrics.MetricRecorder.
func (r *OTelMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunkCommits.Add(ctx, 1, stepAttrs(ctx, stepName))
}

// RecordChunkRollback implements metrics.MetricRecorder.
func (r *OTelMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string, reason string) {
	r.chunkRollbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", jobNameFromContext(ctx)),
		attribute.String("step_name", stepName),
		attribute.String("reason", reason),
	))
}

// RecordDuration implements metrics.MetricRecorder. Every tag becomes an attribute.
func (r *OTelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("operation", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func stepAttrs(ctx context.Context, stepName string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("job_name", jobNameFromContext(ctx)),
		attribute.String("step_name", stepName),
	)
}

var _ metrics.MetricRecorder = (*OTelMetricRecorder)(nil)
