package tracing

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	jsl "github.com/tigerroll/chunkbatch/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/chunkbatch/pkg/batch/core/config/support"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Names under which the tracing listeners are referenced in job definitions.
const (
	JobListenerName   = "tracingJobListener"
	ChunkListenerName = "tracingChunkListener"
)

// NewTracingJobListenerBuilder creates a ComponentBuilder for TracingJobListener.
func NewTracingJobListenerBuilder(tracer metrics.Tracer) jsl.JobExecutionListenerBuilder {
	return func(
		_ *config.Config,
		_ map[string]string,
	) (port.JobExecutionListener, error) {
		return NewTracingJobListener(tracer), nil
	}
}

// NewTracingChunkListenerBuilder creates a ComponentBuilder for TracingChunkListener.
func NewTracingChunkListenerBuilder(tracer metrics.Tracer) jsl.ChunkListenerBuilder {
	return func(
		_ *config.Config,
		_ map[string]string,
	) (port.ChunkListener, error) {
		return NewTracingChunkListener(tracer), nil
	}
}

// AllTracingListenerBuilders is a struct to receive all tracing listener builders from Fx.
type AllTracingListenerBuilders struct {
	fx.In
	JobListenerBuilder   jsl.JobExecutionListenerBuilder `name:"tracingJobListener"`
	ChunkListenerBuilder jsl.ChunkListenerBuilder        `name:"tracingChunkListener"`
}

// RegisterAllTracingListeners registers all tracing listener builders with the JobFactory.
func RegisterAllTracingListeners(jf *support.JobFactory, builders AllTracingListenerBuilders) {
	jf.RegisterJobListenerBuilder(JobListenerName, builders.JobListenerBuilder)
	jf.RegisterChunkListenerBuilder(ChunkListenerName, builders.ChunkListenerBuilder)
	logger.Debugf("All tracing listeners registered with JobFactory.")
}

// Module provides tracing listener builders. The Tracer itself comes from the
// infrastructure metrics module.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewTracingJobListenerBuilder, fx.ResultTags(`name:"tracingJobListener"`))),
	fx.Provide(fx.Annotate(NewTracingChunkListenerBuilder, fx.ResultTags(`name:"tracingChunkListener"`))),

	fx.Invoke(RegisterAllTracingListeners),
)
