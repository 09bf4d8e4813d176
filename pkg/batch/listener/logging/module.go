package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	jsl "github.com/tigerroll/chunkbatch/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/chunkbatch/pkg/batch/core/config/support"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Names under which the logging listeners are referenced in job definitions.
const (
	JobListenerName   = "loggingJobListener"
	StepListenerName  = "loggingStepListener"
	ChunkListenerName = "loggingChunkListener"
)

// NewLoggingJobListenerBuilder creates a ComponentBuilder for LoggingJobListener.
func NewLoggingJobListenerBuilder() jsl.JobExecutionListenerBuilder {
	return func(
		_ *config.Config,
		properties map[string]string,
	) (port.JobExecutionListener, error) {
		return NewLoggingJobListener(properties), nil
	}
}

// NewLoggingStepListenerBuilder creates a ComponentBuilder for LoggingStepListener.
func NewLoggingStepListenerBuilder() jsl.StepExecutionListenerBuilder {
	return func(
		_ *config.Config,
		properties map[string]string,
	) (port.StepExecutionListener, error) {
		return NewLoggingStepListener(properties), nil
	}
}

// NewLoggingChunkListenerBuilder creates a ComponentBuilder for LoggingChunkListener.
func NewLoggingChunkListenerBuilder() jsl.ChunkListenerBuilder {
	return func(
		_ *config.Config,
		properties map[string]string,
	) (port.ChunkListener, error) {
		return NewLoggingChunkListener(properties), nil
	}
}

// AllListenerBuilders is a struct to receive all listener builders from Fx.
type AllListenerBuilders struct {
	fx.In
	JobListenerBuilder   jsl.JobExecutionListenerBuilder  `name:"loggingJobListener"`
	StepListenerBuilder  jsl.StepExecutionListenerBuilder `name:"loggingStepListener"`
	ChunkListenerBuilder jsl.ChunkListenerBuilder         `name:"loggingChunkListener"`
}

// RegisterAllListeners registers all listener builders with the JobFactory.
func RegisterAllListeners(jf *support.JobFactory, builders AllListenerBuilders) {
	jf.RegisterJobListenerBuilder(JobListenerName, builders.JobListenerBuilder)
	jf.RegisterStepExecutionListenerBuilder(StepListenerName, builders.StepListenerBuilder)
	jf.RegisterChunkListenerBuilder(ChunkListenerName, builders.ChunkListenerBuilder)
	logger.Debugf("All logging listeners registered with JobFactory.")
}

// Module aggregates all listener components provided by this package.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewLoggingJobListenerBuilder, fx.ResultTags(`name:"loggingJobListener"`))),
	fx.Provide(fx.Annotate(NewLoggingStepListenerBuilder, fx.ResultTags(`name:"loggingStepListener"`))),
	fx.Provide(fx.Annotate(NewLoggingChunkListenerBuilder, fx.ResultTags(`name:"loggingChunkListener"`))),

	fx.Invoke(RegisterAllListeners),
)
