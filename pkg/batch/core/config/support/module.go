package support

import (
	"go.uber.org/fx"

	jsl "github.com/tigerroll/chunkbatch/pkg/batch/core/config/jsl"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// NewDefinitions loads the supplied job definition documents.
func NewDefinitions(data jsl.JSLDefinitionBytes) (*jsl.Definitions, error) {
	defs := jsl.NewDefinitions()
	if err := defs.LoadFromBytes(data); err != nil {
		return nil, err
	}
	logger.Infof("Job definitions loaded: %v", defs.IDs())
	return defs, nil
}

// ProvideJobBuilder contributes builder for jobID to the job_builders group.
func ProvideJobBuilder(jobID string, builder JobBuilder) fx.Option {
	return fx.Provide(fx.Annotate(
		func() JobBuilderRegistration { return JobBuilderRegistration{JobID: jobID, Builder: builder} },
		fx.ResultTags(`group:"`+JobBuilderGroup+`"`),
	))
}

// Module provides the job definitions (from a supplied jsl.JSLDefinitionBytes) and the JobFactory.
var Module = fx.Options(
	fx.Provide(NewDefinitions),
	fx.Provide(NewJobFactory),
)
