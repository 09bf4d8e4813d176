package usecase

import (
	"go.uber.org/fx"

	incrementer "github.com/tigerroll/chunkbatch/pkg/batch/core/support/incrementer"
)

// Module is the Fx module for JobLauncher, JobOperator, JobExplorer and JobScheduler.
// The explorer also seeds the run id sequence.
var Module = fx.Options(
	fx.Provide(NewSimpleJobExplorer),
	fx.Provide(fx.Annotate(
		func(e *SimpleJobExplorer) *SimpleJobExplorer { return e },
		fx.As(new(JobExplorer), new(incrementer.RunIDSeeder)),
	)),

	fx.Provide(NewSimpleJobLauncher),
	fx.Provide(fx.Annotate(
		func(launcher *SimpleJobLauncher) *SimpleJobLauncher { return launcher },
		fx.As(new(JobLauncher)),
	)),

	fx.Provide(NewDefaultJobOperator),
	fx.Provide(fx.Annotate(
		func(operator *DefaultJobOperator) *DefaultJobOperator { return operator },
		fx.As(new(JobOperator)),
	)),

	fx.Provide(NewJobScheduler),
)
