package incrementer

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	support "github.com/tigerroll/chunkbatch/pkg/batch/core/config/support"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Incrementer refs usable in job definitions.
const (
	RunIDIncrementerRef     = "runIdIncrementer"
	TimestampIncrementerRef = "timestampIncrementer"
)

// SequenceParams defines the dependencies of NewRunIDSequence.
type SequenceParams struct {
	fx.In
	Seeder RunIDSeeder `optional:"true"`
}

// NewRunIDSequence provides the process-wide run id sequence, seeded from the job store when a seeder is available.
func NewRunIDSequence(p SequenceParams) RunIDSequence {
	return NewInMemoryRunIDSequence(DefaultRunIDKey, p.Seeder)
}

// IncrementerParams defines the dependencies of NewIncrementer.
type IncrementerParams struct {
	fx.In
	Cfg      *config.Config
	Seeder   RunIDSeeder   `optional:"true"`
	Sequence RunIDSequence `optional:"true"`
}

// NewIncrementer returns the run discriminator strategy selected by surfin.batch.incrementer.
func NewIncrementer(p IncrementerParams) port.JobParametersIncrementer {
	sequence := p.Sequence
	if sequence == nil {
		sequence = NewInMemoryRunIDSequence(DefaultRunIDKey, p.Seeder)
	}
	switch p.Cfg.Surfin.Batch.Incrementer {
	case config.IncrementerTimestamp:
		logger.Debugf("Using TimestampIncrementer as run discriminator.")
		return NewTimestampIncrementer(DefaultTimestampKey)
	case "", config.IncrementerRunID:
		return NewRunIDIncrementer(DefaultRunIDKey, sequence)
	default:
		logger.Warnf("Unknown incrementer '%s', falling back to '%s'.", p.Cfg.Surfin.Batch.Incrementer, config.IncrementerRunID)
		return NewRunIDIncrementer(DefaultRunIDKey, sequence)
	}
}

// RegisterIncrementerBuilders makes both strategies available to job definitions by ref.
// Run id incrementers share sequence.
func RegisterIncrementerBuilders(jf *support.JobFactory, sequence RunIDSequence) {
	jf.RegisterJobParametersIncrementerBuilder(RunIDIncrementerRef, func(_ *config.Config, _ map[string]string) (port.JobParametersIncrementer, error) {
		return NewRunIDIncrementer(DefaultRunIDKey, sequence), nil
	})
	jf.RegisterJobParametersIncrementerBuilder(TimestampIncrementerRef, func(_ *config.Config, properties map[string]string) (port.JobParametersIncrementer, error) {
		return NewTimestampIncrementer(properties["key"]), nil
	})
	logger.Debugf("Incrementer builders registered with JobFactory.")
}

// Module provides the run id sequence, the configured port.JobParametersIncrementer
// and the incrementer builders of the JobFactory.
var Module = fx.Options(
	fx.Provide(NewRunIDSequence),
	fx.Provide(NewIncrementer),
	fx.Invoke(RegisterIncrementerBuilders),
)
