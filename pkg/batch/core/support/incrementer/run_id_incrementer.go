// Package incrementer provides run discriminators: parameters added to a launch so
// that an otherwise identical launch creates a new job instance.
package incrementer

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DefaultRunIDKey is the parameter key set by RunIDIncrementer.
const DefaultRunIDKey = "run.id"

// RunIDIncrementer sets an identifying run id taken from a RunIDSequence.
type RunIDIncrementer struct {
	key      string
	sequence RunIDSequence
}

// NewRunIDIncrementer creates a RunIDIncrementer writing key (DefaultRunIDKey when empty).
func NewRunIDIncrementer(key string, sequence RunIDSequence) *RunIDIncrementer {
	if key == "" {
		key = DefaultRunIDKey
	}
	return &RunIDIncrementer{key: key, sequence: sequence}
}

// GetNext returns a copy of params with the next run id of jobName.
func (i *RunIDIncrementer) GetNext(ctx context.Context, jobName string, params model.JobParameters) (model.JobParameters, error) {
	next, err := i.sequence.Next(ctx, jobName)
	if err != nil {
		return params, fmt.Errorf("failed to obtain next '%s' for job '%s': %w", i.key, jobName, err)
	}
	if previous, ok := params.GetInt64(i.key); ok {
		logger.Debugf("RunIDIncrementer: replacing '%s'=%d with %d.", i.key, previous, next)
	}
	return params.With(i.key, next), nil
}

// DiscriminatorKey implements port.JobParametersIncrementer.
func (i *RunIDIncrementer) DiscriminatorKey() string {
	return i.key
}

func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[key=%s]", i.key)
}

var _ port.JobParametersIncrementer = (*RunIDIncrementer)(nil)
