package incrementer

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DefaultTimestampKey is the parameter key set by TimestampIncrementer.
const DefaultTimestampKey = "timestamp"

// TimestampIncrementer sets an identifying parameter to the current Unix milliseconds.
type TimestampIncrementer struct {
	key string
	now func() time.Time
}

// NewTimestampIncrementer creates a TimestampIncrementer writing key (DefaultTimestampKey when empty).
func NewTimestampIncrementer(key string) *TimestampIncrementer {
	if key == "" {
		key = DefaultTimestampKey
	}
	return &TimestampIncrementer{key: key, now: time.Now}
}

// GetNext returns a copy of params with the current timestamp.
func (i *TimestampIncrementer) GetNext(ctx context.Context, jobName string, params model.JobParameters) (model.JobParameters, error) {
	ts := i.now().UnixMilli()
	if previous, ok := params.GetInt64(i.key); ok && ts <= previous {
		ts = previous + 1
	}
	logger.Debugf("TimestampIncrementer: setting '%s' to %d for job '%s'.", i.key, ts, jobName)
	return params.With(i.key, ts), nil
}

// DiscriminatorKey implements port.JobParametersIncrementer.
func (i *TimestampIncrementer) DiscriminatorKey() string {
	return i.key
}

func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[key=%s]", i.key)
}

var _ port.JobParametersIncrementer = (*TimestampIncrementer)(nil)
