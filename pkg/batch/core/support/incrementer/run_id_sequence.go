package incrementer

import (
	"context"
	"sync"

	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// RunIDSequence issues the run discriminators of a job.
type RunIDSequence interface {
	// Next returns the next run id of jobName. Ids of one job are strictly increasing.
	Next(ctx context.Context, jobName string) (int64, error)
}

// RunIDSeeder reports the highest run id already stored for a job.
type RunIDSeeder interface {
	GetMaxRunID(ctx context.Context, jobName string, key string) (int64, error)
}

// InMemoryRunIDSequence keeps one counter per job name. A counter starts at 0, or at the
// highest id reported by the seeder the first time the job asks for an id, so ids issued
// by an earlier process are never reused. Counters are never reset.
type InMemoryRunIDSequence struct {
	key    string
	seeder RunIDSeeder

	mu       sync.Mutex
	counters map[string]int64
}

// NewInMemoryRunIDSequence creates a sequence for the parameter key. seeder may be nil.
func NewInMemoryRunIDSequence(key string, seeder RunIDSeeder) *InMemoryRunIDSequence {
	if key == "" {
		key = DefaultRunIDKey
	}
	return &InMemoryRunIDSequence{
		key:      key,
		seeder:   seeder,
		counters: make(map[string]int64),
	}
}

// Next implements RunIDSequence.
func (s *InMemoryRunIDSequence) Next(ctx context.Context, jobName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, seeded := s.counters[jobName]
	if !seeded && s.seeder != nil {
		maxID, err := s.seeder.GetMaxRunID(ctx, jobName, s.key)
		if err != nil {
			return 0, err
		}
		current = maxID
		logger.Debugf("RunIDSequence: seeded '%s' for job '%s' with %d.", s.key, jobName, current)
	}
	current++
	s.counters[jobName] = current
	return current, nil
}

var _ RunIDSequence = (*InMemoryRunIDSequence)(nil)
