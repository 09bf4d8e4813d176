package incrementer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/support/incrementer"
)

type fixedSeeder struct {
	max   int64
	err   error
	calls int
}

func (s *fixedSeeder) GetMaxRunID(ctx context.Context, jobName string, key string) (int64, error) {
	s.calls++
	return s.max, s.err
}

func TestRunIDSequence_StartsAtOneWithoutSeeder(t *testing.T) {
	seq := incrementer.NewInMemoryRunIDSequence("", nil)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx, "job-service")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := seq.Next(ctx, "job-jpa-paging")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "each job has its own counter")
}

func TestRunIDSequence_SeedsOncePerJob(t *testing.T) {
	seeder := &fixedSeeder{max: 41}
	seq := incrementer.NewInMemoryRunIDSequence("run.id", seeder)

	first, err := seq.Next(context.Background(), "job-service")
	require.NoError(t, err)
	second, err := seq.Next(context.Background(), "job-service")
	require.NoError(t, err)

	assert.Equal(t, int64(42), first)
	assert.Equal(t, int64(43), second)
	assert.Equal(t, 1, seeder.calls)
}

func TestRunIDSequence_SeederErrorDoesNotAdvance(t *testing.T) {
	seeder := &fixedSeeder{err: errors.New("db down")}
	seq := incrementer.NewInMemoryRunIDSequence("run.id", seeder)

	_, err := seq.Next(context.Background(), "job-service")
	assert.Error(t, err)

	seeder.err = nil
	seeder.max = 7
	next, err := seq.Next(context.Background(), "job-service")
	require.NoError(t, err)
	assert.Equal(t, int64(8), next)
}

func TestRunIDIncrementer_GetNext(t *testing.T) {
	inc := incrementer.NewRunIDIncrementer("", incrementer.NewInMemoryRunIDSequence("", nil))
	params := model.NewJobParameters().With("city", "Springfield")

	next, err := inc.GetNext(context.Background(), "job-service", params)
	require.NoError(t, err)

	runID, ok := next.GetInt64("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(1), runID)
	assert.True(t, next.IsIdentifying("run.id"))
	assert.Equal(t, "run.id", inc.DiscriminatorKey())

	_, present := params.Get("run.id")
	assert.False(t, present, "input parameters are not modified")

	again, err := inc.GetNext(context.Background(), "job-service", next)
	require.NoError(t, err)
	runID, _ = again.GetInt64("run.id")
	assert.Equal(t, int64(2), runID)

	h1, _ := next.Hash()
	h2, _ := again.Hash()
	assert.NotEqual(t, h1, h2, "a new run id yields a new identity")
}

func TestTimestampIncrementer_IsMonotonic(t *testing.T) {
	inc := incrementer.NewTimestampIncrementer("")
	first, err := inc.GetNext(context.Background(), "job", model.NewJobParameters())
	require.NoError(t, err)
	second, err := inc.GetNext(context.Background(), "job", first)
	require.NoError(t, err)

	a, ok := first.GetInt64("timestamp")
	require.True(t, ok)
	b, ok := second.GetInt64("timestamp")
	require.True(t, ok)
	assert.Greater(t, b, a)
}

func TestNewIncrementer_SelectsByConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Surfin.Batch.Incrementer = config.IncrementerTimestamp
	assert.Equal(t, "timestamp", incrementer.NewIncrementer(incrementer.IncrementerParams{Cfg: cfg}).DiscriminatorKey())

	cfg.Surfin.Batch.Incrementer = "bogus"
	assert.Equal(t, "run.id", incrementer.NewIncrementer(incrementer.IncrementerParams{Cfg: cfg}).DiscriminatorKey())
}
