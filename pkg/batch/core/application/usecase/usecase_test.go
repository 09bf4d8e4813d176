package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	itemcomp "github.com/tigerroll/chunkbatch/pkg/batch/component/item"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	jsl "github.com/tigerroll/chunkbatch/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/chunkbatch/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/support/incrementer"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/test"
)

const customersJob = `
id: customers
name: Customers by city
validator:
  required: [city]
  optional: [run.id]
steps:
  - id: load
    chunk:
      commit-interval: 10
`

type fixture struct {
	repo     *inmemory.InMemoryJobRepository
	explorer *usecase.SimpleJobExplorer
	launcher *usecase.SimpleJobLauncher
	operator *usecase.DefaultJobOperator
	writer   *test.RecordingWriter[int]
	builds   int
	// chunkListener, when set, is attached to the step of every build.
	chunkListener port.ChunkListener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   inmemory.NewInMemoryJobRepository(),
		writer: test.NewRecordingWriter[int](),
	}
	defs := jsl.NewDefinitions()
	require.NoError(t, defs.LoadFromBytes([]byte(customersJob)))

	f.explorer = usecase.NewSimpleJobExplorer(f.repo)
	sequence := incrementer.NewInMemoryRunIDSequence(incrementer.DefaultRunIDKey, f.explorer)
	factory := support.NewJobFactory(support.JobFactoryParams{
		Definitions: defs,
		Cfg:         config.NewConfig(),
		Repo:        f.repo,
		Incrementer: incrementer.NewRunIDIncrementer(incrementer.DefaultRunIDKey, sequence),
	})
	factory.RegisterJobBuilder("customers", f.build)

	f.launcher = usecase.NewSimpleJobLauncher(f.repo, factory)
	f.operator = usecase.NewDefaultJobOperator(f.repo, f.launcher, f.explorer)
	return f
}

func (f *fixture) build(bc support.JobBuildContext) (port.Job, error) {
	load := port.NewStepBuilder("load", func(ctx context.Context, params model.JobParameters) (port.Step, error) {
		f.builds++
		items := make([]int, 25)
		for i := range items {
			items[i] = i + 1
		}
		var listeners []port.ChunkListener
		if f.chunkListener != nil {
			listeners = append(listeners, f.chunkListener)
		}
		return item.NewChunkStep(item.Params[int, int]{
			Name:           "load",
			Reader:         test.NewSliceReader(items),
			Processor:      itemcomp.NewPassThroughItemProcessor[int](),
			Writer:         f.writer,
			CommitInterval: bc.CommitInterval("load"),
			JobRepository:  bc.JobRepository,
			TxManager:      bc.TxManager,
			ChunkListeners: listeners,
		})
	})
	return bc.NewSimpleJob(load)
}

func (f *fixture) waitFinished(t *testing.T, executionID string) *model.JobExecution {
	t.Helper()
	_ = f.launcher.Wait(executionID)
	je, err := f.explorer.GetJobExecution(context.Background(), executionID)
	require.NoError(t, err)
	require.True(t, je.Status.IsFinished(), "status %s", je.Status)
	return je
}

func city(name string) model.JobParameters {
	return model.NewJobParameters().With("city", name)
}

func TestLaunchAndWait_WritesChunksInOrder(t *testing.T) {
	f := newFixture(t)

	je, err := f.launcher.LaunchAndWait(context.Background(), "customers", city("Springfield"))
	require.NoError(t, err)

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, 0, je.ExitCode())
	assert.Equal(t, []int{10, 10, 5}, f.writer.ChunkSizes())
	assert.Len(t, f.writer.Items(), 25)
	runID, ok := je.Parameters.GetInt64("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(1), runID)

	se, ok := je.GetStepExecution("load")
	require.True(t, ok)
	assert.Equal(t, 25, se.ReadCount)
	assert.Equal(t, 25, se.WriteCount)
	assert.Equal(t, 3, se.CommitCount)
}

func TestLaunchAndWait_MissingCityProcessesNoChunk(t *testing.T) {
	f := newFixture(t)

	je, err := f.launcher.LaunchAndWait(context.Background(), "customers", model.NewJobParameters())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrMissingParameter))
	assert.Contains(t, err.Error(), "city")

	require.NotNil(t, je)
	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Equal(t, 1, je.ExitCode())
	assert.Empty(t, je.StepExecutions)
	assert.Zero(t, f.builds)
	assert.Empty(t, f.writer.Chunks)
}

func TestLaunch_RejectedParametersLeaveNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rejected, err := f.launcher.Launch(ctx, "customers", model.NewJobParameters())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrMissingParameter))
	require.NotNil(t, rejected)
	assert.Equal(t, model.BatchStatusFailed, rejected.Status)
	assert.Empty(t, rejected.JobInstanceID)
	_, hasRunID := rejected.Parameters.Get("run.id")
	assert.False(t, hasRunID, "no run id is drawn for rejected parameters")

	instances, err := f.explorer.FindJobInstances(ctx, "customers")
	require.NoError(t, err)
	assert.Empty(t, instances)
	_, err = f.explorer.GetJobExecution(ctx, rejected.ID)
	assert.Error(t, err, "the rejected execution is not persisted")
	_, err = f.operator.RestartLast(ctx, "customers", model.NewJobParameters())
	assert.True(t, errors.Is(err, exception.ErrJobRestart), "nothing is left to restart")

	je, err := f.launcher.LaunchAndWait(ctx, "customers", city("Springfield"))
	require.NoError(t, err)
	id, _ := je.Parameters.GetInt64("run.id")
	assert.Equal(t, int64(1), id)
}

func TestLaunch_UnknownJob(t *testing.T) {
	f := newFixture(t)

	_, err := f.launcher.Launch(context.Background(), "nope", city("Springfield"))
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

func TestRestart_ResumesAfterLastCommittedChunk(t *testing.T) {
	f := newFixture(t)
	f.writer.FailOn[2] = errors.New("disk full")
	ctx := context.Background()

	failed, err := f.launcher.LaunchAndWait(ctx, "customers", city("Springfield"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrSinkWrite))
	assert.Equal(t, model.BatchStatusFailed, failed.Status)
	assert.Equal(t, []int{10}, f.writer.ChunkSizes())

	se, ok := failed.GetStepExecution("load")
	require.True(t, ok)
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	checkpoint, err := f.repo.FindCheckpointData(ctx, se.ID)
	require.NoError(t, err)
	index, ok := checkpoint.ExecutionContext.GetInt(test.SliceReaderIndexKey)
	require.True(t, ok)
	assert.Equal(t, 10, index)

	next, err := f.operator.Restart(ctx, failed.ID)
	require.NoError(t, err)
	restarted := f.waitFinished(t, next.ID)

	assert.Equal(t, model.BatchStatusCompleted, restarted.Status)
	assert.Equal(t, failed.JobInstanceID, restarted.JobInstanceID)
	assert.Equal(t, 1, restarted.RestartCount)
	assert.Equal(t, []int{10, 10, 5}, f.writer.ChunkSizes())
	expected := make([]int, 25)
	for i := range expected {
		expected[i] = i + 1
	}
	assert.Equal(t, expected, f.writer.Items(), "no item is written twice")

	rse, ok := restarted.GetStepExecution("load")
	require.True(t, ok)
	assert.Equal(t, 15, rse.WriteCount)
	assert.Equal(t, 2, rse.CommitCount)

	previous, err := f.explorer.GetJobExecution(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusAbandoned, previous.Status)

	last, err := f.explorer.GetLastJobExecution(ctx, "customers", restarted.Parameters)
	require.NoError(t, err)
	assert.Equal(t, restarted.ID, last.ID)
}

func TestLaunch_SameRunIDAfterFailureRestarts(t *testing.T) {
	f := newFixture(t)
	f.writer.FailOn[1] = errors.New("unavailable")
	ctx := context.Background()
	params := city("Springfield").With("run.id", int64(42))

	failed, err := f.launcher.LaunchAndWait(ctx, "customers", params)
	require.Error(t, err)
	assert.Equal(t, model.BatchStatusFailed, failed.Status)

	restarted, err := f.launcher.LaunchAndWait(ctx, "customers", params)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, restarted.Status)
	assert.Equal(t, failed.JobInstanceID, restarted.JobInstanceID)
	assert.Equal(t, []int{10, 10, 5}, f.writer.ChunkSizes())
}

func TestLaunch_CompletedInstanceIsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	params := city("Springfield").With("run.id", int64(7))

	_, err := f.launcher.LaunchAndWait(ctx, "customers", params)
	require.NoError(t, err)

	_, err = f.launcher.Launch(ctx, "customers", params)
	assert.ErrorIs(t, err, exception.ErrDuplicateInstance)

	// A non-identifying parameter does not change the instance.
	_, err = f.launcher.Launch(ctx, "customers", params.WithNonIdentifying("note", "again"))
	assert.ErrorIs(t, err, exception.ErrDuplicateInstance)
}

func TestLaunch_EachLaunchGetsNextRunID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.launcher.LaunchAndWait(ctx, "customers", city("Springfield"))
	require.NoError(t, err)
	second, err := f.launcher.LaunchAndWait(ctx, "customers", city("Springfield"))
	require.NoError(t, err)

	assert.NotEqual(t, first.JobInstanceID, second.JobInstanceID)
	id, _ := second.Parameters.GetInt64("run.id")
	assert.Equal(t, int64(2), id)

	maxID, err := f.explorer.GetMaxRunID(ctx, "customers", "run.id")
	require.NoError(t, err)
	assert.Equal(t, int64(2), maxID)

	// A sequence seeded from the store continues after the stored ids.
	next, err := incrementer.NewInMemoryRunIDSequence("run.id", f.explorer).Next(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)

	instances, err := f.explorer.FindJobInstances(ctx, "customers")
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

type stopAfterFirstChunk struct {
	operator *usecase.DefaultJobOperator
	stopErr  error
	stopped  bool
}

func (s *stopAfterFirstChunk) BeforeChunk(context.Context, *model.StepExecution) {}

func (s *stopAfterFirstChunk) AfterChunk(ctx context.Context, se *model.StepExecution) {
	if s.stopped {
		return
	}
	s.stopped = true
	s.stopErr = s.operator.Stop(ctx, se.JobExecutionID)
}

func (s *stopAfterFirstChunk) AfterChunkError(context.Context, *model.StepExecution, error) {}

func TestStop_EndsAtChunkBoundaryAndRestarts(t *testing.T) {
	f := newFixture(t)
	stopper := &stopAfterFirstChunk{operator: f.operator}
	f.chunkListener = stopper
	ctx := context.Background()

	stopped, err := f.launcher.LaunchAndWait(ctx, "customers", city("Springfield"))
	require.NoError(t, err)
	require.NoError(t, stopper.stopErr)
	assert.Equal(t, model.BatchStatusStopped, stopped.Status)
	assert.Equal(t, 2, stopped.ExitCode())
	assert.Equal(t, []int{10}, f.writer.ChunkSizes())

	next, err := f.operator.Restart(ctx, stopped.ID)
	require.NoError(t, err)
	restarted := f.waitFinished(t, next.ID)
	assert.Equal(t, model.BatchStatusCompleted, restarted.Status)
	assert.Equal(t, []int{10, 10, 5}, f.writer.ChunkSizes())
}

func TestStop_FinishedExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	je, err := f.launcher.LaunchAndWait(ctx, "customers", city("Springfield"))
	require.NoError(t, err)

	assert.Error(t, f.operator.Stop(ctx, je.ID))
}

func TestStop_ExecutionLeftByAnotherProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	instance, err := model.NewJobInstance("customers", city("Springfield").With("run.id", int64(5)))
	require.NoError(t, err)
	require.NoError(t, f.repo.SaveJobInstance(ctx, instance))
	je := model.NewJobExecution(instance.ID, "customers", instance.Parameters)
	je.MarkAsValidating()
	je.MarkAsRunning()
	require.NoError(t, f.repo.SaveJobExecution(ctx, je))

	_, err = f.launcher.Launch(ctx, "customers", instance.Parameters)
	assert.ErrorIs(t, err, exception.ErrJobRestart, "a running execution blocks a new launch")

	require.NoError(t, f.operator.Stop(ctx, je.ID))
	stored, err := f.explorer.GetJobExecution(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, stored.Status)
}

func TestRestart_RejectsNonRestartableExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	je, err := f.launcher.LaunchAndWait(ctx, "customers", city("Springfield"))
	require.NoError(t, err)

	_, err = f.operator.Restart(ctx, je.ID)
	assert.ErrorIs(t, err, exception.ErrJobRestart)

	_, err = f.operator.Restart(ctx, "missing")
	assert.ErrorIs(t, err, exception.ErrJobRestart)
}

func TestAbandon(t *testing.T) {
	f := newFixture(t)
	f.writer.FailOn[1] = errors.New("unavailable")
	ctx := context.Background()

	failed, err := f.launcher.LaunchAndWait(ctx, "customers", city("Springfield"))
	require.Error(t, err)

	require.NoError(t, f.operator.Abandon(ctx, failed.ID))
	require.NoError(t, f.operator.Abandon(ctx, failed.ID), "abandoning twice is a no-op")

	_, err = f.operator.Restart(ctx, failed.ID)
	assert.ErrorIs(t, err, exception.ErrJobRestart)
	_, err = f.launcher.Launch(ctx, "customers", failed.Parameters)
	assert.ErrorIs(t, err, exception.ErrJobRestart)

	completed, err := f.launcher.LaunchAndWait(ctx, "customers", city("Springfield"))
	require.NoError(t, err)
	assert.Error(t, f.operator.Abandon(ctx, completed.ID))
}

func TestRestartLast_FindsNewestRestartableExecution(t *testing.T) {
	f := newFixture(t)
	f.writer.FailOn[1] = errors.New("unavailable")
	ctx := context.Background()

	failed, err := f.launcher.LaunchAndWait(ctx, "customers", city("Springfield"))
	require.Error(t, err)

	next, err := f.operator.RestartLast(ctx, "customers", city("Springfield"))
	require.NoError(t, err)
	restarted := f.waitFinished(t, next.ID)
	assert.Equal(t, failed.JobInstanceID, restarted.JobInstanceID)
	assert.Equal(t, model.BatchStatusCompleted, restarted.Status)

	_, err = f.operator.RestartLast(ctx, "customers", city("Shelbyville"))
	assert.ErrorIs(t, err, exception.ErrJobRestart)
}

func TestJobScheduler_RejectsInvalidExpression(t *testing.T) {
	f := newFixture(t)
	s := usecase.NewJobScheduler(f.launcher)

	err := s.Schedule(context.Background(), "every minute", "customers", city("Springfield"))
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

func TestJobScheduler_LaunchesOnTick(t *testing.T) {
	f := newFixture(t)
	s := usecase.NewJobScheduler(f.launcher)
	finished := make(chan *model.JobExecution, 4)
	s.OnFinish = func(je *model.JobExecution, err error) {
		if err != nil {
			return
		}
		select {
		case finished <- je:
		default:
		}
	}

	require.NoError(t, s.Schedule(context.Background(), "@every 1s", "customers", city("Springfield")))
	s.Start()
	defer func() { <-s.Stop().Done() }()

	select {
	case je := <-finished:
		assert.Equal(t, model.BatchStatusCompleted, je.Status)
		s.Unschedule("customers")
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled launch did not run")
	}
}
