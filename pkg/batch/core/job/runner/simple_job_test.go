package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	itemcomp "github.com/tigerroll/chunkbatch/pkg/batch/component/item"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/support/validator"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/test"
)

type validatorFunc func(model.JobParameters) error

func (f validatorFunc) Validate(params model.JobParameters) error { return f(params) }

type recordingJobListener struct {
	before, after int
	afterStatus   model.BatchStatus
}

func (l *recordingJobListener) BeforeJob(ctx context.Context, je *model.JobExecution) { l.before++ }

func (l *recordingJobListener) AfterJob(ctx context.Context, je *model.JobExecution) {
	l.after++
	l.afterStatus = je.Status
}

type harness struct {
	repo    *inmemory.InMemoryJobRepository
	writers map[string]*test.RecordingWriter[int]
	builds  map[string]int
}

func newHarness() *harness {
	return &harness{
		repo:    inmemory.NewInMemoryJobRepository(),
		writers: make(map[string]*test.RecordingWriter[int]),
		builds:  make(map[string]int),
	}
}

// step returns a builder of a chunk step over 1..n with commit interval 10.
func (h *harness) step(name string, n int) port.StepBuilder {
	w := test.NewRecordingWriter[int]()
	h.writers[name] = w
	return port.NewStepBuilder(name, func(ctx context.Context, params model.JobParameters) (port.Step, error) {
		h.builds[name]++
		items := make([]int, n)
		for i := range items {
			items[i] = i + 1
		}
		return item.NewChunkStep(item.Params[int, int]{
			Name:           name,
			Reader:         test.NewSliceReader(items),
			Processor:      itemcomp.NewPassThroughItemProcessor[int](),
			Writer:         w,
			CommitInterval: 10,
			JobRepository:  h.repo,
		})
	})
}

func (h *harness) execution(t *testing.T, jobName string, params model.JobParameters) *model.JobExecution {
	t.Helper()
	instance, err := model.NewJobInstance(jobName, params)
	require.NoError(t, err)
	require.NoError(t, h.repo.SaveJobInstance(context.Background(), instance))
	je := model.NewJobExecution(instance.ID, jobName, params)
	require.NoError(t, h.repo.SaveJobExecution(context.Background(), je))
	return je
}

func TestSimpleJob_RunsStepsInOrder(t *testing.T) {
	h := newHarness()
	listener := &recordingJobListener{}
	job, err := runner.NewSimpleJob(runner.SimpleJobParams{
		Name:          "twoSteps",
		Steps:         []port.StepBuilder{h.step("first", 25), h.step("second", 3)},
		JobRepository: h.repo,
		Listeners:     []port.JobExecutionListener{listener},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, job.StepNames())

	params := model.NewJobParameters()
	je := h.execution(t, "twoSteps", params)
	require.NoError(t, job.Run(context.Background(), je, params))

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, 0, je.ExitCode())
	assert.Equal(t, []int{10, 10, 5}, h.writers["first"].ChunkSizes())
	assert.Equal(t, []int{3}, h.writers["second"].ChunkSizes())
	require.Len(t, je.StepExecutions, 2)
	assert.Equal(t, "first", je.StepExecutions[0].StepName)
	assert.Equal(t, "second", je.StepExecutions[1].StepName)
	assert.Equal(t, 1, listener.before)
	assert.Equal(t, 1, listener.after)

	stored, err := h.repo.FindJobExecutionByID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Equal(t, "second", stored.CurrentStepName)
}

func TestSimpleJob_ValidationFailureStartsNoStep(t *testing.T) {
	h := newHarness()
	v, err := validator.NewDefaultJobParametersValidator([]string{"city"}, []string{"run.id"})
	require.NoError(t, err)

	listener := &recordingJobListener{}
	job, err := runner.NewSimpleJob(runner.SimpleJobParams{
		Name:          "cityJob",
		Validator:     v,
		Steps:         []port.StepBuilder{h.step("customers", 25)},
		JobRepository: h.repo,
		Listeners:     []port.JobExecutionListener{listener},
	})
	require.NoError(t, err)

	params := model.NewJobParameters().With("run.id", int64(1))
	je := h.execution(t, "cityJob", params)
	err = job.Run(context.Background(), je, params)

	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrMissingParameter))
	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Equal(t, 1, je.ExitCode())
	assert.Empty(t, je.StepExecutions)
	assert.Zero(t, h.builds["customers"], "steps are built only after validation")
	assert.Empty(t, h.writers["customers"].Chunks)
	require.Len(t, je.Failures, 1)
	assert.Contains(t, je.Failures[0], "MissingParameterError")
	assert.Contains(t, je.Failures[0], "city")
	assert.Zero(t, listener.before)
	assert.Equal(t, 1, listener.after)
	assert.Equal(t, model.BatchStatusFailed, listener.afterStatus)

	stored, err := h.repo.FindJobExecutionByID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, stored.Status)
}

func TestSimpleJob_PersistsValidatingBeforeValidation(t *testing.T) {
	h := newHarness()
	var je *model.JobExecution
	var seen model.BatchStatus
	job, err := runner.NewSimpleJob(runner.SimpleJobParams{
		Name: "observed",
		Validator: validatorFunc(func(model.JobParameters) error {
			stored, err := h.repo.FindJobExecutionByID(context.Background(), je.ID)
			require.NoError(t, err)
			seen = stored.Status
			return nil
		}),
		Steps:         []port.StepBuilder{h.step("only", 1)},
		JobRepository: h.repo,
	})
	require.NoError(t, err)

	je = h.execution(t, "observed", model.NewJobParameters())
	require.NoError(t, job.Run(context.Background(), je, model.NewJobParameters()))
	assert.Equal(t, model.BatchStatusValidating, seen)
}

func TestSimpleJob_BuildFailureIsConfigurationError(t *testing.T) {
	h := newHarness()
	broken := port.NewStepBuilder("broken", func(context.Context, model.JobParameters) (port.Step, error) {
		return nil, errors.New("query provider rejected parameters")
	})
	job, err := runner.NewSimpleJob(runner.SimpleJobParams{
		Name:          "brokenJob",
		Steps:         []port.StepBuilder{h.step("fine", 5), broken},
		JobRepository: h.repo,
	})
	require.NoError(t, err)

	je := h.execution(t, "brokenJob", model.NewJobParameters())
	err = job.Run(context.Background(), je, model.NewJobParameters())

	assert.ErrorIs(t, err, exception.ErrConfiguration)
	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Empty(t, je.StepExecutions, "no step runs when any step fails to build")
	assert.Empty(t, h.writers["fine"].Chunks)
}

func TestSimpleJob_FailedStepSkipsLaterSteps(t *testing.T) {
	h := newHarness()
	first := h.step("first", 25)
	h.writers["first"].FailOn[2] = errors.New("disk full")
	job, err := runner.NewSimpleJob(runner.SimpleJobParams{
		Name:          "failing",
		Steps:         []port.StepBuilder{first, h.step("second", 3)},
		JobRepository: h.repo,
	})
	require.NoError(t, err)

	je := h.execution(t, "failing", model.NewJobParameters())
	err = job.Run(context.Background(), je, model.NewJobParameters())

	assert.ErrorIs(t, err, exception.ErrSinkWrite)
	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Equal(t, []int{10}, h.writers["first"].ChunkSizes())
	assert.Empty(t, h.writers["second"].Chunks)
	require.Len(t, je.StepExecutions, 1)
	assert.Equal(t, model.BatchStatusFailed, je.StepExecutions[0].Status)
	assert.Equal(t, "first", je.CurrentStepName)
}

func TestSimpleJob_RestartSkipsCompletedSteps(t *testing.T) {
	h := newHarness()
	first := h.step("first", 25)
	second := h.step("second", 25)
	h.writers["second"].FailOn[2] = errors.New("disk full")
	job, err := runner.NewSimpleJob(runner.SimpleJobParams{
		Name:          "restartable",
		Steps:         []port.StepBuilder{first, second},
		JobRepository: h.repo,
	})
	require.NoError(t, err)

	params := model.NewJobParameters()
	failed := h.execution(t, "restartable", params)
	require.Error(t, job.Run(context.Background(), failed, params))
	require.Len(t, failed.StepExecutions, 2)

	restart := model.NewJobExecution(failed.JobInstanceID, "restartable", params)
	for _, se := range failed.StepExecutions {
		restart.AddStepExecution(se.CopyForRestart(restart.ID))
	}
	require.NoError(t, h.repo.SaveJobExecution(context.Background(), restart))
	for _, se := range restart.StepExecutions {
		require.NoError(t, h.repo.SaveStepExecution(context.Background(), se))
	}

	require.NoError(t, job.Run(context.Background(), restart, params))
	assert.Equal(t, model.BatchStatusCompleted, restart.Status)
	assert.Equal(t, []int{10, 10, 5}, h.writers["first"].ChunkSizes(), "the completed step does not run again")
	assert.Equal(t, []int{10, 10, 5}, h.writers["second"].ChunkSizes(), "the failed step resumes after its last commit")
	assert.Equal(t, model.BatchStatusCompleted, restart.StepExecutions[0].Status)
	assert.Equal(t, 15, restart.StepExecutions[1].WriteCount, "counters belong to the execution that did the work")
}

func TestSimpleJob_StopRequestedBeforeFirstStep(t *testing.T) {
	h := newHarness()
	job, err := runner.NewSimpleJob(runner.SimpleJobParams{
		Name:          "stopped",
		Steps:         []port.StepBuilder{h.step("only", 5)},
		JobRepository: h.repo,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	je := h.execution(t, "stopped", model.NewJobParameters())
	require.NoError(t, job.Run(ctx, je, model.NewJobParameters()))

	assert.Equal(t, model.BatchStatusStopped, je.Status)
	assert.Equal(t, 2, je.ExitCode())
	assert.Empty(t, h.writers["only"].Chunks)
}

func TestSimpleJob_StoppedStepStopsJob(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopAfterFirstChunk := port.NewStepBuilder("first", func(context.Context, model.JobParameters) (port.Step, error) {
		w := test.NewRecordingWriter[int]()
		h.writers["first"] = w
		return item.NewChunkStep(item.Params[int, int]{
			Name:           "first",
			Reader:         test.NewSliceReader([]int{1, 2, 3, 4, 5}),
			Processor:      itemcomp.NewPassThroughItemProcessor[int](),
			Writer:         w,
			CommitInterval: 2,
			JobRepository:  h.repo,
			ChunkListeners: []port.ChunkListener{cancelOnCommit{cancel}},
		})
	})
	job, err := runner.NewSimpleJob(runner.SimpleJobParams{
		Name:          "stopping",
		Steps:         []port.StepBuilder{stopAfterFirstChunk, h.step("second", 5)},
		JobRepository: h.repo,
	})
	require.NoError(t, err)

	je := h.execution(t, "stopping", model.NewJobParameters())
	require.NoError(t, job.Run(ctx, je, model.NewJobParameters()))

	assert.Equal(t, model.BatchStatusStopped, je.Status)
	assert.Equal(t, []int{2}, h.writers["first"].ChunkSizes())
	assert.Empty(t, h.writers["second"].Chunks)
}

type cancelOnCommit struct{ cancel context.CancelFunc }

func (c cancelOnCommit) BeforeChunk(context.Context, *model.StepExecution)            {}
func (c cancelOnCommit) AfterChunk(context.Context, *model.StepExecution)             { c.cancel() }
func (c cancelOnCommit) AfterChunkError(context.Context, *model.StepExecution, error) {}

func TestNewSimpleJob_Configuration(t *testing.T) {
	h := newHarness()
	cases := map[string]runner.SimpleJobParams{
		"no name":         {Steps: []port.StepBuilder{h.step("a", 1)}, JobRepository: h.repo},
		"no steps":        {Name: "job", JobRepository: h.repo},
		"no repository":   {Name: "job", Steps: []port.StepBuilder{h.step("a", 1)}},
		"duplicate steps": {Name: "job", Steps: []port.StepBuilder{h.step("a", 1), h.step("a", 2)}, JobRepository: h.repo},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := runner.NewSimpleJob(p)
			assert.ErrorIs(t, err, exception.ErrConfiguration)
		})
	}
}
