package inmemory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
)

func newInstance(t *testing.T, repo repository.JobRepository, jobName string, params model.JobParameters) *model.JobInstance {
	t.Helper()
	ji, err := model.NewJobInstance(jobName, params)
	require.NoError(t, err)
	require.NoError(t, repo.SaveJobInstance(context.Background(), ji))
	return ji
}

func TestJobInstance_FindByIdentifyingParameters(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()

	params := model.NewJobParameters().With("city", "Springfield").With("run.id", int64(1))
	ji := newInstance(t, repo, "job", params)

	found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "job", params.WithNonIdentifying("verbose", true))
	require.NoError(t, err)
	assert.Equal(t, ji.ID, found.ID)

	_, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "job", params.With("run.id", int64(2)))
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)

	dup, err := model.NewJobInstance("job", params)
	require.NoError(t, err)
	assert.Error(t, repo.SaveJobInstance(ctx, dup), "same identity must not be stored twice")
}

func TestJobInstance_ListingOrder(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()

	first := newInstance(t, repo, "job", model.NewJobParameters().With("run.id", int64(1)))
	second := newInstance(t, repo, "job", model.NewJobParameters().With("run.id", int64(2)))
	newInstance(t, repo, "other", model.NewJobParameters())

	instances, err := repo.FindJobInstancesByJobName(ctx, "job")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, second.ID, instances[0].ID)
	assert.Equal(t, first.ID, instances[1].ID)

	count, err := repo.GetJobInstanceCount(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job", "other"}, names)
}

func TestJobExecution_StoredAsCopy(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	ji := newInstance(t, repo, "job", model.NewJobParameters())

	je := model.NewJobExecution(ji.ID, "job", ji.Parameters)
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	se := model.NewStepExecution(model.NewID(), je, "step1")
	require.NoError(t, repo.SaveStepExecution(ctx, se))

	je.MarkAsValidating()
	found, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCreated, found.Status, "unsaved changes must not leak into the store")
	require.Len(t, found.StepExecutions, 1)
	assert.Equal(t, "step1", found.StepExecutions[0].StepName)
	assert.Same(t, found, found.StepExecutions[0].JobExecution)

	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)
	found, err = repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusValidating, found.Status)
}

func TestJobExecution_LatestRestartable(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	ji := newInstance(t, repo, "job", model.NewJobParameters())

	_, err := repo.FindLatestRestartableJobExecution(ctx, ji.ID)
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)

	failed := model.NewJobExecution(ji.ID, "job", ji.Parameters)
	failed.Status = model.BatchStatusFailed
	require.NoError(t, repo.SaveJobExecution(ctx, failed))

	stopped := model.NewJobExecution(ji.ID, "job", ji.Parameters)
	stopped.Status = model.BatchStatusStopped
	require.NoError(t, repo.SaveJobExecution(ctx, stopped))

	completed := model.NewJobExecution(ji.ID, "job", ji.Parameters)
	completed.Status = model.BatchStatusCompleted
	require.NoError(t, repo.SaveJobExecution(ctx, completed))

	latest, err := repo.FindLatestRestartableJobExecution(ctx, ji.ID)
	require.NoError(t, err)
	assert.Equal(t, stopped.ID, latest.ID)

	all, err := repo.FindJobExecutionsByJobInstance(ctx, ji)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, completed.ID, all[0].ID)
}

func TestCheckpointAndStep_DeferredUntilCommit(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	tm := tx.NewNoopTransactionManager()

	je := model.NewJobExecution("instance", "job", model.NewJobParameters())
	se := model.NewStepExecution(model.NewID(), je, "step")
	require.NoError(t, repo.SaveStepExecution(ctx, se))

	save := func(count int) tx.Tx {
		txn, err := tm.Begin(ctx)
		require.NoError(t, err)
		txCtx := tx.WithTx(ctx, txn)
		ec := model.NewExecutionContext()
		ec.Put("reader.read.count", count)
		require.NoError(t, repo.SaveCheckpointData(txCtx, model.NewCheckpointData(se.ID, ec)))
		se.WriteCount = count
		require.NoError(t, repo.UpdateStepExecution(txCtx, se))
		return txn
	}

	require.NoError(t, tm.Commit(save(10)))
	require.NoError(t, tm.Rollback(save(20)))

	cp, err := repo.FindCheckpointData(ctx, se.ID)
	require.NoError(t, err)
	count, ok := cp.ExecutionContext.GetInt("reader.read.count")
	require.True(t, ok)
	assert.Equal(t, 10, count)

	stored, err := repo.FindStepExecutionByID(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.WriteCount)

	_, err = repo.FindCheckpointData(ctx, "unknown")
	assert.ErrorIs(t, err, repository.ErrCheckpointDataNotFound)
}

func TestCheckpoint_WithoutTransactionAppliesImmediately(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()

	ec := model.NewExecutionContext()
	ec.Put("reader.page", 2)
	require.NoError(t, repo.SaveCheckpointData(ctx, model.NewCheckpointData("step-1", ec)))

	ec.Put("reader.page", 3)
	cp, err := repo.FindCheckpointData(ctx, "step-1")
	require.NoError(t, err)
	page, _ := cp.ExecutionContext.GetInt("reader.page")
	assert.Equal(t, 2, page)
}
