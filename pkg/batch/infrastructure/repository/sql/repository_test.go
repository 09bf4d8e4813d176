package sql_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	sqlrepo "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/test"
)

func newRepository(t *testing.T) (*sqlrepo.SQLJobRepository, *gormadapter.GormTransactionManager) {
	t.Helper()
	conn := test.NewSQLiteConnection(t, "metadata")
	require.NoError(t, sqlrepo.Migrate(context.Background(), conn))
	resolver := test.NewTestSingleConnectionResolver(conn)
	return sqlrepo.NewSQLJobRepository(resolver, "metadata"), gormadapter.NewGormTransactionManager(resolver, "metadata")
}

func saveInstance(t *testing.T, repo repository.JobRepository, jobName string, params model.JobParameters, created time.Time) *model.JobInstance {
	t.Helper()
	ji, err := model.NewJobInstance(jobName, params)
	require.NoError(t, err)
	ji.CreateTime = created
	require.NoError(t, repo.SaveJobInstance(context.Background(), ji))
	return ji
}

func TestMigrate_IsRepeatable(t *testing.T) {
	conn := test.NewSQLiteConnection(t, "metadata")
	require.NoError(t, sqlrepo.Migrate(context.Background(), conn))
	require.NoError(t, sqlrepo.Migrate(context.Background(), conn))
}

func TestJobInstance_FindByIdentifyingParameters(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepository(t)

	params := model.NewJobParameters().With("city", "Springfield").With("run.id", int64(1))
	ji := saveInstance(t, repo, "customers", params, time.Now())

	found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "customers", params.WithNonIdentifying("verbose", true))
	require.NoError(t, err)
	assert.Equal(t, ji.ID, found.ID)
	assert.Equal(t, ji.ParametersHash, found.ParametersHash)
	runID, ok := found.Parameters.GetInt64("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(1), runID)

	_, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "customers", params.With("run.id", int64(2)))
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)

	_, err = repo.FindJobInstanceByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
}

func TestJobInstance_ListingQueries(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepository(t)

	base := time.Now().Add(-time.Hour)
	first := saveInstance(t, repo, "customers", model.NewJobParameters().With("run.id", int64(1)), base)
	second := saveInstance(t, repo, "customers", model.NewJobParameters().With("run.id", int64(2)), base.Add(time.Minute))
	saveInstance(t, repo, "accounts", model.NewJobParameters(), base)

	instances, err := repo.FindJobInstancesByJobName(ctx, "customers")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, second.ID, instances[0].ID)
	assert.Equal(t, first.ID, instances[1].ID)

	count, err := repo.GetJobInstanceCount(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts", "customers"}, names)
}

func TestJobInstance_UpdateBumpsVersion(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepository(t)
	ji := saveInstance(t, repo, "customers", model.NewJobParameters(), time.Now())

	require.NoError(t, repo.UpdateJobInstance(ctx, ji))
	assert.Equal(t, 1, ji.Version)

	stale := *ji
	stale.Version = 0
	err := repo.UpdateJobInstance(ctx, &stale)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
}

func TestJobExecution_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepository(t)

	params := model.NewJobParameters().With("city", "Springfield").WithNonIdentifying("verbose", true)
	ji := saveInstance(t, repo, "customers", params, time.Now())

	je := model.NewJobExecution(ji.ID, "customers", params)
	je.ExecutionContext.Put("note", "first run")
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	se := model.NewStepExecution(model.NewID(), je, "load")
	require.NoError(t, repo.SaveStepExecution(ctx, se))

	je.MarkAsValidating()
	je.MarkAsRunning()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)

	loaded, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusRunning, loaded.Status)
	assert.Equal(t, 1, loaded.Version)
	assert.True(t, loaded.Parameters.IsIdentifying("city"))
	assert.False(t, loaded.Parameters.IsIdentifying("verbose"))
	note, _ := loaded.ExecutionContext.GetString("note")
	assert.Equal(t, "first run", note)
	require.Len(t, loaded.StepExecutions, 1)
	assert.Equal(t, "load", loaded.StepExecutions[0].StepName)
	assert.Same(t, loaded, loaded.StepExecutions[0].JobExecution)

	_, err = repo.FindJobExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
}

func TestJobExecution_StaleUpdateIsOptimisticLockingFailure(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepository(t)
	ji := saveInstance(t, repo, "customers", model.NewJobParameters(), time.Now())
	je := model.NewJobExecution(ji.ID, "customers", model.NewJobParameters())
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	other, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	other.MarkAsAbandoned()
	require.NoError(t, repo.UpdateJobExecution(ctx, other))

	je.MarkAsValidating()
	err = repo.UpdateJobExecution(ctx, je)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, 0, je.Version)
}

func TestJobExecution_NewestFirstAndLatestRestartable(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepository(t)
	ji := saveInstance(t, repo, "customers", model.NewJobParameters(), time.Now())

	base := time.Now().Add(-time.Hour)
	failed := model.NewJobExecution(ji.ID, "customers", model.NewJobParameters())
	failed.CreateTime = base
	failed.MarkAsValidating()
	failed.MarkAsRunning()
	failed.MarkAsFailed(assert.AnError)
	require.NoError(t, repo.SaveJobExecution(ctx, failed))

	running := model.NewJobExecution(ji.ID, "customers", model.NewJobParameters())
	running.CreateTime = base.Add(time.Minute)
	require.NoError(t, repo.SaveJobExecution(ctx, running))

	executions, err := repo.FindJobExecutionsByJobInstance(ctx, ji)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, running.ID, executions[0].ID)
	assert.Equal(t, failed.ID, executions[1].ID)
	assert.Len(t, executions[1].Failures, 1)

	latest, err := repo.FindLatestRestartableJobExecution(ctx, ji.ID)
	require.NoError(t, err)
	assert.Equal(t, failed.ID, latest.ID)
}

func TestCheckpoint_CommitsWithTransaction(t *testing.T) {
	ctx := context.Background()
	repo, txManager := newRepository(t)
	_, se := test.NewPersistedStepExecution(t, repo, "customers", "load", model.NewJobParameters())

	// A rolled back chunk leaves neither checkpoint nor step update behind.
	t1, err := txManager.Begin(ctx)
	require.NoError(t, err)
	se.ExecutionContext.Put("reader.index", 10)
	se.CommitCount = 1
	require.NoError(t, repo.SaveCheckpointData(tx.WithTx(ctx, t1), model.NewCheckpointData(se.ID, se.ExecutionContext)))
	require.NoError(t, repo.UpdateStepExecution(tx.WithTx(ctx, t1), se))
	require.NoError(t, txManager.Rollback(t1))
	assert.Equal(t, 0, se.Version)

	_, err = repo.FindCheckpointData(ctx, se.ID)
	assert.ErrorIs(t, err, repository.ErrCheckpointDataNotFound)
	stored, err := repo.FindStepExecutionByID(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CommitCount)

	// The retried chunk commits both, and a later chunk replaces the checkpoint.
	for _, index := range []int{10, 20} {
		tn, err := txManager.Begin(ctx)
		require.NoError(t, err)
		se.ExecutionContext.Put("reader.index", index)
		se.CommitCount = index / 10
		require.NoError(t, repo.SaveCheckpointData(tx.WithTx(ctx, tn), model.NewCheckpointData(se.ID, se.ExecutionContext)))
		require.NoError(t, repo.UpdateStepExecution(tx.WithTx(ctx, tn), se))
		require.NoError(t, txManager.Commit(tn))
	}
	assert.Equal(t, 2, se.Version)

	checkpoint, err := repo.FindCheckpointData(ctx, se.ID)
	require.NoError(t, err)
	index, ok := checkpoint.ExecutionContext.GetInt("reader.index")
	require.True(t, ok)
	assert.Equal(t, 20, index)

	stored, err = repo.FindStepExecutionByID(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CommitCount)
	assert.Equal(t, 2, stored.Version)

	steps, err := repo.FindStepExecutionsByJobExecutionID(ctx, se.JobExecutionID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, se.ID, steps[0].ID)
}

func TestMissingTablesReadAsNotFound(t *testing.T) {
	ctx := context.Background()
	conn := test.NewSQLiteConnection(t, "metadata")
	repo := sqlrepo.NewSQLJobRepository(test.NewTestSingleConnectionResolver(conn), "metadata")

	_, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "customers", model.NewJobParameters())
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	count, err := repo.GetJobInstanceCount(ctx, "customers")
	require.NoError(t, err)
	assert.Zero(t, count)
}
