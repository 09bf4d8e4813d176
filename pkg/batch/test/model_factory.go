package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// NewTestJobParameters creates identifying JobParameters for testing.
func NewTestJobParameters(params map[string]interface{}) model.JobParameters {
	return model.NewJobParametersFrom(params)
}

// NewTestExecutionContext creates an ExecutionContext for testing.
func NewTestExecutionContext(data map[string]interface{}) model.ExecutionContext {
	ec := model.NewExecutionContext()
	for k, v := range data {
		ec.Put(k, v)
	}
	return ec
}

// NewPersistedStepExecution saves a job instance, a RUNNING job execution and a CREATED
// step execution named stepName in repo, and returns both executions.
func NewPersistedStepExecution(t *testing.T, repo repository.JobRepository, jobName, stepName string, params model.JobParameters) (*model.JobExecution, *model.StepExecution) {
	t.Helper()
	ctx := context.Background()

	instance, err := model.NewJobInstance(jobName, params)
	require.NoError(t, err)
	require.NoError(t, repo.SaveJobInstance(ctx, instance))

	je := model.NewJobExecution(instance.ID, jobName, params)
	je.MarkAsValidating()
	je.MarkAsRunning()
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	se := model.NewStepExecution(model.NewID(), je, stepName)
	require.NoError(t, repo.SaveStepExecution(ctx, se))
	return je, se
}
