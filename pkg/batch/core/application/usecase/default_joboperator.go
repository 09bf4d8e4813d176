package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const operatorModule = "job_operator"

// DefaultJobOperator is the default implementation of JobOperator. Stop signals
// executions through the launcher that started them.
type DefaultJobOperator struct {
	jobRepository repository.JobRepository
	jobLauncher   *SimpleJobLauncher
	jobExplorer   JobExplorer
}

var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator creates a DefaultJobOperator.
func NewDefaultJobOperator(jobRepository repository.JobRepository, jobLauncher *SimpleJobLauncher, jobExplorer JobExplorer) *DefaultJobOperator {
	return &DefaultJobOperator{
		jobRepository: jobRepository,
		jobLauncher:   jobLauncher,
		jobExplorer:   jobExplorer,
	}
}

// Restart launches a new execution of the instance of executionID. The execution must be
// FAILED or STOPPED; anything else is a JobRestartError.
func (o *DefaultJobOperator) Restart(ctx context.Context, executionID string) (*model.JobExecution, error) {
	logger.Infof("JobOperator: restarting JobExecution (ID: %s).", executionID)

	previous, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewJobRestartError(operatorModule, fmt.Sprintf("failed to load JobExecution (ID: %s)", executionID), err)
	}
	if !previous.Status.IsRestartable() {
		return nil, exception.NewJobRestartError(operatorModule,
			fmt.Sprintf("JobExecution (ID: %s) is not in a restartable state (current status: %s)", executionID, previous.Status), nil)
	}

	// The launcher finds the same instance from the identifying parameters and resumes it.
	next, err := o.jobLauncher.Launch(ctx, previous.JobName, previous.Parameters)
	if err != nil {
		return nil, err
	}
	logger.Infof("Restart of Job '%s' (Execution ID: %s) started. New execution ID: %s", previous.JobName, executionID, next.ID)
	return next, nil
}

// RestartLast restarts the newest FAILED or STOPPED execution of jobName whose
// identifying parameters include params. It is a JobRestartError when there is none.
func (o *DefaultJobOperator) RestartLast(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	instances, err := o.jobExplorer.FindJobInstances(ctx, jobName)
	if err != nil {
		return nil, err
	}
	wanted := params.IdentifyingParams()
	for _, instance := range instances {
		if !instance.Parameters.Contains(wanted) {
			continue
		}
		executions, err := o.jobExplorer.GetJobExecutions(ctx, instance.ID)
		if err != nil {
			return nil, err
		}
		if len(executions) > 0 && executions[0].Status.IsRestartable() {
			return o.Restart(ctx, executions[0].ID)
		}
	}
	return nil, exception.NewJobRestartError(operatorModule,
		fmt.Sprintf("no restartable execution of job '%s' with parameters %s", jobName, params.String()), nil)
}

// Stop asks a running execution to stop. The job observes the request at the next chunk
// boundary and ends STOPPED with the checkpoint of its last committed chunk.
//
// An unfinished execution that no worker of this process owns is left over from a
// terminated process; it is marked STOPPED directly so that it can be restarted.
func (o *DefaultJobOperator) Stop(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: stopping JobExecution (ID: %s).", executionID)

	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return exception.NewBatchError(operatorModule, fmt.Sprintf("Stop processing error: Failed to load JobExecution (ID: %s)", executionID), err, false, false)
	}
	if jobExecution.Status.IsFinished() {
		return exception.NewBatchErrorf(operatorModule, "Stop processing error: JobExecution (ID: %s) is already in a finished state (%s)", executionID, jobExecution.Status)
	}

	if cancel, ok := o.jobLauncher.GetCancelFunc(executionID); ok {
		cancel()
		logger.Infof("Sent stop signal to JobExecution (ID: %s).", executionID)
		return nil
	}

	logger.Warnf("JobExecution (ID: %s) is %s but not running in this process; marking it STOPPED.", executionID, jobExecution.Status)
	jobExecution.MarkAsStopped()
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return exception.NewBatchError(operatorModule, fmt.Sprintf("Stop processing error: Failed to update JobExecution (ID: %s)", executionID), err, false, false)
	}
	return nil
}

// Abandon marks a FAILED or STOPPED execution ABANDONED so that it is never restarted.
// Abandoning an ABANDONED execution is a no-op.
func (o *DefaultJobOperator) Abandon(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: abandoning JobExecution (ID: %s).", executionID)

	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return exception.NewBatchError(operatorModule, fmt.Sprintf("Abandon processing error: Failed to load JobExecution (ID: %s)", executionID), err, false, false)
	}

	switch {
	case jobExecution.Status == model.BatchStatusAbandoned:
		logger.Infof("JobExecution (ID: %s) is already ABANDONED.", executionID)
		return nil
	case jobExecution.Status.IsRunning():
		return exception.NewBatchErrorf(operatorModule, "Abandon processing error: JobExecution (ID: %s) is still running (%s)", executionID, jobExecution.Status)
	case !jobExecution.Status.IsRestartable():
		return exception.NewBatchErrorf(operatorModule, "Abandon processing error: JobExecution (ID: %s) is %s", executionID, jobExecution.Status)
	}

	jobExecution.MarkAsAbandoned()
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return exception.NewBatchError(operatorModule, fmt.Sprintf("Abandon processing error: Failed to update JobExecution (ID: %s)", executionID), err, false, false)
	}
	logger.Infof("Abandoned JobExecution (ID: %s).", executionID)
	return nil
}
