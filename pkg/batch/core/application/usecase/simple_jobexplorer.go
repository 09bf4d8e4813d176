package usecase

import (
	"context"
	"errors"
	"fmt"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	incrementer "github.com/tigerroll/chunkbatch/pkg/batch/core/support/incrementer"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const explorerModule = "job_explorer"

// SimpleJobExplorer implements JobExplorer on a JobRepository.
type SimpleJobExplorer struct {
	jobRepository repository.JobRepository
}

var (
	_ JobExplorer             = (*SimpleJobExplorer)(nil)
	_ incrementer.RunIDSeeder = (*SimpleJobExplorer)(nil)
)

// NewSimpleJobExplorer creates a SimpleJobExplorer.
func NewSimpleJobExplorer(jobRepository repository.JobRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{jobRepository: jobRepository}
}

// GetJobExecution returns the execution executionID with its step executions.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("Failed to retrieve JobExecution (ID: %s)", executionID), err, false, false)
	}
	logger.Debugf("Retrieved JobExecution (ID: %s, Status: %s).", executionID, jobExecution.Status)
	return jobExecution, nil
}

// GetJobExecutions returns the executions of instanceID, newest first.
// An unknown instance yields an empty list.
func (e *SimpleJobExplorer) GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error) {
	jobInstance, err := e.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if errors.Is(err, repository.ErrJobInstanceNotFound) {
		logger.Warnf("JobInstance (ID: %s) not found.", instanceID)
		return []*model.JobExecution{}, nil
	}
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("Failed to retrieve JobInstance (ID: %s)", instanceID), err, false, false)
	}

	jobExecutions, err := e.jobRepository.FindJobExecutionsByJobInstance(ctx, jobInstance)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("Failed to retrieve JobExecutions of JobInstance (ID: %s)", instanceID), err, false, false)
	}
	return jobExecutions, nil
}

// GetLastJobExecution returns the newest execution of the instance identified by jobName
// and the identifying subset of params. It returns nil, nil when there is none.
func (e *SimpleJobExplorer) GetLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	jobInstance, err := e.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if errors.Is(err, repository.ErrJobInstanceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("Failed to search JobInstance of job '%s'", jobName), err, false, false)
	}
	jobExecutions, err := e.jobRepository.FindJobExecutionsByJobInstance(ctx, jobInstance)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("Failed to retrieve JobExecutions of JobInstance (ID: %s)", jobInstance.ID), err, false, false)
	}
	if len(jobExecutions) == 0 {
		return nil, nil
	}
	return e.GetJobExecution(ctx, jobExecutions[0].ID)
}

// GetJobInstance returns the instance instanceID.
func (e *SimpleJobExplorer) GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error) {
	jobInstance, err := e.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("Failed to retrieve JobInstance (ID: %s)", instanceID), err, false, false)
	}
	return jobInstance, nil
}

// FindJobInstances returns the instances of jobName, newest first.
func (e *SimpleJobExplorer) FindJobInstances(ctx context.Context, jobName string) ([]*model.JobInstance, error) {
	jobInstances, err := e.jobRepository.FindJobInstancesByJobName(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("Failed to retrieve JobInstances of job '%s'", jobName), err, false, false)
	}
	logger.Debugf("Retrieved %d JobInstances of job '%s'.", len(jobInstances), jobName)
	return jobInstances, nil
}

// GetJobNames returns the names of all jobs with stored instances.
func (e *SimpleJobExplorer) GetJobNames(ctx context.Context) ([]string, error) {
	jobNames, err := e.jobRepository.GetJobNames(ctx)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, "Failed to retrieve job names", err, false, false)
	}
	return jobNames, nil
}

// GetMaxRunID returns the highest integer value of key among the instances of jobName.
// It seeds the run id sequence so that a new process continues where the store left off.
func (e *SimpleJobExplorer) GetMaxRunID(ctx context.Context, jobName string, key string) (int64, error) {
	jobInstances, err := e.FindJobInstances(ctx, jobName)
	if err != nil {
		return 0, err
	}
	var maxID int64
	for _, ji := range jobInstances {
		if id, ok := ji.Parameters.GetInt64(key); ok && id > maxID {
			maxID = id
		}
	}
	return maxID, nil
}
