// Package usecase contains the entry points of the batch engine: launching jobs,
// operating on running executions and querying execution metadata.
package usecase

import (
	"context"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// JobLauncher launches jobs.
type JobLauncher interface {
	// Launch starts jobName with params and returns without waiting for the job.
	// The returned error reports a failure of the launch itself, not of the job.
	Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// LaunchAndWait starts jobName and blocks until the execution is in a terminal status.
	// The returned error is the launch error or the failure that ended the job.
	LaunchAndWait(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
}

// JobOperator controls job executions.
type JobOperator interface {
	// Restart resumes a FAILED or STOPPED execution in a new execution of the same instance.
	Restart(ctx context.Context, executionID string) (*model.JobExecution, error)

	// Stop requests a running execution to stop at the next chunk boundary.
	Stop(ctx context.Context, executionID string) error

	// Abandon marks a FAILED or STOPPED execution as never to be restarted.
	Abandon(ctx context.Context, executionID string) error
}

// JobExplorer is a read-only view of the execution metadata.
type JobExplorer interface {
	// GetJobExecution returns an execution with its step executions.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)

	// GetJobExecutions returns the executions of an instance, newest first.
	GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error)

	// GetLastJobExecution returns the newest execution of the instance identified by jobName and params.
	GetLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// GetJobInstance returns an instance by ID.
	GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error)

	// FindJobInstances returns the instances of jobName, newest first.
	FindJobInstances(ctx context.Context, jobName string) ([]*model.JobInstance, error)

	// GetJobNames returns the names of all jobs with stored instances.
	GetJobNames(ctx context.Context) ([]string, error)

	// GetMaxRunID returns the highest integer value of key among the instances of jobName, or 0.
	GetMaxRunID(ctx context.Context, jobName string, key string) (int64, error)
}
