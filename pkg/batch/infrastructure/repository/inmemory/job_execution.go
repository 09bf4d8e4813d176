package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// SaveJobExecution persists a new JobExecution. Its step executions are saved separately.
func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; exists {
		return fmt.Errorf("JobExecution with ID %s already exists", jobExecution.ID)
	}
	r.jobExecutions[jobExecution.ID] = copyJobExecution(jobExecution)
	r.nextOrder(jobExecution.ID)
	return nil
}

// UpdateJobExecution replaces the stored JobExecution and bumps its version.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; !exists {
		return fmt.Errorf("JobExecution with ID %s not found for update: %w", jobExecution.ID, repository.ErrJobExecutionNotFound)
	}
	jobExecution.Version++
	r.jobExecutions[jobExecution.ID] = copyJobExecution(jobExecution)
	return nil
}

// FindJobExecutionByID finds a JobExecution and attaches its StepExecutions.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	je, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(je), nil
}

// FindLatestRestartableJobExecution finds the newest FAILED or STOPPED execution of an instance.
func (r *InMemoryJobRepository) FindLatestRestartableJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *model.JobExecution
	for _, je := range r.jobExecutions {
		if je.JobInstanceID != jobInstanceID || !je.Status.IsRestartable() {
			continue
		}
		if latest == nil || r.order[je.ID] > r.order[latest.ID] {
			latest = je
		}
	}
	if latest == nil {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(latest), nil
}

// FindJobExecutionsByJobInstance returns the executions of an instance, newest first, without step executions.
func (r *InMemoryJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := make([]*model.JobExecution, 0)
	for _, je := range r.jobExecutions {
		if je.JobInstanceID == jobInstance.ID {
			executions = append(executions, copyJobExecution(je))
		}
	}
	sort.Slice(executions, func(i, j int) bool {
		return r.order[executions[i].ID] > r.order[executions[j].ID]
	})
	return executions, nil
}

// withSteps must be called with mu held.
func (r *InMemoryJobRepository) withSteps(je *model.JobExecution) *model.JobExecution {
	c := copyJobExecution(je)
	c.StepExecutions = make([]*model.StepExecution, 0)
	for _, se := range r.stepsOf(je.ID) {
		c.AddStepExecution(se)
	}
	return c
}

// stepsOf must be called with mu held.
func (r *InMemoryJobRepository) stepsOf(jobExecutionID string) []*model.StepExecution {
	steps := make([]*model.StepExecution, 0)
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == jobExecutionID {
			steps = append(steps, copyStepExecution(se))
		}
	}
	sort.Slice(steps, func(i, j int) bool {
		return r.order[steps[i].ID] < r.order[steps[j].ID]
	})
	return steps
}
