package inmemory

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// SaveStepExecution persists a new StepExecution.
func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stepExecutions[stepExecution.ID]; exists {
		return fmt.Errorf("StepExecution with ID %s already exists", stepExecution.ID)
	}
	r.stepExecutions[stepExecution.ID] = copyStepExecution(stepExecution)
	r.nextOrder(stepExecution.ID)
	return nil
}

// UpdateStepExecution replaces the stored StepExecution. Inside a transaction the
// replacement happens on commit.
func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.RLock()
	_, exists := r.stepExecutions[stepExecution.ID]
	r.mu.RUnlock()
	if !exists {
		return fmt.Errorf("StepExecution with ID %s not found for update: %w", stepExecution.ID, repository.ErrStepExecutionNotFound)
	}

	stepExecution.Version++
	snapshot := copyStepExecution(stepExecution)
	applyInTx(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.stepExecutions[snapshot.ID] = snapshot
	})
	return nil
}

// FindStepExecutionByID finds a StepExecution by its ID.
func (r *InMemoryJobRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	se, ok := r.stepExecutions[id]
	if !ok {
		return nil, repository.ErrStepExecutionNotFound
	}
	return copyStepExecution(se), nil
}

// FindStepExecutionsByJobExecutionID returns the step executions of a job execution in start order.
func (r *InMemoryJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.stepsOf(jobExecutionID), nil
}
