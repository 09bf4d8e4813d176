package inmemory

import (
	"context"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// SaveCheckpointData replaces the checkpoint of a step execution. Inside a
// transaction the replacement happens on commit.
func (r *InMemoryJobRepository) SaveCheckpointData(ctx context.Context, data *model.CheckpointData) error {
	snapshot := model.NewCheckpointData(data.StepExecutionID, data.ExecutionContext)
	snapshot.LastUpdated = data.LastUpdated
	applyInTx(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.checkpointData[snapshot.StepExecutionID] = snapshot
	})
	return nil
}

// FindCheckpointData returns the checkpoint of a step execution.
func (r *InMemoryJobRepository) FindCheckpointData(ctx context.Context, stepExecutionID string) (*model.CheckpointData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.checkpointData[stepExecutionID]
	if !ok {
		return nil, repository.ErrCheckpointDataNotFound
	}
	c := model.NewCheckpointData(data.StepExecutionID, data.ExecutionContext)
	c.LastUpdated = data.LastUpdated
	return c, nil
}
