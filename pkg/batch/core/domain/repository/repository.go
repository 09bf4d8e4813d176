// Package repository defines the persistence contract of the batch engine's execution metadata.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// ErrCheckpointDataNotFound is returned when no checkpoint was saved for a step execution.
var ErrCheckpointDataNotFound = errors.New("checkpoint data not found")

func init() {
	exception.RegisterErrorType("ErrCheckpointDataNotFound", ErrCheckpointDataNotFound)
}

// CheckpointDataRepository persists step checkpoints.
//
// Writes made with a transaction in the context (see tx.WithTx) take effect only
// when that transaction commits.
type CheckpointDataRepository interface {
	// SaveCheckpointData inserts or replaces the checkpoint of data.StepExecutionID.
	SaveCheckpointData(ctx context.Context, data *model.CheckpointData) error

	// FindCheckpointData returns the checkpoint of a step execution.
	FindCheckpointData(ctx context.Context, stepExecutionID string) (*model.CheckpointData, error)
}

// JobRepository persists all batch execution metadata.
type JobRepository interface {
	JobInstance
	JobExecution
	StepExecution
	CheckpointDataRepository

	// Close releases the resources held by the repository.
	Close() error
}
