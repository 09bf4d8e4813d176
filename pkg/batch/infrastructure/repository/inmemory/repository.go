// Package inmemory provides a JobRepository that keeps all execution metadata in maps.
// It suits tests and single-process runs where nothing has to survive the process.
package inmemory

import (
	"context"
	"sync"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// InMemoryJobRepository implements repository.JobRepository. Entities are stored as
// copies, so callers never share state with the store.
type InMemoryJobRepository struct {
	jobInstances   map[string]*model.JobInstance
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	checkpointData map[string]*model.CheckpointData
	// order records insertion order; CreateTime alone can tie.
	order map[string]int64
	seq   int64
	mu    sync.RWMutex
}

// NewInMemoryJobRepository creates an empty InMemoryJobRepository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobInstances:   make(map[string]*model.JobInstance),
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
		checkpointData: make(map[string]*model.CheckpointData),
		order:          make(map[string]int64),
	}
}

// Close implements repository.JobRepository. Nothing to release.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

// nextOrder must be called with mu held.
func (r *InMemoryJobRepository) nextOrder(id string) {
	r.seq++
	r.order[id] = r.seq
}

// applyInTx runs fn now, or after the commit of the transaction carried by ctx.
func applyInTx(ctx context.Context, fn func()) {
	if t, ok := tx.FromContext(ctx); ok {
		t.AfterCommit(fn)
		return
	}
	fn()
}

func copyJobInstance(ji *model.JobInstance) *model.JobInstance {
	c := *ji
	c.Parameters = ji.Parameters.Copy()
	return &c
}

func copyJobExecution(je *model.JobExecution) *model.JobExecution {
	c := *je
	c.Parameters = je.Parameters.Copy()
	c.Failures = append(model.FailureList{}, je.Failures...)
	c.ExecutionContext = je.ExecutionContext.Copy()
	c.StepExecutions = nil
	c.CancelFunc = nil
	return &c
}

func copyStepExecution(se *model.StepExecution) *model.StepExecution {
	c := *se
	c.Failures = append(model.FailureList{}, se.Failures...)
	c.ExecutionContext = se.ExecutionContext.Copy()
	c.JobExecution = nil
	return &c
}
