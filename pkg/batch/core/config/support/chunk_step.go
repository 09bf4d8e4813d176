package support

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	item "github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
)

// ChunkComponents are the reader, processor and writer of one run of a chunk step.
type ChunkComponents[I, O any] struct {
	Reader    port.ItemReader[I]
	Processor port.ItemProcessor[I, O]
	Writer    port.ItemWriter[O]
}

// ChunkComponentsFunc creates the components of a chunk step for the parameters of a run.
type ChunkComponentsFunc[I, O any] func(ctx context.Context, params model.JobParameters) (ChunkComponents[I, O], error)

// NewChunkStepBuilder returns the builder of chunk step stepID. The step gets the commit
// interval, listeners, transaction manager and telemetry of bc; components supplies the rest.
func NewChunkStepBuilder[I, O any](bc JobBuildContext, stepID string, components ChunkComponentsFunc[I, O]) port.StepBuilder {
	return port.NewStepBuilder(stepID, func(ctx context.Context, params model.JobParameters) (port.Step, error) {
		c, err := components(ctx, params)
		if err != nil {
			return nil, err
		}
		step, err := item.NewChunkStep(item.Params[I, O]{
			Name:           stepID,
			Reader:         c.Reader,
			Processor:      c.Processor,
			Writer:         c.Writer,
			CommitInterval: bc.CommitInterval(stepID),
			JobRepository:  bc.JobRepository,
			TxManager:      bc.TxManager,
			StepListeners:  bc.StepListeners[stepID],
			ChunkListeners: bc.ChunkListeners[stepID],
			ReadListeners:  bc.ReadListeners(stepID),
			WriteListeners: bc.WriteListeners(stepID),
			MetricRecorder: bc.MetricRecorder,
			Tracer:         bc.Tracer,
		})
		if err != nil {
			return nil, err
		}
		return step, nil
	})
}
