// Package ports holds the outbound ports of the engine that are implemented outside the core.
package ports

import (
	"context"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// Notifier reports the outcome of a job execution to an external party.
type Notifier interface {
	// NotifyJobCompletion is called once per execution after it reached a terminal status.
	NotifyJobCompletion(ctx context.Context, execution *model.JobExecution)
}
