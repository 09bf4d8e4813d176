// Package listener aggregates the listener modules of the batch engine.
package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/listener/logging"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/notification"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/tracing"
)

// Module aggregates all listener modules of the batch framework.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
	tracing.Module,
	notification.Module,
)
