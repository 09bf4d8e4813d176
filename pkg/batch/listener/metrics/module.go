package metrics

import (
	"go.uber.org/fx"
)

// Module decorates the MetricRecorder provided by the infrastructure metrics module
// with the asynchronous wrapper when a queue size is configured.
var Module = fx.Options(
	fx.Decorate(NewAsyncMetricRecorderWrapper),
)
