package logger

import "go.uber.org/fx"

// Module installs FxLogger as the fx event logger.
var Module = fx.Options(
	fx.WithLogger(NewFxLogger),
)
