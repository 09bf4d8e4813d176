package config

import "go.uber.org/fx"

// NewLoggingConfigProvider exposes the logging section on its own.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Surfin.System.Logging
}

// Module provides *Config (from a supplied EmbeddedConfig), its logging section and the EnvironmentExpander.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewOsEnvironmentExpander, fx.As(new(EnvironmentExpander)))),
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
)
