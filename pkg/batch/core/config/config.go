// Package config holds the configuration tree of the batch engine and the loader that
// builds it from an embedded YAML document, a .env file and environment variables.
package config

// EmbeddedConfig holds the raw YAML configuration, usually embedded by main.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// Job repository implementations.
const (
	JobRepositoryInMemory = "inmemory"
	JobRepositorySQL      = "sql"
)

// Metric recorder implementations.
const (
	MetricsNoop       = "noop"
	MetricsPrometheus = "prometheus"
	MetricsOTel       = "otel"
)

// Trace exporters.
const (
	TraceExporterNone     = "none"
	TraceExporterOTLPHTTP = "otlp-http"
	TraceExporterOTLPGRPC = "otlp-grpc"
)

// Run discriminator strategies.
const (
	IncrementerRunID     = "run.id"
	IncrementerTimestamp = "timestamp"
)

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys lists job parameter keys whose values are masked when persisted or logged.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// BatchConfig holds engine settings.
type BatchConfig struct {
	// JobName is the job launched when none is given on the command line.
	JobName string `yaml:"job_name"`
	// ChunkSize is the default commit interval of chunk steps.
	ChunkSize int `yaml:"chunk_size"`
	// PageSize is the default page size of paging readers.
	PageSize int `yaml:"page_size"`
	// PollingIntervalSeconds is how often a waiting caller polls the job status.
	PollingIntervalSeconds int `yaml:"polling_interval_seconds"`
	// Schedule is an optional standard cron expression; when set the job is relaunched on every tick.
	Schedule string `yaml:"schedule"`
	// Incrementer selects the run discriminator strategy ("run.id" or "timestamp").
	Incrementer string `yaml:"incrementer"`
	// ReadRateLimit caps reads per second for throttled readers. Zero disables throttling.
	ReadRateLimit float64 `yaml:"read_rate_limit"`
	// ReadBurst is the token bucket size used with ReadRateLimit.
	ReadBurst int `yaml:"read_burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// JobRepositoryConfig selects the job repository store.
type JobRepositoryConfig struct {
	Type  string `yaml:"type"`
	DBRef string `yaml:"db_ref"`
}

// MetricsConfig selects the metric recorder.
type MetricsConfig struct {
	Type                  string `yaml:"type"`
	ListenAddress         string `yaml:"listen_address"`
	OTLPEndpoint          string `yaml:"otlp_endpoint"`
	OTLPProtocol          string `yaml:"otlp_protocol"`
	OTLPInsecure          bool   `yaml:"otlp_insecure"`
	ExportIntervalSeconds int    `yaml:"export_interval_seconds"`
	// AsyncBufferSize, when positive, moves recording off the chunk path onto a queue of this size.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TracingConfig configures the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// InfrastructureConfig holds settings of the engine's infrastructure collaborators.
type InfrastructureConfig struct {
	JobRepository JobRepositoryConfig `yaml:"job_repository"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Tracing       TracingConfig       `yaml:"tracing"`
}

// AdapterConfigs holds raw per-connection settings. Adapters decode their own entries.
type AdapterConfigs struct {
	Database map[string]interface{} `yaml:"database"`
	Storage  map[string]interface{} `yaml:"storage"`
}

// SurfinConfig holds everything under the "surfin" top-level key.
type SurfinConfig struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Security       SecurityConfig       `yaml:"security"`
	Adapter        AdapterConfigs       `yaml:"adapter"`
}

// Config is the root of the configuration tree.
type Config struct {
	Surfin SurfinConfig `yaml:"surfin"`
}

// GlobalConfig is the configuration set by NewConfigProvider, used by helpers that cannot take it as a dependency.
var GlobalConfig *Config

// GetMaskedParameterKeys returns the masked parameter keys of GlobalConfig, or the defaults before it is set.
func GetMaskedParameterKeys() []string {
	if GlobalConfig == nil {
		return NewConfig().Surfin.Security.MaskedParameterKeys
	}
	return GlobalConfig.Surfin.Security.MaskedParameterKeys
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Surfin: SurfinConfig{
			Batch: BatchConfig{
				ChunkSize:              10,
				PageSize:               10,
				PollingIntervalSeconds: 1,
				Incrementer:            IncrementerRunID,
				ReadBurst:              1,
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: string(LogLevelInfo), Format: "console"},
			},
			Infrastructure: InfrastructureConfig{
				JobRepository: JobRepositoryConfig{Type: JobRepositoryInMemory, DBRef: "metadata"},
				Metrics: MetricsConfig{
					Type:                  MetricsNoop,
					ListenAddress:         ":9090",
					OTLPProtocol:          "http",
					ExportIntervalSeconds: 15,
				},
				Tracing: TracingConfig{Exporter: TraceExporterNone, ServiceName: "chunkbatch"},
			},
			Security: SecurityConfig{
				MaskedParameterKeys: []string{"password", "api_key", "secret"},
			},
			Adapter: AdapterConfigs{
				Database: map[string]interface{}{},
				Storage:  map[string]interface{}{},
			},
		},
	}
}
