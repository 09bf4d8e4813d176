package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string              `name:"envFilePath" optional:"true"`
	Expander       EnvironmentExpander `optional:"true"`
}

// NewConfigProvider loads the configuration, publishes it as GlobalConfig and applies logging settings.
func NewConfigProvider(p ConfigParams) (*Config, error) {
	expander := p.Expander
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	cfg, err := loadConfig(p.EnvFilePath, p.EmbeddedConfig, expander)
	if err != nil {
		return nil, err
	}

	GlobalConfig = cfg
	logger.SetFormat(cfg.Surfin.System.Logging.Format)
	logger.SetLogLevel(cfg.Surfin.System.Logging.Level)
	logger.Debugf("Log level set to: %s", cfg.Surfin.System.Logging.Level)
	return cfg, nil
}

// LoadConfig loads configuration using os.ExpandEnv for placeholders.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, NewOsEnvironmentExpander())
}

// loadConfig applies, in order: .env, placeholder expansion, YAML over defaults,
// SURFIN_* environment overrides and validation.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not loaded: %v", envFilePath, err)
		}
	}

	raw, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to expand environment placeholders", err)
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to unmarshal embedded config", err)
	}
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to load config from environment variables", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	b := c.Surfin.Batch
	if b.ChunkSize <= 0 {
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("batch.chunk_size must be positive, got %d", b.ChunkSize), nil)
	}
	if b.PageSize <= 0 {
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("batch.page_size must be positive, got %d", b.PageSize), nil)
	}
	if b.Schedule != "" {
		if _, err := cron.ParseStandard(b.Schedule); err != nil {
			return exception.NewConfigurationError(moduleName, fmt.Sprintf("batch.schedule '%s' is not a valid cron expression", b.Schedule), err)
		}
	}
	switch b.Incrementer {
	case IncrementerRunID, IncrementerTimestamp:
	default:
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("unknown batch.incrementer '%s'", b.Incrementer), nil)
	}
	if b.ReadRateLimit < 0 {
		return exception.NewConfigurationError(moduleName, "batch.read_rate_limit must not be negative", nil)
	}

	infra := c.Surfin.Infrastructure
	switch infra.JobRepository.Type {
	case JobRepositoryInMemory, JobRepositorySQL:
	default:
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("unknown infrastructure.job_repository.type '%s'", infra.JobRepository.Type), nil)
	}
	switch infra.Metrics.Type {
	case MetricsNoop, MetricsPrometheus, MetricsOTel:
	default:
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("unknown infrastructure.metrics.type '%s'", infra.Metrics.Type), nil)
	}
	switch infra.Tracing.Exporter {
	case TraceExporterNone, TraceExporterOTLPHTTP, TraceExporterOTLPGRPC:
	default:
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("unknown infrastructure.tracing.exporter '%s'", infra.Tracing.Exporter), nil)
	}
	return nil
}

// loadStructFromEnv overrides struct fields from environment variables named after
// the upper-cased yaml path, e.g. SURFIN_BATCH_CHUNK_SIZE.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		envName := strings.ToUpper(prefix + tag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envName+"_"); err != nil {
				return err
			}
		case field.Kind() == reflect.Map && field.Type().Elem().Kind() == reflect.Interface:
			loadRawMapFromEnv(field, envName+"_")
		default:
			envValue, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			if err := setField(field, envValue); err != nil {
				return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envName, err)
			}
		}
	}
	return nil
}

// loadRawMapFromEnv fills adapter maps, e.g. SURFIN_ADAPTER_DATABASE_METADATA_HOST sets
// Database["metadata"]["host"]. Values stay strings; adapters decode them weakly typed.
func loadRawMapFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	raw, ok := mapField.Interface().(map[string]interface{})
	if !ok {
		return
	}

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		kv := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(kv) != 2 {
			continue
		}
		parts := strings.SplitN(kv[0], "_", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		name, key := strings.ToLower(parts[0]), strings.ToLower(parts[1])

		entry, _ := raw[name].(map[string]interface{})
		if entry == nil {
			entry = make(map[string]interface{})
		}
		entry[key] = kv[1]
		raw[name] = entry
	}
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(v)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			items := strings.Split(value, ",")
			for i := range items {
				items[i] = strings.TrimSpace(items[i])
			}
			field.Set(reflect.ValueOf(items))
		}
	}
	return nil
}
