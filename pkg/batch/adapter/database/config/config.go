// Package config holds the per-connection database settings found under surfin.adapter.database.
package config

import (
	"github.com/mitchellh/mapstructure"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" mapstructure:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds the settings of one named connection.
type DatabaseConfig struct {
	Type     string     `yaml:"type" mapstructure:"type"` // sqlite, mysql or postgres
	Host     string     `yaml:"host" mapstructure:"host"`
	Port     int        `yaml:"port" mapstructure:"port"`
	Database string     `yaml:"database" mapstructure:"database"` // file path for sqlite
	User     string     `yaml:"user" mapstructure:"user"`
	Password string     `yaml:"password" mapstructure:"password"`
	Schema   string     `yaml:"schema,omitempty" mapstructure:"schema"`
	Sslmode  string     `yaml:"sslmode" mapstructure:"sslmode"`
	Params   string     `yaml:"params,omitempty" mapstructure:"params"` // extra DSN options, "k=v&k2=v2"
	Pool     PoolConfig `yaml:"pool" mapstructure:"pool"`
	LogLevel string     `yaml:"log_level" mapstructure:"log_level"` // GORM log level, SILENT by default
}

// Decode converts a raw adapter entry into a DatabaseConfig. Values coming from
// environment variables are strings, so decoding is weakly typed.
func Decode(raw interface{}) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, err
	}
	return cfg, nil
}
