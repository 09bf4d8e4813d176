// Package config holds the per-connection storage settings found under surfin.adapter.storage.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	coreConfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local" or "gcs"
	BucketName      string `yaml:"bucket_name"`      // default bucket
	CredentialsFile string `yaml:"credentials_file"` // service account key for GCS; ADC when empty
	BaseDir         string `yaml:"base_dir"`         // root directory of the local backend
	Endpoint        string `yaml:"endpoint"`         // custom endpoint, e.g. a GCS emulator
}

// Decode converts a raw adapter entry into a StorageConfig using the yaml tags.
func Decode(raw interface{}) (StorageConfig, error) {
	var cfg StorageConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
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

// Lookup decodes the surfin.adapter.storage entry called name.
func Lookup(cfg *coreConfig.Config, name string) (StorageConfig, error) {
	raw, ok := cfg.Surfin.Adapter.Storage[name]
	if !ok {
		return StorageConfig{}, fmt.Errorf("storage configuration '%s' not found under adapter.storage", name)
	}
	storageCfg, err := Decode(raw)
	if err != nil {
		return StorageConfig{}, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return storageCfg, nil
}
