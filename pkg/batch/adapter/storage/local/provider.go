package local

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// LocalProvider implements storage.StorageProvider for the local file system.
type LocalProvider struct {
	cfg         *coreConfig.Config
	connections map[string]storage.StorageConnection
	mu          sync.Mutex
}

// NewLocalProvider creates a LocalProvider.
func NewLocalProvider(cfg *coreConfig.Config) *LocalProvider {
	return &LocalProvider{
		cfg:         cfg,
		connections: make(map[string]storage.StorageConnection),
	}
}

// GetConnection returns the cached connection called name, creating it on first use.
func (p *LocalProvider) GetConnection(name string) (storage.StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	return p.connect(name)
}

// ForceReconnect drops the cached connection and creates a new one.
func (p *LocalProvider) ForceReconnect(name string) (storage.StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to close local storage connection '%s' during reconnect: %v", name, err)
		}
		delete(p.connections, name)
	}
	return p.connect(name)
}

// connect must be called with mu held.
func (p *LocalProvider) connect(name string) (storage.StorageConnection, error) {
	cfg, err := storageConfig.Lookup(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if cfg.Type != ProviderType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, ProviderType, cfg.Type)
	}
	conn, err := NewLocalAdapter(cfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Debugf("Created local storage connection '%s' at '%s'.", name, cfg.BaseDir)
	return conn, nil
}

// CloseAll closes every cached connection.
func (p *LocalProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close local storage '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

// Type returns ProviderType.
func (p *LocalProvider) Type() string {
	return ProviderType
}

// Module contributes the local StorageProvider to the storage_providers group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.As(new(storage.StorageProvider)),
		fx.ResultTags(`group:"`+storage.StorageProviderGroup+`"`),
	)),
)
