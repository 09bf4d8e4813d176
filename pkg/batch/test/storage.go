package test

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	pqlocal "github.com/xitongsys/parquet-go-source/local"
	pqreader "github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	coreadapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// NewLocalStorageResolver resolves the storage connection name to a local directory under
// the test's temp dir. It returns the resolver and the directory objects are written to.
func NewLocalStorageResolver(t *testing.T, name string) (storage.StorageConnectionResolver, string) {
	t.Helper()
	baseDir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Surfin.Adapter.Storage[name] = map[string]interface{}{
		"type":        "local",
		"base_dir":    baseDir,
		"bucket_name": "batch",
	}
	resolver := storage.NewConnectionResolver(storage.ConnectionResolverParams{
		Providers: []storage.StorageProvider{local.NewLocalProvider(cfg)},
		Cfg:       cfg,
	})
	t.Cleanup(func() { _ = resolver.CloseAll() })
	return resolver, filepath.Join(baseDir, "batch")
}

// FlakyStorageResolver wraps the connections of Resolver. The uploads listed in
// FailUploads (1-based, counted across the resolver's lifetime) fail with UploadErr.
type FlakyStorageResolver struct {
	Resolver    storage.StorageConnectionResolver
	FailUploads map[int]bool
	UploadErr   error

	mu      sync.Mutex
	uploads int
}

func (r *FlakyStorageResolver) ResolveStorageConnection(ctx context.Context, name string) (storage.StorageConnection, error) {
	conn, err := r.Resolver.ResolveStorageConnection(ctx, name)
	if err != nil {
		return nil, err
	}
	return &flakyConnection{StorageConnection: conn, resolver: r}, nil
}

func (r *FlakyStorageResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// Uploads returns the number of uploads attempted, failed ones included.
func (r *FlakyStorageResolver) Uploads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uploads
}

type flakyConnection struct {
	storage.StorageConnection
	resolver *FlakyStorageResolver
}

func (c *flakyConnection) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	c.resolver.mu.Lock()
	c.resolver.uploads++
	fail := c.resolver.FailUploads[c.resolver.uploads]
	c.resolver.mu.Unlock()
	if fail {
		return c.resolver.UploadErr
	}
	return c.StorageConnection.Upload(ctx, bucket, objectName, data, contentType)
}

// CountParquetRows returns the number of rows of the Parquet file at path. prototype is a
// pointer to a zero value of the row type.
func CountParquetRows(t *testing.T, path string, prototype interface{}) int64 {
	t.Helper()
	fr, err := pqlocal.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := pqreader.NewParquetReader(fr, prototype, 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	return pr.GetNumRows()
}
