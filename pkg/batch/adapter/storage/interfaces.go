// Package storage defines the object storage abstraction used by file-producing writers.
// A bucket is a top-level container and an object name is a '/'-separated path inside it.
package storage

import (
	"context"
	"io"

	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
)

// StorageExecutor defines the object operations of a storage backend.
type StorageExecutor interface {
	// Upload stores data as objectName, replacing any existing object.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. A missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named storage backend.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor

	// DefaultBucket returns the configured bucket used when a caller passes "".
	DefaultBucket() string
}

// StorageProvider opens and caches the connections of one backend type.
type StorageProvider interface {
	GetConnection(name string) (StorageConnection, error)
	CloseAll() error
	Type() string
	ForceReconnect(name string) (StorageConnection, error)
}

// StorageConnectionResolver resolves a storage connection by its configured name.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is the fx value group all StorageProvider implementations are contributed to.
const StorageProviderGroup = "storage_providers"
