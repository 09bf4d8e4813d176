// Package adapter defines the resource abstractions shared by the database and storage adapters.
package adapter

import (
	"context"
)

// ResourceConnection is a named connection to an external resource.
type ResourceConnection interface {
	// Close releases the connection.
	Close() error
	// Type returns the backend type, e.g. "sqlite" or "gcs".
	Type() string
	// Name returns the configured connection name, e.g. "metadata" or "customer".
	Name() string
}

// ResourceProvider opens and caches connections of one backend type.
type ResourceProvider interface {
	GetConnection(name string) (ResourceConnection, error)
	CloseAll() error
	Type() string
}

// ResourceConnectionResolver resolves a connection by its configured name, reconnecting when needed.
type ResourceConnectionResolver interface {
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
