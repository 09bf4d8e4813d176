package gcs_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/gcs"
	coreConfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func TestGCSProvider_Connections(t *testing.T) {
	cfg := coreConfig.NewConfig()
	cfg.Surfin.Adapter.Storage["emulated"] = map[string]interface{}{
		"type":     "gcs",
		"endpoint": "http://127.0.0.1:1/storage/v1/",
	}
	cfg.Surfin.Adapter.Storage["disk"] = map[string]interface{}{
		"type":     "local",
		"base_dir": t.TempDir(),
	}
	provider := gcs.NewGCSProvider(cfg)
	defer provider.CloseAll()

	conn, err := provider.GetConnection("emulated")
	require.NoError(t, err)
	assert.Equal(t, "gcs", conn.Type())
	assert.Empty(t, conn.DefaultBucket())

	err = conn.Upload(context.Background(), "", "object", strings.NewReader("x"), "text/plain")
	assert.ErrorContains(t, err, "bucket_name is not configured")

	_, err = provider.GetConnection("disk")
	assert.ErrorContains(t, err, "type mismatch")
}
