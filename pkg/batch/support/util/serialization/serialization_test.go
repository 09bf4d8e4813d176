package serialization_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/serialization"
)

func withMaskedKeys(t *testing.T, keys ...string) {
	t.Helper()
	original := config.GlobalConfig
	cfg := config.NewConfig()
	cfg.Surfin.Security.MaskedParameterKeys = keys
	config.GlobalConfig = cfg
	t.Cleanup(func() { config.GlobalConfig = original })
}

func TestGetMaskedJobParametersMap(t *testing.T) {
	withMaskedKeys(t, "password", "api_key")

	params := map[string]interface{}{
		"user":     "alice",
		"password": "secret_password",
		"api_key":  "xyz123",
		"count":    10,
	}
	masked := serialization.GetMaskedJobParametersMap(params)

	assert.Equal(t, "alice", masked["user"])
	assert.Equal(t, 10, masked["count"])
	assert.Equal(t, serialization.MaskedValue, masked["password"])
	assert.Equal(t, serialization.MaskedValue, masked["api_key"])
	assert.Equal(t, "secret_password", params["password"], "input must not be modified")
	assert.Empty(t, serialization.GetMaskedJobParametersMap(nil))
}

func TestMarshalJobParameters_Masks(t *testing.T) {
	withMaskedKeys(t, "secret")

	data, err := serialization.MarshalJobParameters(map[string]interface{}{"data": "public", "secret": "hidden"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "public", decoded["data"])
	assert.Equal(t, serialization.MaskedValue, decoded["secret"])
}

func TestUnmarshalJobParameters_KeepsIntegers(t *testing.T) {
	params := map[string]interface{}{"stale": true}
	require.NoError(t, serialization.UnmarshalJobParameters([]byte(`{"run.id": 3, "city": "Springfield"}`), &params))

	assert.NotContains(t, params, "stale")
	assert.Equal(t, json.Number("3"), params["run.id"])
	assert.Equal(t, "Springfield", params["city"])
}

func TestUnmarshalExecutionContext_EmptyDocuments(t *testing.T) {
	for _, doc := range []string{"", "null", "{}", "  "} {
		ctx := map[string]interface{}{"old": 1}
		require.NoError(t, serialization.UnmarshalExecutionContext([]byte(doc), &ctx))
		assert.Empty(t, ctx, "document %q", doc)
	}
}

func TestUnmarshalExecutionContext_Invalid(t *testing.T) {
	var ctx map[string]interface{}
	err := serialization.UnmarshalExecutionContext([]byte(`{broken`), &ctx)
	assert.Error(t, err)
}

func TestFailures(t *testing.T) {
	data, err := serialization.MarshalFailures(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = serialization.MarshalFailures([]string{"SinkWriteError: boom"})
	require.NoError(t, err)

	var msgs []string
	require.NoError(t, serialization.UnmarshalFailures(data, &msgs))
	assert.Equal(t, []string{"SinkWriteError: boom"}, msgs)

	require.NoError(t, serialization.UnmarshalFailures(nil, &msgs))
	assert.Empty(t, msgs)
}
