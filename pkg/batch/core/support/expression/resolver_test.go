package expression_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/support/expression"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func TestResolve(t *testing.T) {
	params := model.NewJobParameters().With("city", "Springfield").With("run.id", int64(3))

	cases := []struct{ expr, want string }{
		{"sample", "sample"},
		{"#{jobParameters['city']}", "Springfield"},
		{"#{ jobParameters['city'] }", "Springfield"},
		{"out/#{jobParameters['city']}-#{jobParameters['run.id']}.txt", "out/Springfield-3.txt"},
	}
	for _, c := range cases {
		got, err := expression.Resolve(c.expr, params)
		require.NoError(t, err, c.expr)
		assert.Equal(t, c.want, got, c.expr)
	}
}

func TestResolve_MissingParameter(t *testing.T) {
	_, err := expression.Resolve("#{jobParameters['city']}", model.NewJobParameters())

	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrMissingParameter))
}

func TestResolve_UnsupportedExpression(t *testing.T) {
	_, err := expression.Resolve("#{stepExecution.readCount}", model.NewJobParameters())

	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestResolveProperties(t *testing.T) {
	props := map[string]string{"db_ref": "sample", "city": "#{jobParameters['city']}"}

	got, err := expression.ResolveProperties(props, model.NewJobParameters().With("city", "Shelbyville"))

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"db_ref": "sample", "city": "Shelbyville"}, got)
	assert.Equal(t, "#{jobParameters['city']}", props["city"], "the input is not modified")
}
