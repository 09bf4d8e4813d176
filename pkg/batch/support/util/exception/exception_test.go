package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customError struct {
	Msg string
}

func (e *customError) Error() string {
	return fmt.Sprintf("customError: %s", e.Msg)
}

func TestNewBatchError(t *testing.T) {
	originalErr := errors.New("db connection refused")
	be := exception.NewBatchError("db", "failed to connect", originalErr, false, true)

	assert.Equal(t, "db", be.Module)
	assert.Equal(t, originalErr, be.Unwrap())
	assert.True(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.Equal(t, "[db] failed to connect: db connection refused", be.Error())
	assert.NotEmpty(t, be.StackTrace)
}

func TestNewBatchErrorf_TrailingArguments(t *testing.T) {
	be := exception.NewBatchErrorf("reader", "item %d not found", 10)
	assert.Equal(t, "item 10 not found", be.Message)
	assert.False(t, be.IsRetryable())

	cause := errors.New("io error")
	be = exception.NewBatchErrorf("item", "bad item %d", 5, true, false, cause)
	assert.Equal(t, "bad item 5", be.Message)
	assert.True(t, be.IsSkippable())
	assert.False(t, be.IsRetryable())
	assert.ErrorIs(t, be, cause)
}

func TestKinds_AreDetectableThroughWrapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
		kind string
	}{
		{"missing", exception.NewMissingParameterError("validator", []string{"city"}), exception.ErrMissingParameter, exception.MissingParameterError},
		{"config", exception.NewConfigurationError("reader", "City name is required", nil), exception.ErrConfiguration, exception.ConfigurationError},
		{"read", exception.NewSourceReadError("reader", "page fetch failed", errors.New("disk")), exception.ErrSourceRead, exception.SourceReadError},
		{"write", exception.NewSinkWriteError("chunk", "write failed", errors.New("broken pipe")), exception.ErrSinkWrite, exception.SinkWriteError},
		{"duplicate", exception.NewDuplicateInstanceError("launcher", "already complete"), exception.ErrDuplicateInstance, exception.DuplicateInstanceError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("step failed: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.want)
			assert.Equal(t, tc.kind, exception.Kind(wrapped))
			assert.True(t, exception.IsBatchError(wrapped))
		})
	}
}

func TestKind_OuterClassificationWins(t *testing.T) {
	lock := exception.NewOptimisticLockingFailureException("repository", "stale version", nil)
	err := exception.NewSinkWriteError("chunk", "checkpoint save failed", lock)

	assert.Equal(t, exception.SinkWriteError, exception.Kind(err))
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, exception.UnknownError, exception.Kind(errors.New("plain")))
	assert.Empty(t, exception.Kind(nil))
}

func TestNewMissingParameterError_SortsKeys(t *testing.T) {
	err := exception.NewMissingParameterError("validator", []string{"zip", "city"})
	assert.Equal(t, "missing required job parameters: [city, zip]", err.Message)
}

func TestIsErrorOfType(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &customError{Msg: "boom"})

	assert.True(t, exception.IsErrorOfType(err, "exception_test.customError"))
	assert.True(t, exception.IsErrorOfType(err, "boom"))
	assert.False(t, exception.IsErrorOfType(err, "other"))
	assert.True(t, exception.IsErrorOfType(exception.NewSourceReadError("r", "x", nil), exception.SourceReadError))
}

func TestIsFatalAndTemporary(t *testing.T) {
	retryable := exception.NewBatchError("db", "timeout", nil, false, true)
	require.True(t, exception.IsTemporary(retryable))
	assert.False(t, exception.IsFatal(retryable))

	fatal := exception.NewConfigurationError("cfg", "bad", nil)
	assert.True(t, exception.IsFatal(fatal))
	assert.False(t, exception.IsTemporary(fatal))
	assert.True(t, exception.IsTemporary(errors.New("dial tcp: connection refused")))
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "write failed", exception.ExtractErrorMessage(fmt.Errorf("x: %w", exception.NewSinkWriteError("w", "write failed", nil))))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
}
