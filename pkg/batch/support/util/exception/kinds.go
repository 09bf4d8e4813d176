package exception

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind names recorded in execution failures.
const (
	MissingParameterError    = "MissingParameterError"
	ConfigurationError       = "ConfigurationError"
	SourceReadError          = "SourceReadError"
	SinkWriteError           = "SinkWriteError"
	DuplicateInstanceError   = "DuplicateInstanceError"
	JobRestartError          = "JobRestartError"
	OptimisticLockingFailure = "OptimisticLockingFailureException"
	// UnknownError is reported by Kind for errors outside the taxonomy.
	UnknownError = "UnknownError"
)

var (
	ErrMissingParameter  = errors.New(MissingParameterError)
	ErrConfiguration     = errors.New(ConfigurationError)
	ErrSourceRead        = errors.New(SourceReadError)
	ErrSinkWrite         = errors.New(SinkWriteError)
	ErrDuplicateInstance = errors.New(DuplicateInstanceError)
	ErrJobRestart        = errors.New(JobRestartError)
	ErrOptimisticLocking = errors.New(OptimisticLockingFailure)
)

var kindSentinels = map[string]error{
	MissingParameterError:    ErrMissingParameter,
	ConfigurationError:       ErrConfiguration,
	SourceReadError:          ErrSourceRead,
	SinkWriteError:           ErrSinkWrite,
	DuplicateInstanceError:   ErrDuplicateInstance,
	JobRestartError:          ErrJobRestart,
	OptimisticLockingFailure: ErrOptimisticLocking,
}

// kindOrder fixes the lookup order so that the outermost classification wins
// when a chain carries more than one sentinel (a SinkWriteError caused by an
// optimistic locking failure is still a SinkWriteError).
var kindOrder = []string{
	MissingParameterError,
	ConfigurationError,
	DuplicateInstanceError,
	JobRestartError,
	SinkWriteError,
	SourceReadError,
	OptimisticLockingFailure,
}

func withKind(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}

// NewMissingParameterError reports required job parameters absent from a launch.
func NewMissingParameterError(module string, missing []string) *BatchError {
	keys := append([]string(nil), missing...)
	sort.Strings(keys)
	return NewBatchError(module, fmt.Sprintf("missing required job parameters: [%s]", strings.Join(keys, ", ")), ErrMissingParameter, false, false)
}

// NewConfigurationError reports a component that failed its own validation.
func NewConfigurationError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, withKind(ErrConfiguration, cause), false, false)
}

// NewSourceReadError reports an I/O failure while fetching items.
func NewSourceReadError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, withKind(ErrSourceRead, cause), false, false)
}

// NewSinkWriteError reports a failed chunk commit.
func NewSinkWriteError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, withKind(ErrSinkWrite, cause), false, false)
}

// NewDuplicateInstanceError reports a launch whose identity matches a completed instance.
func NewDuplicateInstanceError(module, message string) *BatchError {
	return NewBatchError(module, message, ErrDuplicateInstance, false, false)
}

// NewJobRestartError reports an execution that cannot be restarted.
func NewJobRestartError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, withKind(ErrJobRestart, cause), false, false)
}

// NewOptimisticLockingFailureException reports a concurrent modification of a persisted record.
func NewOptimisticLockingFailureException(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, withKind(ErrOptimisticLocking, cause), false, true)
}

// IsOptimisticLockingFailure reports whether err carries ErrOptimisticLocking.
func IsOptimisticLockingFailure(err error) bool {
	return errors.Is(err, ErrOptimisticLocking)
}

// Kind returns the taxonomy name of err, or UnknownError.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, name := range kindOrder {
		if errors.Is(err, kindSentinels[name]) {
			return name
		}
	}
	return UnknownError
}
