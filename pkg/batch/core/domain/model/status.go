package model

// BatchStatus is the lifecycle state of a job or step execution.
type BatchStatus string

const (
	BatchStatusCreated    BatchStatus = "CREATED"
	BatchStatusValidating BatchStatus = "VALIDATING"
	BatchStatusRunning    BatchStatus = "RUNNING"
	BatchStatusStopping   BatchStatus = "STOPPING"
	BatchStatusStopped    BatchStatus = "STOPPED"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
	BatchStatusFailed     BatchStatus = "FAILED"
	BatchStatusAbandoned  BatchStatus = "ABANDONED"
	BatchStatusUnknown    BatchStatus = "UNKNOWN"
)

// String returns the string representation of the BatchStatus.
func (s BatchStatus) String() string {
	return string(s)
}

// IsFinished reports whether s is terminal for the execution that holds it.
func (s BatchStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return true
	default:
		return false
	}
}

// IsRunning reports whether an execution in status s still owns a worker.
func (s BatchStatus) IsRunning() bool {
	switch s {
	case BatchStatusCreated, BatchStatusValidating, BatchStatusRunning, BatchStatusStopping:
		return true
	default:
		return false
	}
}

// IsRestartable reports whether a new execution may resume the instance of an execution in status s.
func (s BatchStatus) IsRestartable() bool {
	return s == BatchStatusFailed || s == BatchStatusStopped
}

// ToExitStatus converts the BatchStatus to its default ExitStatus.
func (s BatchStatus) ToExitStatus() ExitStatus {
	switch s {
	case BatchStatusCompleted:
		return ExitStatusCompleted
	case BatchStatusFailed:
		return ExitStatusFailed
	case BatchStatusStopped:
		return ExitStatusStopped
	case BatchStatusAbandoned:
		return ExitStatusAbandoned
	case BatchStatusValidating, BatchStatusRunning, BatchStatusStopping:
		return ExitStatusExecuting
	default:
		return ExitStatusUnknown
	}
}

// ExitCode maps the status to a process exit code: 0 for COMPLETED, 2 for STOPPED, 1 otherwise.
func (s BatchStatus) ExitCode() int {
	switch s {
	case BatchStatusCompleted:
		return 0
	case BatchStatusStopped:
		return 2
	default:
		return 1
	}
}

// ExitStatus is the detailed outcome recorded when a job or step finishes.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusExecuting ExitStatus = "EXECUTING"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusAbandoned ExitStatus = "ABANDONED"
	ExitStatusNoOp      ExitStatus = "NOOP"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// jobTransitions lists the statuses reachable from each job status.
var jobTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusCreated:    {BatchStatusValidating, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned},
	BatchStatusValidating: {BatchStatusRunning, BatchStatusFailed, BatchStatusStopped},
	BatchStatusRunning:    {BatchStatusStopping, BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped},
	BatchStatusStopping:   {BatchStatusStopped, BatchStatusCompleted, BatchStatusFailed},
	BatchStatusFailed:     {BatchStatusAbandoned},
	BatchStatusStopped:    {BatchStatusAbandoned},
}

// stepTransitions lists the statuses reachable from each step status. Steps have no validation phase.
var stepTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusCreated: {BatchStatusRunning, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned},
	BatchStatusRunning: {BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped},
	BatchStatusFailed:  {BatchStatusAbandoned},
	BatchStatusStopped: {BatchStatusAbandoned},
}

func canTransition(table map[BatchStatus][]BatchStatus, current, next BatchStatus) bool {
	for _, s := range table[current] {
		if s == next {
			return true
		}
	}
	return false
}
