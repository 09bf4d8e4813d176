// Package model holds the domain entities of the batch engine: job parameters, job
// instances, job and step executions, and the checkpoint data that makes steps restartable.
package model

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// JobInstance is the logical run of a job: a job name plus its identifying parameters.
type JobInstance struct {
	ID             string
	JobName        string
	Parameters     JobParameters
	ParametersHash string
	CreateTime     time.Time
	Version        int
}

// NewJobInstance creates a JobInstance from the identifying subset of params.
func NewJobInstance(jobName string, params JobParameters) (*JobInstance, error) {
	identifying := params.IdentifyingParams()
	hash, err := identifying.Hash()
	if err != nil {
		return nil, err
	}
	return &JobInstance{
		ID:             NewID(),
		JobName:        jobName,
		Parameters:     identifying,
		ParametersHash: hash,
		CreateTime:     time.Now(),
	}, nil
}

// JobExecution is one attempt to run a JobInstance.
type JobExecution struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	Status           BatchStatus
	ExitStatus       ExitStatus
	StartTime        time.Time
	EndTime          *time.Time
	CreateTime       time.Time
	LastUpdated      time.Time
	Failures         FailureList
	ExecutionContext ExecutionContext
	CurrentStepName  string
	RestartCount     int
	Version          int
	StepExecutions   []*StepExecution

	// CancelFunc cancels the context of a running execution. It is never persisted.
	CancelFunc context.CancelFunc
}

// NewJobExecution creates a JobExecution in CREATED status.
func NewJobExecution(jobInstanceID, jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               NewID(),
		JobInstanceID:    jobInstanceID,
		JobName:          jobName,
		Parameters:       params,
		Status:           BatchStatusCreated,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		StepExecutions:   make([]*StepExecution, 0),
	}
}

// TransitionTo moves the execution to next if the job state machine allows it.
func (je *JobExecution) TransitionTo(next BatchStatus) error {
	if !canTransition(jobTransitions, je.Status, next) {
		return fmt.Errorf("JobExecution (ID: %s): invalid state transition: %s -> %s", je.ID, je.Status, next)
	}
	je.Status = next
	je.LastUpdated = time.Now()
	return nil
}

func (je *JobExecution) forceTransition(next BatchStatus) {
	if err := je.TransitionTo(next); err != nil {
		logger.Warnf("%v; forcing status %s.", err, next)
		je.Status = next
		je.LastUpdated = time.Now()
	}
}

func (je *JobExecution) finish(status BatchStatus) {
	je.forceTransition(status)
	je.ExitStatus = status.ToExitStatus()
	now := time.Now()
	je.EndTime = &now
	je.LastUpdated = now
}

// MarkAsValidating moves a CREATED execution to VALIDATING and records its start time.
func (je *JobExecution) MarkAsValidating() {
	je.forceTransition(BatchStatusValidating)
	je.StartTime = je.LastUpdated
	je.ExitStatus = ExitStatusExecuting
}

// MarkAsRunning moves the execution to RUNNING.
func (je *JobExecution) MarkAsRunning() {
	je.forceTransition(BatchStatusRunning)
	if je.StartTime.IsZero() {
		je.StartTime = je.LastUpdated
	}
	je.ExitStatus = ExitStatusExecuting
}

// MarkAsStopping records a stop request. The worker observes it at the next chunk boundary.
func (je *JobExecution) MarkAsStopping() {
	je.forceTransition(BatchStatusStopping)
}

// MarkAsCompleted finishes the execution as COMPLETED.
func (je *JobExecution) MarkAsCompleted() {
	je.finish(BatchStatusCompleted)
}

// MarkAsStopped finishes the execution as STOPPED.
func (je *JobExecution) MarkAsStopped() {
	je.finish(BatchStatusStopped)
}

// MarkAsAbandoned finishes the execution as ABANDONED. Used on the predecessor of a restart.
func (je *JobExecution) MarkAsAbandoned() {
	je.finish(BatchStatusAbandoned)
}

// MarkAsFailed finishes the execution as FAILED and records err.
func (je *JobExecution) MarkAsFailed(err error) {
	je.finish(BatchStatusFailed)
	je.AddFailureException(err)
}

// AddFailureException records err as "<kind>: <message>", skipping duplicates.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	entry := FormatFailure(err)
	for _, existing := range je.Failures {
		if existing == entry {
			return
		}
	}
	je.Failures = append(je.Failures, entry)
	je.LastUpdated = time.Now()
}

// AddStepExecution appends a step execution and links it back to je.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	se.JobExecution = je
	se.JobExecutionID = je.ID
	je.StepExecutions = append(je.StepExecutions, se)
}

// GetStepExecution returns the step execution of stepName.
func (je *JobExecution) GetStepExecution(stepName string) (*StepExecution, bool) {
	for _, se := range je.StepExecutions {
		if se.StepName == stepName {
			return se, true
		}
	}
	return nil, false
}

// IncrementRestartCount bumps the restart counter.
func (je *JobExecution) IncrementRestartCount() {
	je.RestartCount++
	je.LastUpdated = time.Now()
}

// ExitCode returns the process exit code for the current status.
func (je *JobExecution) ExitCode() int {
	return je.Status.ExitCode()
}

// FormatFailure renders err for a FailureList.
func FormatFailure(err error) string {
	return fmt.Sprintf("%s: %s", exception.Kind(err), exception.ExtractErrorMessage(err))
}

// StepExecution is one attempt to run a step within a JobExecution.
type StepExecution struct {
	ID               string
	StepName         string
	JobExecutionID   string
	JobExecution     *JobExecution
	Status           BatchStatus
	ExitStatus       ExitStatus
	StartTime        time.Time
	EndTime          *time.Time
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	Failures         FailureList
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
	Version          int
}

// NewStepExecution creates a StepExecution in CREATED status and attaches it to jobExecution.
func NewStepExecution(id string, jobExecution *JobExecution, stepName string) *StepExecution {
	se := &StepExecution{
		ID:               id,
		StepName:         stepName,
		Status:           BatchStatusCreated,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      time.Now(),
	}
	if jobExecution != nil {
		jobExecution.AddStepExecution(se)
	}
	return se
}

// TransitionTo moves the step to next if the step state machine allows it.
func (se *StepExecution) TransitionTo(next BatchStatus) error {
	if !canTransition(stepTransitions, se.Status, next) {
		return fmt.Errorf("StepExecution (ID: %s, step: %s): invalid state transition: %s -> %s", se.ID, se.StepName, se.Status, next)
	}
	se.Status = next
	se.LastUpdated = time.Now()
	return nil
}

func (se *StepExecution) finish(status BatchStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("%v; forcing status %s.", err, status)
		se.Status = status
	}
	se.ExitStatus = status.ToExitStatus()
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
}

// MarkAsRunning moves the step to RUNNING and records its start time.
func (se *StepExecution) MarkAsRunning() {
	if err := se.TransitionTo(BatchStatusRunning); err != nil {
		logger.Warnf("%v; forcing status %s.", err, BatchStatusRunning)
		se.Status = BatchStatusRunning
	}
	se.StartTime = time.Now()
	se.ExitStatus = ExitStatusExecuting
	se.LastUpdated = se.StartTime
}

// MarkAsCompleted finishes the step as COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	se.finish(BatchStatusCompleted)
}

// MarkAsStopped finishes the step as STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.finish(BatchStatusStopped)
}

// MarkAsFailed finishes the step as FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.finish(BatchStatusFailed)
	se.AddFailureException(err)
}

// AddFailureException records err, skipping duplicates.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	entry := FormatFailure(err)
	for _, existing := range se.Failures {
		if existing == entry {
			return
		}
	}
	se.Failures = append(se.Failures, entry)
	se.LastUpdated = time.Now()
}

// CopyForRestart prepares the step execution of a restarted job. A COMPLETED step keeps
// its status and counters so it is skipped; any other step starts over in CREATED with
// the checkpoint carried over in its ExecutionContext.
func (se *StepExecution) CopyForRestart(newJobExecutionID string) *StepExecution {
	c := &StepExecution{
		ID:               NewID(),
		StepName:         se.StepName,
		JobExecutionID:   newJobExecutionID,
		Failures:         make(FailureList, 0),
		ExecutionContext: se.ExecutionContext.Copy(),
		LastUpdated:      time.Now(),
	}
	if se.Status == BatchStatusCompleted {
		c.Status = BatchStatusCompleted
		c.ExitStatus = se.ExitStatus
		c.StartTime = se.StartTime
		c.EndTime = se.EndTime
		c.ReadCount = se.ReadCount
		c.WriteCount = se.WriteCount
		c.CommitCount = se.CommitCount
		c.RollbackCount = se.RollbackCount
		c.FilterCount = se.FilterCount
		return c
	}
	c.Status = BatchStatusCreated
	c.ExitStatus = ExitStatusUnknown
	return c
}

// String returns a one-line summary without the execution context.
func (se *StepExecution) String() string {
	return fmt.Sprintf("StepExecution{id=%s, step=%s, status=%s, exit=%s, read=%d, write=%d, filter=%d, commit=%d, rollback=%d}",
		se.ID, se.StepName, se.Status, se.ExitStatus, se.ReadCount, se.WriteCount, se.FilterCount, se.CommitCount, se.RollbackCount)
}

// CheckpointData is the persisted restart position of a step execution.
type CheckpointData struct {
	StepExecutionID  string
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
}

// NewCheckpointData snapshots ec for stepExecutionID.
func NewCheckpointData(stepExecutionID string, ec ExecutionContext) *CheckpointData {
	return &CheckpointData{
		StepExecutionID:  stepExecutionID,
		ExecutionContext: ec.Copy(),
		LastUpdated:      time.Now(),
	}
}
