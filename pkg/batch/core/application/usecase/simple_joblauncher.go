package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	support "github.com/tigerroll/chunkbatch/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const launcherModule = "job_launcher"

// activeExecution tracks a job running in this process.
type activeExecution struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// SimpleJobLauncher runs jobs in goroutines of the current process.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
	jobFactory    *support.JobFactory

	// active holds the executions started by this launcher that have not finished yet.
	active map[string]*activeExecution
	mu     sync.Mutex
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a SimpleJobLauncher.
func NewSimpleJobLauncher(repo repository.JobRepository, factory *support.JobFactory) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobRepository: repo,
		jobFactory:    factory,
		active:        make(map[string]*activeExecution),
	}
}

// Launch resolves the job instance of jobName and params, persists a new execution and
// runs it asynchronously.
//
// params are validated first. On a validation failure nothing is persisted and no run
// discriminator is drawn; the error comes with a FAILED execution that never ran.
//
// When the job has an incrementer and params do not carry its key, a fresh run
// discriminator is added first. An instance that already has a COMPLETED execution fails
// with a DuplicateInstanceError; a FAILED or STOPPED one is restarted and its previous
// execution is marked ABANDONED.
//
// Until it finishes the returned execution is owned by the worker; read its progress
// through a JobExplorer or call Wait.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	jobExecution, _, err := l.start(ctx, jobName, params)
	return jobExecution, err
}

// LaunchAndWait launches jobName and waits until its execution is in a terminal status.
// Cancelling ctx stops the job at the next chunk boundary; the call still waits for it.
func (l *SimpleJobLauncher) LaunchAndWait(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	jobExecution, active, err := l.start(ctx, jobName, params)
	if err != nil {
		return jobExecution, err
	}
	<-active.done
	return jobExecution, active.err
}

func (l *SimpleJobLauncher) start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, *activeExecution, error) {
	logger.Infof("Launching Job '%s'. Parameters: %s", jobName, params.String())

	job, err := l.jobFactory.CreateJob(jobName)
	if err != nil {
		return nil, nil, err
	}

	// Rejected parameters leave no instance, execution or run id behind.
	if err := job.ValidateParameters(params); err != nil {
		logger.Errorf("Job '%s' rejected before launch: %v", jobName, err)
		return rejectedExecution(jobName, params, err), nil, err
	}

	params, err = l.applyIncrementer(ctx, job, jobName, params)
	if err != nil {
		return nil, nil, err
	}

	jobExecution, err := l.prepareExecution(ctx, jobName, params)
	if err != nil {
		return nil, nil, err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	jobExecution.CancelFunc = cancel
	active := &activeExecution{cancel: cancel, done: make(chan struct{})}
	l.register(jobExecution.ID, active)

	logger.Infof("Starting Job '%s' (Execution ID: %s, Job Instance ID: %s, Restart Count: %d).",
		jobName, jobExecution.ID, jobExecution.JobInstanceID, jobExecution.RestartCount)

	go func() {
		defer func() {
			cancel()
			l.unregister(jobExecution.ID)
			close(active.done)
		}()
		active.err = job.Run(jobCtx, jobExecution, jobExecution.Parameters)
	}()

	return jobExecution, active, nil
}

// rejectedExecution is the FAILED, unpersisted execution reported for a launch whose
// parameters failed validation.
func rejectedExecution(jobName string, params model.JobParameters, err error) *model.JobExecution {
	je := model.NewJobExecution("", jobName, params)
	je.MarkAsValidating()
	je.MarkAsFailed(err)
	return je
}

// Wait blocks while the execution executionID is running in this launcher and returns
// the failure that ended it. It returns nil at once when the execution is not running here.
func (l *SimpleJobLauncher) Wait(executionID string) error {
	l.mu.Lock()
	active, ok := l.active[executionID]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	<-active.done
	return active.err
}

// GetCancelFunc returns the cancel func of a running execution started by this launcher.
func (l *SimpleJobLauncher) GetCancelFunc(executionID string) (context.CancelFunc, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	active, ok := l.active[executionID]
	if !ok {
		return nil, false
	}
	return active.cancel, true
}

// Running returns the IDs of the executions this launcher is currently running.
func (l *SimpleJobLauncher) Running() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	return ids
}

func (l *SimpleJobLauncher) register(executionID string, active *activeExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active[executionID] = active
	logger.Debugf("Registered CancelFunc for JobExecution (ID: %s).", executionID)
}

func (l *SimpleJobLauncher) unregister(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, executionID)
	logger.Debugf("Unregistered CancelFunc for JobExecution (ID: %s).", executionID)
}

func (l *SimpleJobLauncher) applyIncrementer(ctx context.Context, job port.Job, jobName string, params model.JobParameters) (model.JobParameters, error) {
	inc := job.Incrementer()
	if inc == nil {
		return params, nil
	}
	if _, ok := params.Get(inc.DiscriminatorKey()); ok {
		logger.Debugf("Job '%s': '%s' supplied by the caller, incrementer not applied.", jobName, inc.DiscriminatorKey())
		return params, nil
	}
	next, err := inc.GetNext(ctx, jobName, params)
	if err != nil {
		return params, exception.NewBatchError(launcherModule, fmt.Sprintf("Failed to obtain the run discriminator of job '%s'", jobName), err, false, false)
	}
	logger.Infof("Job '%s': parameters after incrementer: %s", jobName, next.String())
	return next, nil
}

// prepareExecution finds or creates the job instance of params and persists the
// execution that will run it, with its step executions when it is a restart.
func (l *SimpleJobLauncher) prepareExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	instance, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if errors.Is(err, repository.ErrJobInstanceNotFound) {
		return l.newInstanceExecution(ctx, jobName, params)
	}
	if err != nil {
		return nil, exception.NewBatchError(launcherModule, "Failed to search for existing JobInstance", err, false, false)
	}

	executions, err := l.jobRepository.FindJobExecutionsByJobInstance(ctx, instance)
	if err != nil {
		return nil, exception.NewBatchError(launcherModule, fmt.Sprintf("Failed to retrieve JobExecutions of JobInstance (ID: %s)", instance.ID), err, false, false)
	}
	for _, je := range executions {
		if je.Status.IsRunning() {
			return nil, exception.NewJobRestartError(launcherModule,
				fmt.Sprintf("JobExecution (ID: %s, Status: %s) of JobInstance (ID: %s) is still running", je.ID, je.Status, instance.ID), nil)
		}
		if je.Status == model.BatchStatusCompleted {
			return nil, exception.NewDuplicateInstanceError(launcherModule,
				fmt.Sprintf("JobInstance (ID: %s) of job '%s' with parameters %s is already COMPLETED", instance.ID, jobName, instance.Parameters.String()))
		}
	}

	if len(executions) == 0 {
		jobExecution := model.NewJobExecution(instance.ID, jobName, params)
		if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
			return nil, exception.NewBatchError(launcherModule, "Failed to save JobExecution", err, false, false)
		}
		return jobExecution, nil
	}

	latest := executions[0]
	if !latest.Status.IsRestartable() {
		return nil, exception.NewJobRestartError(launcherModule,
			fmt.Sprintf("latest JobExecution (ID: %s) of JobInstance (ID: %s) is %s and cannot be restarted", latest.ID, instance.ID, latest.Status), nil)
	}
	return l.restartExecution(ctx, latest.ID, params)
}

func (l *SimpleJobLauncher) newInstanceExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	instance, err := model.NewJobInstance(jobName, params)
	if err != nil {
		return nil, err
	}
	if err := l.jobRepository.SaveJobInstance(ctx, instance); err != nil {
		return nil, exception.NewBatchError(launcherModule, fmt.Sprintf("Failed to save new JobInstance of job '%s'", jobName), err, false, false)
	}
	logger.Infof("Created JobInstance (ID: %s, JobName: %s).", instance.ID, jobName)

	jobExecution := model.NewJobExecution(instance.ID, jobName, params)
	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		return nil, exception.NewBatchError(launcherModule, "Failed to save JobExecution", err, false, false)
	}
	return jobExecution, nil
}

// restartExecution abandons the execution previousID and creates its successor. Step
// executions are copied so that COMPLETED steps are skipped and the others resume from
// their checkpoints.
func (l *SimpleJobLauncher) restartExecution(ctx context.Context, previousID string, params model.JobParameters) (*model.JobExecution, error) {
	previous, err := l.jobRepository.FindJobExecutionByID(ctx, previousID)
	if err != nil {
		return nil, exception.NewBatchError(launcherModule, fmt.Sprintf("Failed to load JobExecution (ID: %s)", previousID), err, false, false)
	}

	// The version check of this update rejects a concurrent restart of the same execution.
	previous.MarkAsAbandoned()
	if err := l.jobRepository.UpdateJobExecution(ctx, previous); err != nil {
		return nil, exception.NewJobRestartError(launcherModule, fmt.Sprintf("Failed to mark JobExecution (ID: %s) as ABANDONED", previous.ID), err)
	}
	logger.Infof("Marked JobExecution (ID: %s) as ABANDONED for restart.", previous.ID)

	jobExecution := model.NewJobExecution(previous.JobInstanceID, previous.JobName, params)
	jobExecution.ExecutionContext = previous.ExecutionContext.Copy()
	jobExecution.RestartCount = previous.RestartCount
	jobExecution.IncrementRestartCount()
	for _, se := range previous.StepExecutions {
		jobExecution.AddStepExecution(se.CopyForRestart(jobExecution.ID))
	}

	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		return nil, exception.NewBatchError(launcherModule, "Failed to save restart JobExecution", err, false, false)
	}
	for _, se := range jobExecution.StepExecutions {
		if err := l.jobRepository.SaveStepExecution(ctx, se); err != nil {
			return nil, exception.NewBatchError(launcherModule, fmt.Sprintf("Failed to save StepExecution of step '%s' for restart", se.StepName), err, false, false)
		}
	}
	logger.Infof("Created restart JobExecution (ID: %s) of JobInstance (ID: %s). Restart Count: %d",
		jobExecution.ID, jobExecution.JobInstanceID, jobExecution.RestartCount)
	return jobExecution, nil
}
