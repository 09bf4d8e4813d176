// Package runner implements port.Job as an ordered sequence of steps.
package runner

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SimpleJobParams holds the collaborators of a SimpleJob.
type SimpleJobParams struct {
	Name          string
	Validator     port.JobParametersValidator
	Incrementer   port.JobParametersIncrementer
	Steps         []port.StepBuilder
	JobRepository repository.JobRepository
	Listeners     []port.JobExecutionListener

	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

// SimpleJob runs its steps in declaration order and stops at the first step that does
// not complete.
//
// A run validates the parameters (VALIDATING), builds every step, and only then moves
// to RUNNING. A validation or build failure ends the run as FAILED before any step
// execution is created. On restart, steps whose execution is already COMPLETED are skipped.
type SimpleJob struct {
	name           string
	validator      port.JobParametersValidator
	incrementer    port.JobParametersIncrementer
	steps          []port.StepBuilder
	jobRepository  repository.JobRepository
	listeners      []port.JobExecutionListener
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

var _ port.Job = (*SimpleJob)(nil)

// NewSimpleJob validates p and creates a SimpleJob.
func NewSimpleJob(p SimpleJobParams) (*SimpleJob, error) {
	if p.Name == "" {
		return nil, exception.NewConfigurationError("simple_job", "job name is required", nil)
	}
	if len(p.Steps) == 0 {
		return nil, exception.NewConfigurationError(p.Name, "a job needs at least one step", nil)
	}
	if p.JobRepository == nil {
		return nil, exception.NewConfigurationError(p.Name, "a JobRepository is required", nil)
	}
	seen := make(map[string]struct{}, len(p.Steps))
	for i, s := range p.Steps {
		if s == nil || s.StepName() == "" {
			return nil, exception.NewConfigurationError(p.Name, fmt.Sprintf("step #%d has no name", i+1), nil)
		}
		if _, dup := seen[s.StepName()]; dup {
			return nil, exception.NewConfigurationError(p.Name, fmt.Sprintf("duplicate step name '%s'", s.StepName()), nil)
		}
		seen[s.StepName()] = struct{}{}
	}
	if p.MetricRecorder == nil {
		p.MetricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if p.Tracer == nil {
		p.Tracer = metrics.NewNoOpTracer()
	}
	return &SimpleJob{
		name:           p.Name,
		validator:      p.Validator,
		incrementer:    p.Incrementer,
		steps:          append([]port.StepBuilder(nil), p.Steps...),
		jobRepository:  p.JobRepository,
		listeners:      p.Listeners,
		metricRecorder: p.MetricRecorder,
		tracer:         p.Tracer,
	}, nil
}

// JobName implements port.Job.
func (j *SimpleJob) JobName() string {
	return j.name
}

// StepNames returns the step names in execution order.
func (j *SimpleJob) StepNames() []string {
	names := make([]string, len(j.steps))
	for i, s := range j.steps {
		names[i] = s.StepName()
	}
	return names
}

// ValidateParameters implements port.Job. A job without a validator accepts any parameters.
func (j *SimpleJob) ValidateParameters(params model.JobParameters) error {
	logger.Debugf("Job '%s': validating parameters %s", j.name, params.String())
	if j.validator == nil {
		return nil
	}
	return j.validator.Validate(params)
}

// Incrementer implements port.Job.
func (j *SimpleJob) Incrementer() port.JobParametersIncrementer {
	return j.incrementer
}

// Run implements port.Job.
func (j *SimpleJob) Run(ctx context.Context, je *model.JobExecution, params model.JobParameters) (runErr error) {
	ctx, endSpan := j.tracer.StartJobSpan(ctx, je)
	defer endSpan()
	// Bookkeeping writes must land even after a stop request.
	work := context.WithoutCancel(ctx)
	started := time.Now()

	logger.Infof("Job '%s' starting (JobExecution ID: %s).", j.name, je.ID)
	j.metricRecorder.RecordJobStart(ctx, je)
	defer func() {
		if err := j.jobRepository.UpdateJobExecution(work, je); err != nil {
			logger.Errorf("Job '%s': failed to persist final JobExecution state: %v", j.name, err)
			if runErr == nil && je.Status == model.BatchStatusCompleted {
				runErr = exception.NewBatchError(j.name, "failed to persist final JobExecution state", err, false, false)
				je.MarkAsFailed(runErr)
			}
		}
		for _, l := range j.listeners {
			l.AfterJob(ctx, je)
		}
		j.metricRecorder.RecordJobEnd(ctx, je)
		j.metricRecorder.RecordDuration(ctx, "job.duration", time.Since(started), map[string]string{
			"job":    j.name,
			"status": je.Status.String(),
		})
		logger.Infof("Job '%s' finished with status %s (exit code %d).", j.name, je.Status, je.ExitCode())
	}()

	steps, err := j.prepare(work, je, params)
	if err != nil {
		logger.Errorf("Job '%s' failed before its first step: %v", j.name, err)
		j.tracer.RecordError(ctx, j.name, err)
		je.MarkAsFailed(err)
		return err
	}

	je.MarkAsRunning()
	if err := j.jobRepository.UpdateJobExecution(work, je); err != nil {
		err = exception.NewBatchError(j.name, "failed to mark JobExecution as RUNNING", err, false, false)
		je.MarkAsFailed(err)
		return err
	}
	for _, l := range j.listeners {
		l.BeforeJob(ctx, je)
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			logger.Infof("Job '%s': stop requested before step '%s'.", j.name, step.StepName())
			je.MarkAsStopped()
			return nil
		}

		se, err := j.stepExecutionFor(work, je, step.StepName())
		if err != nil {
			je.MarkAsFailed(err)
			return err
		}
		if se == nil {
			logger.Infof("Job '%s': step '%s' already COMPLETED, skipping.", j.name, step.StepName())
			continue
		}

		je.CurrentStepName = step.StepName()
		if err := j.jobRepository.UpdateJobExecution(work, je); err != nil {
			logger.Warnf("Job '%s': failed to record current step '%s': %v", j.name, step.StepName(), err)
		}

		stepErr := step.Execute(ctx, je, se)
		switch {
		case se.Status == model.BatchStatusStopped:
			logger.Infof("Job '%s': step '%s' stopped.", j.name, step.StepName())
			je.MarkAsStopped()
			return nil
		case stepErr != nil || se.Status != model.BatchStatusCompleted:
			if stepErr == nil {
				stepErr = exception.NewBatchErrorf(j.name, "step '%s' ended with status %s", step.StepName(), se.Status)
			}
			j.tracer.RecordError(ctx, step.StepName(), stepErr)
			je.MarkAsFailed(stepErr)
			return stepErr
		}
	}

	je.MarkAsCompleted()
	return nil
}

// prepare moves je through VALIDATING, validates params and builds the steps.
func (j *SimpleJob) prepare(ctx context.Context, je *model.JobExecution, params model.JobParameters) ([]port.Step, error) {
	if je.Status == model.BatchStatusCreated {
		je.MarkAsValidating()
		if err := j.jobRepository.UpdateJobExecution(ctx, je); err != nil {
			return nil, exception.NewBatchError(j.name, "failed to mark JobExecution as VALIDATING", err, false, false)
		}
	}
	if err := j.ValidateParameters(params); err != nil {
		return nil, err
	}

	steps := make([]port.Step, 0, len(j.steps))
	for _, b := range j.steps {
		step, err := b.Build(ctx, params)
		if err != nil {
			if exception.IsBatchError(err) {
				return nil, err
			}
			return nil, exception.NewConfigurationError(j.name, fmt.Sprintf("failed to build step '%s'", b.StepName()), err)
		}
		if step == nil {
			return nil, exception.NewConfigurationError(j.name, fmt.Sprintf("step builder '%s' returned no step", b.StepName()), nil)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// stepExecutionFor returns the execution stepName runs with: the one carried over from a
// previous attempt if it did not complete, or a new persisted one. It returns nil when
// the step already completed.
func (j *SimpleJob) stepExecutionFor(ctx context.Context, je *model.JobExecution, stepName string) (*model.StepExecution, error) {
	if se, ok := je.GetStepExecution(stepName); ok {
		if se.Status == model.BatchStatusCompleted {
			return nil, nil
		}
		if se.Status == model.BatchStatusCreated {
			logger.Debugf("Job '%s': resuming step '%s' with StepExecution %s.", j.name, stepName, se.ID)
			return se, nil
		}
		return nil, exception.NewJobRestartError(j.name, fmt.Sprintf("step '%s' has StepExecution %s in status %s", stepName, se.ID, se.Status), nil)
	}

	se := model.NewStepExecution(model.NewID(), je, stepName)
	if err := j.jobRepository.SaveStepExecution(ctx, se); err != nil {
		if exception.IsOptimisticLockingFailure(err) {
			return nil, err
		}
		return nil, exception.NewBatchError(j.name, fmt.Sprintf("failed to save StepExecution of step '%s'", stepName), err, false, false)
	}
	return se, nil
}
