package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const schedulerModule = "job_scheduler"

// JobScheduler relaunches jobs on cron schedules. A tick that fires while the previous
// launch of the same job is still running is skipped.
type JobScheduler struct {
	launcher JobLauncher
	cron     *cron.Cron
	group    singleflight.Group

	mu      sync.Mutex
	entries map[string]cron.EntryID
	// OnFinish, when set, is called with the result of every scheduled run.
	OnFinish func(jobExecution *model.JobExecution, err error)
}

// NewJobScheduler creates a JobScheduler. Expressions use the standard five field syntax
// plus descriptors such as @hourly.
func NewJobScheduler(launcher JobLauncher) *JobScheduler {
	return &JobScheduler{
		launcher: launcher,
		cron:     cron.New(),
		entries:  make(map[string]cron.EntryID),
	}
}

// Schedule registers jobName to be launched with params on every tick of spec. Each run
// gets a fresh run discriminator from the job's incrementer. A job has at most one
// schedule; scheduling it again replaces the previous one.
func (s *JobScheduler) Schedule(ctx context.Context, spec string, jobName string, params model.JobParameters) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return exception.NewConfigurationError(schedulerModule, fmt.Sprintf("invalid cron expression '%s' for job '%s'", spec, jobName), err)
	}

	run := func() {
		_, _, shared := s.group.Do(jobName, func() (interface{}, error) {
			jobExecution, err := s.launcher.LaunchAndWait(ctx, jobName, params)
			if err != nil {
				logger.Errorf("Scheduled run of Job '%s' failed: %v", jobName, err)
			} else {
				logger.Infof("Scheduled run of Job '%s' finished with status %s (Execution ID: %s).", jobName, jobExecution.Status, jobExecution.ID)
			}
			if s.OnFinish != nil {
				s.OnFinish(jobExecution, err)
			}
			return nil, nil
		})
		if shared {
			logger.Warnf("Scheduled run of Job '%s' skipped: the previous run has not finished.", jobName)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[jobName]; ok {
		s.cron.Remove(id)
	}
	id, err := s.cron.AddFunc(spec, run)
	if err != nil {
		return exception.NewConfigurationError(schedulerModule, fmt.Sprintf("failed to schedule job '%s'", jobName), err)
	}
	s.entries[jobName] = id
	logger.Infof("Scheduled Job '%s' with '%s'. Next run: %s", jobName, spec, s.cron.Entry(id).Next)
	return nil
}

// Unschedule removes the schedule of jobName.
func (s *JobScheduler) Unschedule(jobName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[jobName]; ok {
		s.cron.Remove(id)
		delete(s.entries, jobName)
	}
}

// Start starts firing scheduled launches in the background.
func (s *JobScheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and returns a context that is done once running launches
// have returned.
func (s *JobScheduler) Stop() context.Context {
	return s.cron.Stop()
}
