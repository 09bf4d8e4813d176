// Package logging provides listeners that write job, step and chunk progress to the
// engine logger.
package logging

import (
	"context"
	"strings"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// levelProperty selects the level of per-chunk messages ("debug" or "info").
const levelProperty = "level"

// --- Job Execution Listener ---

type LoggingJobListener struct {
	properties map[string]string
}

func NewLoggingJobListener(properties map[string]string) *LoggingJobListener {
	return &LoggingJobListener{properties: properties}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s, Params: %s", jobExecution.JobName, jobExecution.ID, jobExecution.Parameters.String())
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	if jobExecution.Status == model.BatchStatusFailed {
		logger.Errorf("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s, Failures: %s",
			jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus, strings.Join(jobExecution.Failures, "; "))
		return
	}
	logger.Infof("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s", jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus)
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

type LoggingStepListener struct {
	properties map[string]string
}

func NewLoggingStepListener(properties map[string]string) *LoggingStepListener {
	return &LoggingStepListener{properties: properties}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, ExitStatus: %s, Read: %d, Filtered: %d, Written: %d, Commits: %d, Rollbacks: %d",
		stepExecution.StepName, stepExecution.Status, stepExecution.ExitStatus,
		stepExecution.ReadCount, stepExecution.FilterCount, stepExecution.WriteCount,
		stepExecution.CommitCount, stepExecution.RollbackCount)
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

// --- Chunk Listener ---

// LoggingChunkListener logs chunk boundaries. It also observes read and write
// failures, so a step can register it as its item listener.
type LoggingChunkListener struct {
	properties map[string]string
	logf       func(format string, v ...interface{})
}

func NewLoggingChunkListener(properties map[string]string) *LoggingChunkListener {
	l := &LoggingChunkListener{properties: properties, logf: logger.Debugf}
	if strings.EqualFold(properties[levelProperty], "info") {
		l.logf = logger.Infof
	}
	return l
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
	l.logf("ChunkListener: BeforeChunk - StepName: %s, Chunk: %d", stepExecution.StepName, stepExecution.CommitCount+1)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	l.logf("ChunkListener: AfterChunk - StepName: %s, Read: %d, Write: %d", stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount)
}

func (l *LoggingChunkListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) {
	logger.Warnf("ChunkListener: AfterChunkError - StepName: %s, Rollbacks: %d, Error: %v", stepExecution.StepName, stepExecution.RollbackCount, err)
}

func (l *LoggingChunkListener) OnReadError(ctx context.Context, err error) {
	logger.Errorf("ItemReadListener: OnReadError - %v", err)
}

func (l *LoggingChunkListener) OnWriteError(ctx context.Context, items []interface{}, err error) {
	logger.Errorf("ItemWriteListener: OnWriteError - Items count: %d, Error: %v", len(items), err)
}

var (
	_ port.ChunkListener     = (*LoggingChunkListener)(nil)
	_ port.ItemReadListener  = (*LoggingChunkListener)(nil)
	_ port.ItemWriteListener = (*LoggingChunkListener)(nil)
)
