package sql

import (
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// Table names of the execution metadata.
const (
	JobInstanceTable    = "batch_job_instance"
	JobExecutionTable   = "batch_job_execution"
	StepExecutionTable  = "batch_step_execution"
	CheckpointDataTable = "batch_checkpoint_data"
)

// JobInstanceEntity is the row of a JobInstance.
type JobInstanceEntity struct {
	ID             string              `gorm:"column:id;primaryKey"`
	JobName        string              `gorm:"column:job_name"`
	Parameters     model.JobParameters `gorm:"column:parameters"`
	ParametersHash string              `gorm:"column:parameters_hash"`
	CreateTime     time.Time           `gorm:"column:create_time"`
	Version        int                 `gorm:"column:version"`
}

func (JobInstanceEntity) TableName() string {
	return JobInstanceTable
}

// JobExecutionEntity is the row of a JobExecution. Step executions live in their own table.
type JobExecutionEntity struct {
	ID                 string                 `gorm:"column:id;primaryKey"`
	JobInstanceID      string                 `gorm:"column:job_instance_id"`
	JobName            string                 `gorm:"column:job_name"`
	Parameters         model.JobParameters    `gorm:"column:parameters"`
	NonIdentifyingKeys string                 `gorm:"column:non_identifying_keys"`
	Status             model.BatchStatus      `gorm:"column:status"`
	ExitStatus         model.ExitStatus       `gorm:"column:exit_status"`
	StartTime          time.Time              `gorm:"column:start_time"`
	EndTime            *time.Time             `gorm:"column:end_time"`
	CreateTime         time.Time              `gorm:"column:create_time"`
	LastUpdated        time.Time              `gorm:"column:last_updated"`
	Failures           model.FailureList      `gorm:"column:failures"`
	ExecutionContext   model.ExecutionContext `gorm:"column:execution_context"`
	CurrentStepName    string                 `gorm:"column:current_step_name"`
	RestartCount       int                    `gorm:"column:restart_count"`
	Version            int                    `gorm:"column:version"`
}

func (JobExecutionEntity) TableName() string {
	return JobExecutionTable
}

// StepExecutionEntity is the row of a StepExecution.
type StepExecutionEntity struct {
	ID               string                 `gorm:"column:id;primaryKey"`
	StepName         string                 `gorm:"column:step_name"`
	JobExecutionID   string                 `gorm:"column:job_execution_id"`
	Status           model.BatchStatus      `gorm:"column:status"`
	ExitStatus       model.ExitStatus       `gorm:"column:exit_status"`
	StartTime        time.Time              `gorm:"column:start_time"`
	EndTime          *time.Time             `gorm:"column:end_time"`
	ReadCount        int                    `gorm:"column:read_count"`
	WriteCount       int                    `gorm:"column:write_count"`
	CommitCount      int                    `gorm:"column:commit_count"`
	RollbackCount    int                    `gorm:"column:rollback_count"`
	FilterCount      int                    `gorm:"column:filter_count"`
	Failures         model.FailureList      `gorm:"column:failures"`
	ExecutionContext model.ExecutionContext `gorm:"column:execution_context"`
	LastUpdated      time.Time              `gorm:"column:last_updated"`
	Version          int                    `gorm:"column:version"`
}

func (StepExecutionEntity) TableName() string {
	return StepExecutionTable
}

// CheckpointDataEntity is the last committed checkpoint of a step execution.
type CheckpointDataEntity struct {
	StepExecutionID  string                 `gorm:"column:step_execution_id;primaryKey"`
	ExecutionContext model.ExecutionContext `gorm:"column:execution_context"`
	LastUpdated      time.Time              `gorm:"column:last_updated"`
}

func (CheckpointDataEntity) TableName() string {
	return CheckpointDataTable
}
