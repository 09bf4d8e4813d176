package sql

import (
	"sort"
	"strings"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func fromDomainJobInstance(ji *model.JobInstance) *JobInstanceEntity {
	return &JobInstanceEntity{
		ID:             ji.ID,
		JobName:        ji.JobName,
		Parameters:     ji.Parameters,
		ParametersHash: ji.ParametersHash,
		CreateTime:     ji.CreateTime,
		Version:        ji.Version,
	}
}

func toDomainJobInstance(entity *JobInstanceEntity) *model.JobInstance {
	return &model.JobInstance{
		ID:             entity.ID,
		JobName:        entity.JobName,
		Parameters:     entity.Parameters,
		ParametersHash: entity.ParametersHash,
		CreateTime:     entity.CreateTime,
		Version:        entity.Version,
	}
}

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	keys := je.Parameters.NonIdentifyingKeys()
	sort.Strings(keys)
	return &JobExecutionEntity{
		ID:                 je.ID,
		JobInstanceID:      je.JobInstanceID,
		JobName:            je.JobName,
		Parameters:         je.Parameters,
		NonIdentifyingKeys: strings.Join(keys, ","),
		Status:             je.Status,
		ExitStatus:         je.ExitStatus,
		StartTime:          je.StartTime,
		EndTime:            je.EndTime,
		CreateTime:         je.CreateTime,
		LastUpdated:        je.LastUpdated,
		Failures:           nonNilFailures(je.Failures),
		ExecutionContext:   nonNilContext(je.ExecutionContext),
		CurrentStepName:    je.CurrentStepName,
		RestartCount:       je.RestartCount,
		Version:            je.Version,
	}
}

// toDomainJobExecution restores the non-identifying flags the parameters column cannot carry.
func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	params := model.NewJobParameters()
	for _, key := range entity.Parameters.Keys() {
		value, _ := entity.Parameters.Get(key)
		params = params.With(key, value)
	}
	if entity.NonIdentifyingKeys != "" {
		for _, key := range strings.Split(entity.NonIdentifyingKeys, ",") {
			if value, ok := params.Get(key); ok {
				params = params.WithNonIdentifying(key, value)
			}
		}
	}
	return &model.JobExecution{
		ID:               entity.ID,
		JobInstanceID:    entity.JobInstanceID,
		JobName:          entity.JobName,
		Parameters:       params,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		CreateTime:       entity.CreateTime,
		LastUpdated:      entity.LastUpdated,
		Failures:         nonNilFailures(entity.Failures),
		ExecutionContext: nonNilContext(entity.ExecutionContext),
		CurrentStepName:  entity.CurrentStepName,
		RestartCount:     entity.RestartCount,
		Version:          entity.Version,
		StepExecutions:   make([]*model.StepExecution, 0),
	}
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	return &StepExecutionEntity{
		ID:               se.ID,
		StepName:         se.StepName,
		JobExecutionID:   se.JobExecutionID,
		Status:           se.Status,
		ExitStatus:       se.ExitStatus,
		StartTime:        se.StartTime,
		EndTime:          se.EndTime,
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		CommitCount:      se.CommitCount,
		RollbackCount:    se.RollbackCount,
		FilterCount:      se.FilterCount,
		Failures:         nonNilFailures(se.Failures),
		ExecutionContext: nonNilContext(se.ExecutionContext),
		LastUpdated:      se.LastUpdated,
		Version:          se.Version,
	}
}

func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	return &model.StepExecution{
		ID:               entity.ID,
		StepName:         entity.StepName,
		JobExecutionID:   entity.JobExecutionID,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		ReadCount:        entity.ReadCount,
		WriteCount:       entity.WriteCount,
		CommitCount:      entity.CommitCount,
		RollbackCount:    entity.RollbackCount,
		FilterCount:      entity.FilterCount,
		Failures:         nonNilFailures(entity.Failures),
		ExecutionContext: nonNilContext(entity.ExecutionContext),
		LastUpdated:      entity.LastUpdated,
		Version:          entity.Version,
	}
}

func fromDomainCheckpointData(data *model.CheckpointData) *CheckpointDataEntity {
	return &CheckpointDataEntity{
		StepExecutionID:  data.StepExecutionID,
		ExecutionContext: nonNilContext(data.ExecutionContext),
		LastUpdated:      data.LastUpdated,
	}
}

func toDomainCheckpointData(entity *CheckpointDataEntity) *model.CheckpointData {
	return &model.CheckpointData{
		StepExecutionID:  entity.StepExecutionID,
		ExecutionContext: nonNilContext(entity.ExecutionContext),
		LastUpdated:      entity.LastUpdated,
	}
}

func nonNilFailures(fl model.FailureList) model.FailureList {
	if fl == nil {
		return make(model.FailureList, 0)
	}
	return fl
}

func nonNilContext(ec model.ExecutionContext) model.ExecutionContext {
	if ec == nil {
		return model.NewExecutionContext()
	}
	return ec
}
