// Package sql provides a JobRepository that keeps execution metadata in a relational
// database reached through a named database.DBConnection.
package sql

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const repositoryModule = "sql_job_repository"

// SQLJobRepository implements repository.JobRepository.
//
// Writes use the transaction carried by the context (see tx.WithTx) when there is one.
// Updates are version checked: an update that matches no row at the expected version
// fails with an OptimisticLockingFailureException. Inside a transaction the in-memory
// version is bumped only once the transaction commits.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)

// NewSQLJobRepository creates a SQLJobRepository on the connection dbName.
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLJobRepository {
	return &SQLJobRepository{dbResolver: dbResolver, dbName: dbName}
}

// Close implements repository.JobRepository. The connection belongs to its provider.
func (r *SQLJobRepository) Close() error {
	return nil
}

func (r *SQLJobRepository) connection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError(repositoryModule, fmt.Sprintf("Failed to resolve DB connection '%s'", r.dbName), err, false, true)
	}
	return conn, nil
}

// executor returns the transaction of ctx when it can run statements, else the connection.
func (r *SQLJobRepository) executor(ctx context.Context, conn database.DBConnection) database.DBExecutor {
	if t, ok := tx.FromContext(ctx); ok {
		if e, ok := t.(database.DBExecutor); ok {
			return e
		}
		logger.Warnf("SQLJobRepository: transaction %T cannot execute statements; writing outside of it.", t)
	}
	return conn
}

// bumpVersion increments *version now, or after the commit of the transaction in ctx.
func bumpVersion(ctx context.Context, version *int) {
	if t, ok := tx.FromContext(ctx); ok {
		t.AfterCommit(func() { *version++ })
		return
	}
	*version++
}

func (r *SQLJobRepository) insert(ctx context.Context, entity interface{}, tableName string, what string) error {
	conn, err := r.connection(ctx)
	if err != nil {
		return err
	}
	if _, err := r.executor(ctx, conn).ExecuteUpdate(ctx, entity, "CREATE", tableName, nil); err != nil {
		return exception.NewBatchError(repositoryModule, fmt.Sprintf("failed to save %s", what), err, false, true)
	}
	return nil
}

// update writes entity where its version still equals version.
func (r *SQLJobRepository) update(ctx context.Context, entity interface{}, tableName string, version int, what string) error {
	conn, err := r.connection(ctx)
	if err != nil {
		return err
	}
	rowsAffected, err := r.executor(ctx, conn).ExecuteUpdate(ctx, entity, "UPDATE", tableName, map[string]interface{}{"version": version})
	if err != nil {
		return exception.NewBatchError(repositoryModule, fmt.Sprintf("failed to update %s", what), err, false, true)
	}
	if rowsAffected == 0 {
		return exception.NewOptimisticLockingFailureException(repositoryModule, fmt.Sprintf("%s with version %d not found for update", what, version), nil)
	}
	return nil
}

// find loads the rows matching query into target. A missing table reads as no rows.
func (r *SQLJobRepository) find(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error {
	conn, err := r.connection(ctx)
	if err != nil {
		return err
	}
	if err := r.executor(ctx, conn).ExecuteQueryAdvanced(ctx, target, query, orderBy, limit); err != nil {
		if conn.IsTableNotExistError(err) {
			logger.Warnf("SQLJobRepository: metadata table missing (%v); migrations have not run.", err)
			return nil
		}
		return exception.NewBatchError(repositoryModule, "failed to query execution metadata", err, false, true)
	}
	return nil
}

// --- JobInstance ---

// SaveJobInstance implements repository.JobInstance.
func (r *SQLJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	entity := fromDomainJobInstance(instance)
	return r.insert(ctx, entity, JobInstanceTable, fmt.Sprintf("JobInstance (ID: %s)", instance.ID))
}

// UpdateJobInstance implements repository.JobInstance.
func (r *SQLJobRepository) UpdateJobInstance(ctx context.Context, instance *model.JobInstance) error {
	entity := fromDomainJobInstance(instance)
	entity.Version = instance.Version + 1
	if err := r.update(ctx, entity, JobInstanceTable, instance.Version, fmt.Sprintf("JobInstance (ID: %s)", instance.ID)); err != nil {
		return err
	}
	bumpVersion(ctx, &instance.Version)
	return nil
}

// FindJobInstanceByID implements repository.JobInstance.
func (r *SQLJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	var entities []JobInstanceEntity
	if err := r.find(ctx, &entities, map[string]interface{}{"id": id}, "", 1); err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobInstanceNotFound
	}
	return toDomainJobInstance(&entities[0]), nil
}

// FindJobInstanceByJobNameAndParameters implements repository.JobInstance. Rows are
// matched on the hash, then on the identifying parameters themselves.
func (r *SQLJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	identifying := params.IdentifyingParams()
	hash, err := identifying.Hash()
	if err != nil {
		return nil, exception.NewBatchError(repositoryModule, "failed to calculate JobParameters hash", err, false, false)
	}

	var entities []JobInstanceEntity
	if err := r.find(ctx, &entities, map[string]interface{}{"job_name": jobName, "parameters_hash": hash}, "", 0); err != nil {
		return nil, err
	}
	for i := range entities {
		instance := toDomainJobInstance(&entities[i])
		if instance.Parameters.Equal(identifying) {
			return instance, nil
		}
		logger.Warnf("SQLJobRepository: JobInstance (ID: %s) hash matched but parameters differ.", instance.ID)
	}
	return nil, repository.ErrJobInstanceNotFound
}

// FindJobInstancesByJobName implements repository.JobInstance.
func (r *SQLJobRepository) FindJobInstancesByJobName(ctx context.Context, jobName string) ([]*model.JobInstance, error) {
	var entities []JobInstanceEntity
	if err := r.find(ctx, &entities, map[string]interface{}{"job_name": jobName}, "create_time desc", 0); err != nil {
		return nil, err
	}
	instances := make([]*model.JobInstance, 0, len(entities))
	for i := range entities {
		instances = append(instances, toDomainJobInstance(&entities[i]))
	}
	return instances, nil
}

// GetJobInstanceCount implements repository.JobInstance.
func (r *SQLJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return 0, err
	}
	count, err := r.executor(ctx, conn).Count(ctx, &JobInstanceEntity{}, map[string]interface{}{"job_name": jobName})
	if err != nil {
		if conn.IsTableNotExistError(err) {
			return 0, nil
		}
		return 0, exception.NewBatchError(repositoryModule, fmt.Sprintf("failed to count JobInstances of job '%s'", jobName), err, false, true)
	}
	return int(count), nil
}

// GetJobNames implements repository.JobInstance.
func (r *SQLJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0)
	if err := r.executor(ctx, conn).Pluck(ctx, &JobInstanceEntity{}, "job_name", &names, nil); err != nil {
		if conn.IsTableNotExistError(err) {
			return []string{}, nil
		}
		return nil, exception.NewBatchError(repositoryModule, "failed to list job names", err, false, true)
	}
	sort.Strings(names)
	return names, nil
}

// --- JobExecution ---

// SaveJobExecution implements repository.JobExecution. Step executions are saved separately.
func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	entity := fromDomainJobExecution(jobExecution)
	return r.insert(ctx, entity, JobExecutionTable, fmt.Sprintf("JobExecution (ID: %s)", jobExecution.ID))
}

// UpdateJobExecution implements repository.JobExecution.
func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	entity := fromDomainJobExecution(jobExecution)
	entity.Version = jobExecution.Version + 1
	if err := r.update(ctx, entity, JobExecutionTable, jobExecution.Version, fmt.Sprintf("JobExecution (ID: %s)", jobExecution.ID)); err != nil {
		return err
	}
	bumpVersion(ctx, &jobExecution.Version)
	return nil
}

// FindJobExecutionByID implements repository.JobExecution.
func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	var entities []JobExecutionEntity
	if err := r.find(ctx, &entities, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(ctx, toDomainJobExecution(&entities[0]))
}

// FindLatestRestartableJobExecution implements repository.JobExecution.
func (r *SQLJobRepository) FindLatestRestartableJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error) {
	var entities []JobExecutionEntity
	query := map[string]interface{}{
		"job_instance_id": jobInstanceID,
		"status":          []string{string(model.BatchStatusFailed), string(model.BatchStatusStopped)},
	}
	if err := r.find(ctx, &entities, query, "create_time desc", 1); err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(ctx, toDomainJobExecution(&entities[0]))
}

// FindJobExecutionsByJobInstance implements repository.JobExecution. Step executions are not loaded.
func (r *SQLJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	var entities []JobExecutionEntity
	if err := r.find(ctx, &entities, map[string]interface{}{"job_instance_id": jobInstance.ID}, "create_time desc", 0); err != nil {
		return nil, err
	}
	executions := make([]*model.JobExecution, 0, len(entities))
	for i := range entities {
		executions = append(executions, toDomainJobExecution(&entities[i]))
	}
	return executions, nil
}

func (r *SQLJobRepository) withSteps(ctx context.Context, je *model.JobExecution) (*model.JobExecution, error) {
	steps, err := r.FindStepExecutionsByJobExecutionID(ctx, je.ID)
	if err != nil {
		return nil, err
	}
	for _, se := range steps {
		je.AddStepExecution(se)
	}
	return je, nil
}

// --- StepExecution ---

// SaveStepExecution implements repository.StepExecution.
func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	entity := fromDomainStepExecution(stepExecution)
	return r.insert(ctx, entity, StepExecutionTable, fmt.Sprintf("StepExecution (ID: %s)", stepExecution.ID))
}

// UpdateStepExecution implements repository.StepExecution.
func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	entity := fromDomainStepExecution(stepExecution)
	entity.Version = stepExecution.Version + 1
	if err := r.update(ctx, entity, StepExecutionTable, stepExecution.Version, fmt.Sprintf("StepExecution (ID: %s)", stepExecution.ID)); err != nil {
		return err
	}
	bumpVersion(ctx, &stepExecution.Version)
	return nil
}

// FindStepExecutionByID implements repository.StepExecution.
func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	var entities []StepExecutionEntity
	if err := r.find(ctx, &entities, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, repository.ErrStepExecutionNotFound
	}
	return toDomainStepExecution(&entities[0]), nil
}

// FindStepExecutionsByJobExecutionID implements repository.StepExecution.
func (r *SQLJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	var entities []StepExecutionEntity
	if err := r.find(ctx, &entities, map[string]interface{}{"job_execution_id": jobExecutionID}, "start_time asc, last_updated asc", 0); err != nil {
		return nil, err
	}
	steps := make([]*model.StepExecution, 0, len(entities))
	for i := range entities {
		steps = append(steps, toDomainStepExecution(&entities[i]))
	}
	return steps, nil
}

// --- CheckpointData ---

// SaveCheckpointData implements repository.CheckpointDataRepository as an upsert on the step execution ID.
func (r *SQLJobRepository) SaveCheckpointData(ctx context.Context, data *model.CheckpointData) error {
	conn, err := r.connection(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainCheckpointData(data)
	_, err = r.executor(ctx, conn).ExecuteUpsert(ctx, entity, CheckpointDataTable,
		[]string{"step_execution_id"}, []string{"execution_context", "last_updated"})
	if err != nil {
		return exception.NewBatchError(repositoryModule, fmt.Sprintf("failed to save checkpoint of StepExecution (ID: %s)", data.StepExecutionID), err, false, true)
	}
	return nil
}

// FindCheckpointData implements repository.CheckpointDataRepository.
func (r *SQLJobRepository) FindCheckpointData(ctx context.Context, stepExecutionID string) (*model.CheckpointData, error) {
	var entities []CheckpointDataEntity
	if err := r.find(ctx, &entities, map[string]interface{}{"step_execution_id": stepExecutionID}, "", 1); err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, repository.ErrCheckpointDataNotFound
	}
	return toDomainCheckpointData(&entities[0]), nil
}
