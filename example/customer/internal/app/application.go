// Package app wires the customer batch application: the engine modules, the sample
// database and the customer jobs, and runs the job asked for on the command line.
package app

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/migration"
	usecase "github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	jsl "github.com/tigerroll/chunkbatch/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/chunkbatch/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	incrementer "github.com/tigerroll/chunkbatch/pkg/batch/core/support/incrementer"
	inframetrics "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/sql"
	batchlistener "github.com/tigerroll/chunkbatch/pkg/batch/listener"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"

	appjob "github.com/tigerroll/chunkbatch/example/customer/internal/job"
)

// embeddedJSL holds the definitions of the customer jobs.
//
//go:embed resources/job.yaml
var embeddedJSL []byte

// sampleMigrationsFS holds the customer table migrations, one directory per database type.
//
//go:embed all:resources/migrations
var sampleMigrationsFS embed.FS

// snapshotMigrationsFS holds the customer_snapshot table migrations. They run on the
// job repository database, where job-customer-snapshot writes.
//
//go:embed all:resources/snapshot_migrations
var snapshotMigrationsFS embed.FS

// snapshotMigrationsTable keeps the snapshot migrations apart from the sample ones
// when both live in one database.
const snapshotMigrationsTable = "customer_snapshot_migrations"

// ExitFailed is the exit code of a request that could not start an execution.
const ExitFailed = 1

// Request is what the command line asks the application to do.
type Request struct {
	// JobName is the job to run. Empty means surfin.batch.job_name.
	JobName string
	Params  model.JobParameters
	// Restart resumes the newest FAILED or STOPPED execution matching Params instead of launching.
	Restart bool
	// Schedule is a cron expression. When set the job is launched on every tick until the
	// application context is cancelled. Empty means surfin.batch.schedule.
	Schedule string
}

// Result is the outcome of a request.
type Result struct {
	ExitCode int
	// Execution is the last execution run, nil when none could be started.
	Execution *model.JobExecution
	Err       error
}

// JobDefinitions returns the embedded job definitions.
func JobDefinitions() jsl.JSLDefinitionBytes {
	return embeddedJSL
}

// SampleMigrationFS returns the migrations of the customer table.
func SampleMigrationFS() fs.FS {
	sub, err := fs.Sub(sampleMigrationsFS, "resources/migrations")
	if err != nil {
		panic(fmt.Sprintf("customer migrations not embedded: %v", err))
	}
	return sub
}

// SnapshotMigrationFS returns the migrations of the customer_snapshot table.
func SnapshotMigrationFS() fs.FS {
	sub, err := fs.Sub(snapshotMigrationsFS, "resources/snapshot_migrations")
	if err != nil {
		panic(fmt.Sprintf("snapshot migrations not embedded: %v", err))
	}
	return sub
}

// ExitCodeOf maps an execution to the exit code of the process: 0 for COMPLETED,
// 2 for STOPPED and 1 otherwise, including no execution at all.
func ExitCodeOf(execution *model.JobExecution) int {
	if execution == nil {
		return ExitFailed
	}
	return execution.ExitCode()
}

// LoadConfig loads the configuration and applies its logging settings.
func LoadConfig(envFilePath string, embeddedConfig config.EmbeddedConfig) (*config.Config, error) {
	return config.NewConfigProvider(config.ConfigParams{
		EmbeddedConfig: embeddedConfig,
		EnvFilePath:    envFilePath,
	})
}

// jobRepositoryModule selects the job repository named by surfin.infrastructure.job_repository.type.
func jobRepositoryModule(cfg *config.Config) fx.Option {
	if cfg.Surfin.Infrastructure.JobRepository.Type == config.JobRepositorySQL {
		logger.Debugf("Using the SQL job repository on '%s'.", cfg.Surfin.Infrastructure.JobRepository.DBRef)
		return sqlrepo.Module
	}
	logger.Debugf("Using the in-memory job repository. Executions are lost when the process ends.")
	return inmemory.Module
}

// GetApplicationOptions returns the fx options of the application. dbProviderOptions
// contribute the database providers; extra options are appended last.
func GetApplicationOptions(
	appCtx context.Context,
	cfg *config.Config,
	req Request,
	done chan Result,
	dbProviderOptions []fx.Option,
	extra ...fx.Option,
) []fx.Option {
	var options []fx.Option

	options = append(options, fx.Supply(
		cfg,
		JobDefinitions(),
		req,
		fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
		fx.Annotate(done, fx.ResultTags(`name:"jobDone"`)),
	))
	options = append(options, logger.Module)
	options = append(options, dbProviderOptions...)
	options = append(options, gormadapter.Module)
	options = append(options, storage.Module, local.Module, gcs.Module)
	options = append(options, jobRepositoryModule(cfg))
	options = append(options, inframetrics.Module)
	options = append(options, support.Module)
	options = append(options, usecase.Module)
	options = append(options, incrementer.Module)
	options = append(options, batchlistener.Module)
	options = append(options, appjob.Module)
	options = append(options, fx.Invoke(migrateSampleData, migrateSnapshotTable))
	options = append(options, fx.Invoke(fx.Annotate(startCustomerBatch, fx.ParamTags(
		"",               // lc fx.Lifecycle
		"",               // launcher
		"",               // operator
		"",               // explorer
		"",               // scheduler
		"",               // cfg
		"",               // req
		`name:"appCtx"`,  // appCtx
		`name:"jobDone"`, // done
	))))
	options = append(options, extra...)
	return options
}

// migrateSampleData creates and seeds the customer table before any job runs.
func migrateSampleData(resolver database.DBConnectionResolver) error {
	ctx := context.Background()
	conn, err := resolver.ResolveDBConnection(ctx, appjob.SampleDBRef)
	if err != nil {
		return fmt.Errorf("failed to resolve sample database '%s': %w", appjob.SampleDBRef, err)
	}
	return migration.NewMigrator(conn).Up(ctx, SampleMigrationFS(), sqlrepo.MigrationPath(conn.Type()), migration.AppMigrationsTable)
}

// migrateSnapshotTable creates the customer_snapshot table in the job repository database.
// The in-memory job repository has no database, so job-customer-snapshot cannot run there.
func migrateSnapshotTable(cfg *config.Config, resolver database.DBConnectionResolver) error {
	repoCfg := cfg.Surfin.Infrastructure.JobRepository
	if repoCfg.Type != config.JobRepositorySQL {
		return nil
	}
	ctx := context.Background()
	conn, err := resolver.ResolveDBConnection(ctx, repoCfg.DBRef)
	if err != nil {
		return fmt.Errorf("failed to resolve job repository database '%s': %w", repoCfg.DBRef, err)
	}
	return migration.NewMigrator(conn).Up(ctx, SnapshotMigrationFS(), sqlrepo.MigrationPath(conn.Type()), snapshotMigrationsTable)
}

// startCustomerBatch runs the request once the application has started and reports
// the result on done.
func startCustomerBatch(
	lc fx.Lifecycle,
	launcher *usecase.SimpleJobLauncher,
	operator *usecase.DefaultJobOperator,
	explorer usecase.JobExplorer,
	scheduler *usecase.JobScheduler,
	cfg *config.Config,
	req Request,
	appCtx context.Context,
	done chan Result,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				result := Result{ExitCode: ExitFailed}
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in job execution: %v", r)
						result = Result{ExitCode: ExitFailed, Err: fmt.Errorf("panic: %v", r)}
					}
					done <- result
				}()
				result = run(appCtx, launcher, operator, explorer, scheduler, cfg, req)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

func run(
	ctx context.Context,
	launcher *usecase.SimpleJobLauncher,
	operator *usecase.DefaultJobOperator,
	explorer usecase.JobExplorer,
	scheduler *usecase.JobScheduler,
	cfg *config.Config,
	req Request,
) Result {
	jobName := req.JobName
	if jobName == "" {
		jobName = cfg.Surfin.Batch.JobName
	}
	params := req.Params
	if params.Params == nil {
		params = model.NewJobParameters()
	}

	schedule := req.Schedule
	if schedule == "" {
		schedule = cfg.Surfin.Batch.Schedule
	}
	if schedule != "" {
		return runScheduled(ctx, scheduler, schedule, jobName, params)
	}

	var (
		execution *model.JobExecution
		err       error
	)
	if req.Restart {
		execution, err = operator.RestartLast(ctx, jobName, params)
		if err == nil {
			err = launcher.Wait(execution.ID)
			if latest, fetchErr := explorer.GetJobExecution(context.WithoutCancel(ctx), execution.ID); fetchErr == nil {
				execution = latest
			}
		}
	} else {
		execution, err = launcher.LaunchAndWait(ctx, jobName, params)
	}

	if err != nil {
		logger.Errorf("Job '%s' did not complete: %v", jobName, err)
	}
	if execution != nil {
		logger.Infof("Job '%s' (Execution ID: %s) finished with status: %s, ExitStatus: %s",
			jobName, execution.ID, execution.Status, execution.ExitStatus)
	}
	return Result{ExitCode: ExitCodeOf(execution), Execution: execution, Err: err}
}

// runScheduled relaunches jobName on every tick of spec until ctx is cancelled, then
// waits for a run in progress to stop.
func runScheduled(ctx context.Context, scheduler *usecase.JobScheduler, spec, jobName string, params model.JobParameters) Result {
	var last Result
	scheduler.OnFinish = func(execution *model.JobExecution, err error) {
		last = Result{ExitCode: ExitCodeOf(execution), Execution: execution, Err: err}
	}
	if err := scheduler.Schedule(ctx, spec, jobName, params); err != nil {
		logger.Errorf("Failed to schedule job '%s': %v", jobName, err)
		return Result{ExitCode: ExitFailed, Err: err}
	}
	scheduler.Start()
	<-ctx.Done()

	logger.Infof("Stopping the schedule of job '%s'.", jobName)
	<-scheduler.Stop().Done()
	return last
}

// RunApplication runs req in a new fx application and returns its Result. A cancelled
// ctx stops the running job at its next chunk boundary.
func RunApplication(ctx context.Context, cfg *config.Config, req Request, dbProviderOptions []fx.Option, extra ...fx.Option) Result {
	done := make(chan Result, 1)
	app := fx.New(GetApplicationOptions(ctx, cfg, req, done, dbProviderOptions, extra...)...)
	if err := app.Err(); err != nil {
		logger.Errorf("Failed to build application: %v", err)
		return Result{ExitCode: ExitFailed, Err: err}
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Failed to start application: %v", err)
		return Result{ExitCode: ExitFailed, Err: err}
	}

	result := <-done

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application did not stop cleanly: %v", err)
	}
	return result
}
