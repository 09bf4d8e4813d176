// Package job assembles the customer jobs. Three jobs print the customers of a city
// and differ only in how they read them. The others export the customers as Parquet
// or copy them into the customer_snapshot table.
package job

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	itemcomp "github.com/tigerroll/chunkbatch/pkg/batch/component/item"
	reader "github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	writer "github.com/tigerroll/chunkbatch/pkg/batch/component/step/writer"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	support "github.com/tigerroll/chunkbatch/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/support/expression"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/configbinder"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"

	"github.com/tigerroll/chunkbatch/example/customer/internal/domain"
	"github.com/tigerroll/chunkbatch/example/customer/internal/repository"
	"github.com/tigerroll/chunkbatch/example/customer/internal/service"
)

// Job IDs, as declared in job.yaml.
const (
	ServiceJobID    = "job-service"
	PagingJobID     = "job-jpa-paging"
	RepositoryJobID = "job-repository"
	ExportJobID     = "job-parquet-export"
	SnapshotJobID   = "job-customer-snapshot"
)

// Step IDs. Every customer job has a single step.
const (
	StepID         = "printCustomers"
	ExportStepID   = "exportCustomers"
	SnapshotStepID = "snapshotCustomers"
)

// CityParam is the job parameter selecting the customers to print.
const CityParam = "city"

// SampleDBRef is the default connection of the customer table.
const SampleDBRef = "sample"

// readerProperties are the reader properties of a customer step in job.yaml.
// Values may reference job parameters, as in #{jobParameters['city']}.
type readerProperties struct {
	DBRef     string `yaml:"db_ref"`
	City      string `yaml:"city"`
	PageSize  int    `yaml:"page_size"`
	Sort      string `yaml:"sort"`
	Direction string `yaml:"direction"`
}

// SnapshotTable is the default target of job-customer-snapshot. It lives in the job
// repository database because the chunk transaction does.
const SnapshotTable = "customer_snapshot"

// snapshotColumns are replaced when a customer is already in the snapshot.
var snapshotColumns = []string{"first_name", "middle_initial", "last_name", "address", "city", "state", "zip_code"}

// snapshotWriterProperties are the writer properties of the snapshot step in job.yaml.
type snapshotWriterProperties struct {
	Table    string `yaml:"table"`
	BulkSize int    `yaml:"bulk_size"`
}

type customerComponents = support.ChunkComponents[domain.Customer, domain.Customer]

// CustomerJobsParams defines the dependencies of the customer jobs.
type CustomerJobsParams struct {
	fx.In
	Resolver        database.DBConnectionResolver
	StorageResolver storage.StorageConnectionResolver `optional:"true"`
	Cfg             *config.Config
	Output          io.Writer `name:"customerOutput" optional:"true"`
}

// CustomerJobs builds the customer jobs. Every build resolves the sample connection
// and creates fresh readers, so a restart starts from clean component state.
type CustomerJobs struct {
	resolver        database.DBConnectionResolver
	storageResolver storage.StorageConnectionResolver
	cfg             *config.Config
	out             io.Writer
}

// NewCustomerJobs creates CustomerJobs. Lines go to stdout unless an output is supplied.
func NewCustomerJobs(p CustomerJobsParams) *CustomerJobs {
	out := p.Output
	if out == nil {
		out = os.Stdout
	}
	return &CustomerJobs{resolver: p.Resolver, storageResolver: p.StorageResolver, cfg: p.Cfg, out: out}
}

// ServiceJob reads through CustomerService, one customer per call.
func (j *CustomerJobs) ServiceJob(bc support.JobBuildContext) (port.Job, error) {
	return bc.NewSimpleJob(support.NewChunkStepBuilder(bc, StepID, func(ctx context.Context, params model.JobParameters) (customerComponents, error) {
		props, err := j.readerProperties(bc, StepID, params)
		if err != nil {
			return customerComponents{}, err
		}
		repo, err := j.repository(ctx, props.DBRef)
		if err != nil {
			return customerComponents{}, err
		}
		svc := service.NewCustomerService(repo, props.City)
		r, err := reader.NewAdapterItemReader[domain.Customer]("customerServiceReader", reader.ItemSupplierFunc[domain.Customer](svc.GetCustomer))
		if err != nil {
			return customerComponents{}, err
		}
		return j.components(r), nil
	}))
}

// PagingJob pages through the customer query with offset and limit, ordered by id.
func (j *CustomerJobs) PagingJob(bc support.JobBuildContext) (port.Job, error) {
	return bc.NewSimpleJob(support.NewChunkStepBuilder(bc, StepID, func(ctx context.Context, params model.JobParameters) (customerComponents, error) {
		props, err := j.readerProperties(bc, StepID, params)
		if err != nil {
			return customerComponents{}, err
		}
		conn, err := j.resolver.ResolveDBConnection(ctx, props.DBRef)
		if err != nil {
			return customerComponents{}, err
		}
		provider := repository.NewCustomerByCityQueryProvider(props.City)
		r, err := reader.NewPagingItemReader[domain.Customer]("customerPagingReader", conn, provider, params, props.PageSize, customerKey())
		if err != nil {
			return customerComponents{}, err
		}
		return j.components(r), nil
	}))
}

// RepositoryJob pages through CustomerRepository.FindByCity, sorted by last name by default.
func (j *CustomerJobs) RepositoryJob(bc support.JobBuildContext) (port.Job, error) {
	return bc.NewSimpleJob(support.NewChunkStepBuilder(bc, StepID, func(ctx context.Context, params model.JobParameters) (customerComponents, error) {
		props, err := j.readerProperties(bc, StepID, params)
		if err != nil {
			return customerComponents{}, err
		}
		repo, err := j.repository(ctx, props.DBRef)
		if err != nil {
			return customerComponents{}, err
		}
		sort := reader.Sort{
			Property:  props.Sort,
			Direction: reader.Direction(strings.ToUpper(props.Direction)),
		}
		r, err := reader.NewRepositoryItemReader[domain.Customer]("customerRepositoryReader",
			repository.PagedFinder(repo), []interface{}{props.City}, sort, props.PageSize, customerKey())
		if err != nil {
			return customerComponents{}, err
		}
		return j.components(r), nil
	}))
}

// ExportJob pages through the customers of the city like PagingJob and exports them
// as Parquet to the storage named by the writer's storageRef, one file per state.
func (j *CustomerJobs) ExportJob(bc support.JobBuildContext) (port.Job, error) {
	return bc.NewSimpleJob(support.NewChunkStepBuilder(bc, ExportStepID, func(ctx context.Context, params model.JobParameters) (customerComponents, error) {
		props, err := j.readerProperties(bc, ExportStepID, params)
		if err != nil {
			return customerComponents{}, err
		}
		conn, err := j.resolver.ResolveDBConnection(ctx, props.DBRef)
		if err != nil {
			return customerComponents{}, err
		}
		r, err := reader.NewPagingItemReader[domain.Customer]("customerPagingReader", conn,
			repository.NewCustomerByCityQueryProvider(props.City), params, props.PageSize, customerKey())
		if err != nil {
			return customerComponents{}, err
		}
		w, err := j.parquetWriter(bc, params)
		if err != nil {
			return customerComponents{}, err
		}
		c := j.components(r)
		c.Writer = w
		return c, nil
	}))
}

// SnapshotJob pages through the customers of the city and upserts them into the
// customer_snapshot table, keyed by id. Rows commit with the checkpoint, so a rerun or
// a restart updates rows rather than duplicating them. It needs the SQL job repository.
func (j *CustomerJobs) SnapshotJob(bc support.JobBuildContext) (port.Job, error) {
	if j.cfg.Surfin.Infrastructure.JobRepository.Type != config.JobRepositorySQL {
		return nil, exception.NewConfigurationError(SnapshotJobID, "the snapshot is written in the job repository database and requires job_repository.type sql", nil)
	}
	return bc.NewSimpleJob(support.NewChunkStepBuilder(bc, SnapshotStepID, func(ctx context.Context, params model.JobParameters) (customerComponents, error) {
		props, err := j.readerProperties(bc, SnapshotStepID, params)
		if err != nil {
			return customerComponents{}, err
		}
		conn, err := j.resolver.ResolveDBConnection(ctx, props.DBRef)
		if err != nil {
			return customerComponents{}, err
		}
		r, err := reader.NewPagingItemReader[domain.Customer]("customerPagingReader", conn,
			repository.NewCustomerByCityQueryProvider(props.City), params, props.PageSize, customerKey())
		if err != nil {
			return customerComponents{}, err
		}
		w, err := j.snapshotWriter(bc, params)
		if err != nil {
			return customerComponents{}, err
		}
		c := j.components(r)
		c.Writer = w
		return c, nil
	}))
}

// snapshotWriter creates the upsert writer from the writer properties of the snapshot step.
func (j *CustomerJobs) snapshotWriter(bc support.JobBuildContext, params model.JobParameters) (*writer.GormItemWriter[domain.Customer], error) {
	step, err := bc.Step(SnapshotStepID)
	if err != nil {
		return nil, err
	}
	resolved, err := expression.ResolveProperties(step.Writer.Properties, params)
	if err != nil {
		return nil, err
	}
	props := snapshotWriterProperties{Table: SnapshotTable}
	if err := configbinder.BindProperties(resolved, &props); err != nil {
		return nil, err
	}
	return writer.NewGormItemWriter[domain.Customer]("customerSnapshotWriter", props.Table, []string{"id"}, snapshotColumns, props.BulkSize)
}

// parquetWriter creates the export writer from the writer properties of the export step.
func (j *CustomerJobs) parquetWriter(bc support.JobBuildContext, params model.JobParameters) (*writer.ParquetItemWriter[domain.Customer], error) {
	if j.storageResolver == nil {
		return nil, exception.NewConfigurationError(ExportJobID, "no storage is configured", nil)
	}
	step, err := bc.Step(ExportStepID)
	if err != nil {
		return nil, err
	}
	resolved, err := expression.ResolveProperties(step.Writer.Properties, params)
	if err != nil {
		return nil, err
	}
	props := make(map[string]interface{}, len(resolved))
	for k, v := range resolved {
		props[k] = v
	}
	return writer.NewParquetItemWriter("customerParquetWriter", props, j.storageResolver, &domain.Customer{}, statePartition)
}

// readerProperties resolves and binds the reader properties of the step. Missing
// properties take the defaults: the sample database, the city parameter,
// surfin.batch.page_size and last_name ASC.
func (j *CustomerJobs) readerProperties(bc support.JobBuildContext, stepID string, params model.JobParameters) (readerProperties, error) {
	step, err := bc.Step(stepID)
	if err != nil {
		return readerProperties{}, err
	}
	resolved, err := expression.ResolveProperties(step.Reader.Properties, params)
	if err != nil {
		return readerProperties{}, err
	}
	city, _ := params.GetString(CityParam)
	props := readerProperties{
		DBRef:     SampleDBRef,
		City:      city,
		PageSize:  j.cfg.Surfin.Batch.PageSize,
		Sort:      "last_name",
		Direction: string(reader.Asc),
	}
	if err := configbinder.BindProperties(resolved, &props); err != nil {
		return readerProperties{}, err
	}
	return props, nil
}

func (j *CustomerJobs) repository(ctx context.Context, dbRef string) (repository.CustomerRepository, error) {
	conn, err := j.resolver.ResolveDBConnection(ctx, dbRef)
	if err != nil {
		return nil, err
	}
	return repository.NewCustomerRepository(conn), nil
}

// components completes a reader with the pass-through processor and the line writer.
// Reads are throttled when surfin.batch.read_rate_limit is set.
func (j *CustomerJobs) components(r port.ItemReader[domain.Customer]) customerComponents {
	batch := j.cfg.Surfin.Batch
	if batch.ReadRateLimit > 0 {
		logger.Debugf("Customer reads limited to %.1f/s.", batch.ReadRateLimit)
		r = reader.NewThrottledItemReader(r, batch.ReadRateLimit, batch.ReadBurst)
	}
	return customerComponents{
		Reader:    r,
		Processor: itemcomp.NewPassThroughItemProcessor[domain.Customer](),
		Writer: writer.NewLineItemWriter("customerWriter",
			writer.WithOutput[domain.Customer](j.out),
			writer.WithFormat(domain.Customer.String)),
	}
}

func statePartition(c domain.Customer) (string, error) {
	return "state=" + c.State, nil
}

// customerKey makes the readers verify on restart that the checkpoint still points at the same customer.
func customerKey() reader.Option[domain.Customer] {
	return reader.WithKeyFunc(func(c domain.Customer) string { return strconv.FormatInt(c.ID, 10) })
}
