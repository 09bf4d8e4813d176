package job

import (
	"go.uber.org/fx"

	support "github.com/tigerroll/chunkbatch/pkg/batch/core/config/support"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// RegisterCustomerJobs registers the builders of the customer jobs with the JobFactory.
// The keys must match the job IDs in job.yaml.
func RegisterCustomerJobs(jf *support.JobFactory, jobs *CustomerJobs) {
	jf.RegisterJobBuilder(ServiceJobID, jobs.ServiceJob)
	jf.RegisterJobBuilder(PagingJobID, jobs.PagingJob)
	jf.RegisterJobBuilder(RepositoryJobID, jobs.RepositoryJob)
	jf.RegisterJobBuilder(ExportJobID, jobs.ExportJob)
	jf.RegisterJobBuilder(SnapshotJobID, jobs.SnapshotJob)
	logger.Debugf("Customer job builders registered with JobFactory.")
}

// Module provides CustomerJobs and registers its builders.
var Module = fx.Options(
	fx.Provide(NewCustomerJobs),
	fx.Invoke(RegisterCustomerJobs),
)
