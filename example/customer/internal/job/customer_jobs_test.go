package job

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	jsl "github.com/tigerroll/chunkbatch/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/chunkbatch/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func buildContext(props map[string]string) support.JobBuildContext {
	return support.JobBuildContext{
		Definition: jsl.Job{
			ID: RepositoryJobID,
			Steps: []jsl.Step{{
				ID:     StepID,
				Reader: jsl.ComponentRef{Ref: "customerRepositoryReader", Properties: props},
			}},
		},
		Config: config.NewConfig(),
	}
}

func TestReaderProperties_Defaults(t *testing.T) {
	jobs := NewCustomerJobs(CustomerJobsParams{Cfg: config.NewConfig()})

	props, err := jobs.readerProperties(buildContext(nil), StepID, model.NewJobParameters().With(CityParam, "Springfield"))

	require.NoError(t, err)
	assert.Equal(t, readerProperties{
		DBRef:     SampleDBRef,
		City:      "Springfield",
		PageSize:  10,
		Sort:      "last_name",
		Direction: "ASC",
	}, props)
}

func TestReaderProperties_ResolvesAndBinds(t *testing.T) {
	jobs := NewCustomerJobs(CustomerJobsParams{Cfg: config.NewConfig()})
	bc := buildContext(map[string]string{
		"db_ref":    "archive",
		"city":      "#{jobParameters['town']}",
		"page_size": "25",
		"sort":      "zip_code",
		"direction": "desc",
	})

	props, err := jobs.readerProperties(bc, StepID, model.NewJobParameters().With("town", "Shelbyville"))

	require.NoError(t, err)
	assert.Equal(t, readerProperties{
		DBRef:     "archive",
		City:      "Shelbyville",
		PageSize:  25,
		Sort:      "zip_code",
		Direction: "desc",
	}, props)
}

func TestReaderProperties_Errors(t *testing.T) {
	jobs := NewCustomerJobs(CustomerJobsParams{Cfg: config.NewConfig()})

	_, err := jobs.readerProperties(buildContext(map[string]string{"page_size": "ten"}), StepID, model.NewJobParameters())
	assert.True(t, errors.Is(err, exception.ErrConfiguration))

	_, err = jobs.readerProperties(buildContext(map[string]string{"city": "#{jobParameters['city']}"}), StepID, model.NewJobParameters())
	assert.True(t, errors.Is(err, exception.ErrMissingParameter))

	_, err = jobs.readerProperties(support.JobBuildContext{Definition: jsl.Job{ID: RepositoryJobID}}, StepID, model.NewJobParameters())
	assert.True(t, errors.Is(err, exception.ErrConfiguration), "step not defined")
}

func TestSnapshotJob_RequiresSQLJobRepository(t *testing.T) {
	jobs := NewCustomerJobs(CustomerJobsParams{Cfg: config.NewConfig()})

	_, err := jobs.SnapshotJob(buildContext(nil))

	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestSnapshotWriter_Properties(t *testing.T) {
	jobs := NewCustomerJobs(CustomerJobsParams{Cfg: config.NewConfig()})
	bc := func(props map[string]string) support.JobBuildContext {
		return support.JobBuildContext{Definition: jsl.Job{
			ID: SnapshotJobID,
			Steps: []jsl.Step{{
				ID:     SnapshotStepID,
				Writer: jsl.ComponentRef{Ref: "customerSnapshotWriter", Properties: props},
			}},
		}}
	}

	w, err := jobs.snapshotWriter(bc(nil), model.NewJobParameters())
	require.NoError(t, err)
	assert.Equal(t, SnapshotTable, w.TableName())

	w, err = jobs.snapshotWriter(bc(map[string]string{"table": "#{jobParameters['table']}", "bulk_size": "5"}),
		model.NewJobParameters().With("table", "customer_archive"))
	require.NoError(t, err)
	assert.Equal(t, "customer_archive", w.TableName())

	_, err = jobs.snapshotWriter(bc(map[string]string{"bulk_size": "many"}), model.NewJobParameters())
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}
