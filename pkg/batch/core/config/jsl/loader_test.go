package jsl_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/config/jsl"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

const twoJobs = `
id: job-service
name: Customers by city (service)
validator:
  required: [city]
  optional: [run.id]
listeners:
  - ref: loggingJobListener
steps:
  - id: customerStep
    reader:
      ref: serviceReader
      properties:
        method: FindByCity
    writer:
      ref: lineWriter
    chunk:
      commit-interval: 10
    chunk-listeners:
      - ref: loggingChunkListener
        properties:
          level: info
---
id: job-repository
name: Customers by city (repository)
incrementer:
  ref: none
steps:
  - id: customerStep
`

func TestDefinitions_LoadsMultiDocumentStream(t *testing.T) {
	defs := jsl.NewDefinitions()
	require.NoError(t, defs.LoadFromBytes([]byte(twoJobs)))

	assert.Equal(t, []string{"job-repository", "job-service"}, defs.IDs())

	job, ok := defs.Get("job-service")
	require.True(t, ok)
	require.NotNil(t, job.Validator)
	assert.Equal(t, []string{"city"}, job.Validator.Required)
	assert.Equal(t, []string{"run.id"}, job.Validator.Optional)
	require.Len(t, job.Listeners, 1)
	assert.Equal(t, "loggingJobListener", job.Listeners[0].Ref)

	step := job.Steps[0]
	assert.Equal(t, 10, step.CommitInterval(5))
	assert.Equal(t, "FindByCity", step.Reader.Property("method", ""))
	assert.Equal(t, "fallback", step.Writer.Property("path", "fallback"))
	require.Len(t, step.ChunkListeners, 1)
	assert.Equal(t, "info", step.ChunkListeners[0].Properties["level"])

	repoJob, ok := defs.Get("job-repository")
	require.True(t, ok)
	assert.Equal(t, "none", repoJob.Incrementer.Ref)
	assert.Equal(t, 7, repoJob.Steps[0].CommitInterval(7))

	_, ok = defs.Get("job-missing")
	assert.False(t, ok)
}

func TestDefinitions_RejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"empty":           ``,
		"no id":           "name: x\nsteps:\n  - id: s\n",
		"no name":         "id: j\nsteps:\n  - id: s\n",
		"no steps":        "id: j\nname: x\n",
		"step without id": "id: j\nname: x\nsteps:\n  - description: s\n",
		"duplicate step":  "id: j\nname: x\nsteps:\n  - id: s\n  - id: s\n",
		"negative chunk":  "id: j\nname: x\nsteps:\n  - id: s\n    chunk:\n      commit-interval: -1\n",
		"malformed yaml":  "id: [j\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			err := jsl.NewDefinitions().LoadFromBytes([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrConfiguration))
		})
	}
}

func TestDefinitions_RejectsDuplicateJobID(t *testing.T) {
	defs := jsl.NewDefinitions()
	require.NoError(t, defs.LoadFromBytes([]byte("id: j\nname: x\nsteps:\n  - id: s\n")))
	err := defs.LoadFromBytes([]byte("id: j\nname: y\nsteps:\n  - id: s\n"))
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}
