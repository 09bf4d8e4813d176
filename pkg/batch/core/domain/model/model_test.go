package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func newTestJobExecution(status model.BatchStatus) *model.JobExecution {
	je := model.NewJobExecution(model.NewID(), "testJob", model.NewJobParameters())
	je.Status = status
	return je
}

func TestJobExecution_TransitionTo(t *testing.T) {
	valid := []struct{ from, to model.BatchStatus }{
		{model.BatchStatusCreated, model.BatchStatusValidating},
		{model.BatchStatusValidating, model.BatchStatusRunning},
		{model.BatchStatusValidating, model.BatchStatusFailed},
		{model.BatchStatusRunning, model.BatchStatusCompleted},
		{model.BatchStatusRunning, model.BatchStatusFailed},
		{model.BatchStatusRunning, model.BatchStatusStopped},
		{model.BatchStatusRunning, model.BatchStatusStopping},
		{model.BatchStatusStopping, model.BatchStatusStopped},
		{model.BatchStatusFailed, model.BatchStatusAbandoned},
		{model.BatchStatusStopped, model.BatchStatusAbandoned},
	}
	for _, tc := range valid {
		je := newTestJobExecution(tc.from)
		assert.NoError(t, je.TransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.to, je.Status)
	}

	invalid := []struct{ from, to model.BatchStatus }{
		{model.BatchStatusCreated, model.BatchStatusRunning},
		{model.BatchStatusCompleted, model.BatchStatusRunning},
		{model.BatchStatusCompleted, model.BatchStatusAbandoned},
		{model.BatchStatusAbandoned, model.BatchStatusRunning},
		{model.BatchStatusFailed, model.BatchStatusRunning},
	}
	for _, tc := range invalid {
		je := newTestJobExecution(tc.from)
		assert.Error(t, je.TransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.from, je.Status)
	}
}

func TestJobExecution_Lifecycle(t *testing.T) {
	je := model.NewJobExecution("instance-1", "job", model.NewJobParameters())
	assert.Equal(t, model.BatchStatusCreated, je.Status)

	je.MarkAsValidating()
	assert.Equal(t, model.BatchStatusValidating, je.Status)
	assert.False(t, je.StartTime.IsZero())

	je.MarkAsRunning()
	je.MarkAsCompleted()
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, model.ExitStatusCompleted, je.ExitStatus)
	require.NotNil(t, je.EndTime)
	assert.Equal(t, 0, je.ExitCode())
}

func TestJobExecution_MarkAsFailed_RecordsKind(t *testing.T) {
	je := newTestJobExecution(model.BatchStatusValidating)
	err := exception.NewMissingParameterError("validator", []string{"city"})

	je.MarkAsFailed(err)
	je.AddFailureException(err)

	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Equal(t, model.ExitStatusFailed, je.ExitStatus)
	require.Len(t, je.Failures, 1)
	assert.Contains(t, je.Failures[0], exception.MissingParameterError)
	assert.Contains(t, je.Failures[0], "city")
	assert.Equal(t, 1, je.ExitCode())
}

func TestBatchStatus_ExitCode(t *testing.T) {
	assert.Equal(t, 0, model.BatchStatusCompleted.ExitCode())
	assert.Equal(t, 1, model.BatchStatusFailed.ExitCode())
	assert.Equal(t, 2, model.BatchStatusStopped.ExitCode())
	assert.Equal(t, 1, model.BatchStatusAbandoned.ExitCode())
}

func TestStepExecution_TransitionTo(t *testing.T) {
	je := newTestJobExecution(model.BatchStatusRunning)
	se := model.NewStepExecution(model.NewID(), je, "step")

	assert.Same(t, je, se.JobExecution)
	assert.Equal(t, je.ID, se.JobExecutionID)
	assert.Len(t, je.StepExecutions, 1)

	assert.NoError(t, se.TransitionTo(model.BatchStatusRunning))
	assert.Error(t, se.TransitionTo(model.BatchStatusValidating))
	assert.NoError(t, se.TransitionTo(model.BatchStatusFailed))
}

func TestStepExecution_CopyForRestart(t *testing.T) {
	je := newTestJobExecution(model.BatchStatusRunning)

	done := model.NewStepExecution("done", je, "first")
	done.MarkAsRunning()
	done.ReadCount, done.WriteCount, done.CommitCount = 25, 25, 3
	done.MarkAsCompleted()

	failed := model.NewStepExecution("failed", je, "second")
	failed.MarkAsRunning()
	failed.ReadCount, failed.WriteCount, failed.CommitCount, failed.RollbackCount = 20, 10, 1, 1
	failed.ExecutionContext.Put("reader.read.count", 10)
	failed.MarkAsFailed(errors.New("boom"))

	copiedDone := done.CopyForRestart("next")
	assert.Equal(t, model.BatchStatusCompleted, copiedDone.Status)
	assert.Equal(t, 25, copiedDone.WriteCount)
	assert.NotEqual(t, done.ID, copiedDone.ID)
	assert.Equal(t, "next", copiedDone.JobExecutionID)

	copiedFailed := failed.CopyForRestart("next")
	assert.Equal(t, model.BatchStatusCreated, copiedFailed.Status)
	assert.Zero(t, copiedFailed.WriteCount)
	assert.Empty(t, copiedFailed.Failures)
	count, ok := copiedFailed.ExecutionContext.GetInt("reader.read.count")
	require.True(t, ok)
	assert.Equal(t, 10, count)

	copiedFailed.ExecutionContext.Put("reader.read.count", 99)
	original, _ := failed.ExecutionContext.GetInt("reader.read.count")
	assert.Equal(t, 10, original, "restart copy must not share the checkpoint map")
}

func TestJobParameters_IsImmutable(t *testing.T) {
	base := model.NewJobParameters().With("city", "Springfield")
	next := base.With("run.id", int64(1))

	_, ok := base.Get("run.id")
	assert.False(t, ok)
	assert.Equal(t, 2, next.Len())

	trimmed := next.Without("run.id")
	assert.True(t, trimmed.Equal(base))
}

func TestJobParameters_HashUsesIdentifyingKeysOnly(t *testing.T) {
	a := model.NewJobParameters().With("city", "Springfield").With("run.id", int64(1))
	b := a.WithNonIdentifying("trace", true)
	c := a.With("run.id", int64(2))

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	hc, err := c.Hash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)
	assert.Equal(t, []string{"trace"}, b.NonIdentifyingKeys())
	assert.NotContains(t, b.IdentifyingParams().Params, "trace")
}

func TestJobParameters_HashIsTypeTolerantForNumbers(t *testing.T) {
	h1, err := model.NewJobParametersFrom(map[string]interface{}{"run.id": 3}).Hash()
	require.NoError(t, err)
	h2, err := model.NewJobParametersFrom(map[string]interface{}{"run.id": json.Number("3")}).Hash()
	require.NoError(t, err)
	h3, err := model.NewJobParametersFrom(map[string]interface{}{"run.id": 3.0}).Hash()
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, h1, h3)
}

func TestJobParameters_TypedGetters(t *testing.T) {
	jp := model.NewJobParametersFrom(map[string]interface{}{
		"s":    "text",
		"i":    int64(42),
		"f":    float64(7),
		"n":    json.Number("5"),
		"frac": 1.5,
		"b":    true,
		"t":    "2024-01-02T03:04:05Z",
	})

	s, ok := jp.GetString("s")
	assert.True(t, ok)
	assert.Equal(t, "text", s)

	for key, want := range map[string]int64{"i": 42, "f": 7, "n": 5} {
		got, ok := jp.GetInt64(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	_, ok = jp.GetInt64("frac")
	assert.False(t, ok)

	b, ok := jp.GetBool("b")
	assert.True(t, ok)
	assert.True(t, b)

	ts, ok := jp.GetTime("t")
	assert.True(t, ok)
	assert.Equal(t, 2024, ts.Year())

	_, ok = jp.GetString("missing")
	assert.False(t, ok)
}

func TestJobParameters_Contains(t *testing.T) {
	full := model.NewJobParametersFrom(map[string]interface{}{"city": "Springfield", "run.id": int64(2)})
	assert.True(t, full.Contains(model.NewJobParametersFrom(map[string]interface{}{"run.id": 2})))
	assert.False(t, full.Contains(model.NewJobParametersFrom(map[string]interface{}{"city": "Shelbyville"})))
	assert.True(t, full.Contains(model.NewJobParameters()))
}

func TestJobParameters_StringMasksAndMarksNonIdentifying(t *testing.T) {
	jp := model.NewJobParameters().With("city", "Springfield").WithNonIdentifying("password", "x")
	assert.Equal(t, "{city=Springfield, -password=********}", jp.String())
}

func TestJobParameters_ValueScan(t *testing.T) {
	jp := model.NewJobParameters().With("city", "Springfield").With("run.id", int64(4))
	v, err := jp.Value()
	require.NoError(t, err)

	var scanned model.JobParameters
	require.NoError(t, scanned.Scan(v))
	id, ok := scanned.GetInt64("run.id")
	assert.True(t, ok)
	assert.Equal(t, int64(4), id)
	assert.Error(t, scanned.Scan(12))
}

func TestExecutionContext_TypedGettersAndCopy(t *testing.T) {
	ec := model.NewExecutionContext()
	ec.Put("count", 10)
	ec.Put("name", "reader")
	ec.Put("nested", map[string]interface{}{"k": "v"})

	v, err := ec.Value()
	require.NoError(t, err)
	var restored model.ExecutionContext
	require.NoError(t, restored.Scan(v))

	count, ok := restored.GetInt("count")
	assert.True(t, ok)
	assert.Equal(t, 10, count)
	_, ok = restored.GetInt("name")
	assert.False(t, ok)

	c := ec.Copy()
	c["nested"].(map[string]interface{})["k"] = "changed"
	assert.Equal(t, "v", ec["nested"].(map[string]interface{})["k"])
	assert.Equal(t, []string{"count", "name", "nested"}, ec.Keys())
}

func TestFailureList_ValueScan(t *testing.T) {
	fl := model.FailureList{"SinkWriteError: boom"}
	v, err := fl.Value()
	require.NoError(t, err)

	var restored model.FailureList
	require.NoError(t, restored.Scan(v))
	assert.Equal(t, fl, restored)

	require.NoError(t, restored.Scan(nil))
	assert.Empty(t, restored)
}

func TestNewJobInstance(t *testing.T) {
	params := model.NewJobParameters().With("city", "Springfield").WithNonIdentifying("verbose", true)
	ji, err := model.NewJobInstance("job", params)
	require.NoError(t, err)

	expected, _ := params.Hash()
	assert.Equal(t, expected, ji.ParametersHash)
	assert.NotContains(t, ji.Parameters.Params, "verbose")
	assert.NotEmpty(t, ji.ID)
}
