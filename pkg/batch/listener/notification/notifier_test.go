package notification_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/notification"
)

type recordingNotifier struct {
	notified []*model.JobExecution
}

func (n *recordingNotifier) NotifyJobCompletion(_ context.Context, execution *model.JobExecution) {
	n.notified = append(n.notified, execution)
}

func finished(status model.BatchStatus) *model.JobExecution {
	je := model.NewJobExecution("instance", "customers", model.NewJobParameters())
	je.MarkAsValidating()
	je.MarkAsRunning()
	switch status {
	case model.BatchStatusFailed:
		je.MarkAsFailed(errors.New("sink unavailable"))
	case model.BatchStatusStopped:
		je.MarkAsStopped()
	default:
		je.MarkAsCompleted()
	}
	return je
}

func TestNotificationListener_NotifiesEveryOutcomeByDefault(t *testing.T) {
	n := &recordingNotifier{}
	l, err := notification.NewNotificationListener(n, nil)
	require.NoError(t, err)

	for _, status := range []model.BatchStatus{model.BatchStatusCompleted, model.BatchStatusStopped, model.BatchStatusFailed} {
		je := finished(status)
		l.BeforeJob(context.Background(), je)
		l.AfterJob(context.Background(), je)
	}
	assert.Len(t, n.notified, 3)
}

func TestNotificationListener_FailureOnly(t *testing.T) {
	n := &recordingNotifier{}
	l, err := notification.NewNotificationListener(n, map[string]string{"notify_on": "failure"})
	require.NoError(t, err)

	l.AfterJob(context.Background(), finished(model.BatchStatusCompleted))
	l.AfterJob(context.Background(), finished(model.BatchStatusFailed))
	require.Len(t, n.notified, 1)
	assert.Equal(t, model.BatchStatusFailed, n.notified[0].Status)
}

func TestNotificationListener_RejectsUnknownProperty(t *testing.T) {
	_, err := notification.NewNotificationListener(&recordingNotifier{}, map[string]string{"notify_on": "sometimes"})
	assert.Error(t, err)
}

func TestSummary_IncludesExitCodeAndFailures(t *testing.T) {
	summary := notification.Summary(finished(model.BatchStatusFailed))
	assert.Contains(t, summary, "Status: FAILED")
	assert.Contains(t, summary, "ExitCode: 1")
	assert.Contains(t, summary, "sink unavailable")
}
