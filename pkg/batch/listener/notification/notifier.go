// Package notification reports finished job executions through a ports.Notifier.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/ports"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// notifyOnProperty restricts notifications: "all" (default) or "failure".
const notifyOnProperty = "notify_on"

// LogNotifier is a Notifier that writes a one-line summary to the engine logger.
type LogNotifier struct{}

// NewLogNotifier creates a new instance of LogNotifier.
func NewLogNotifier() *LogNotifier {
	logger.Debugf("Notification: Initializing log notifier.")
	return &LogNotifier{}
}

// NotifyJobCompletion implements ports.Notifier.
func (n *LogNotifier) NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) {
	logger.Infof("%s", Summary(execution))
}

var _ ports.Notifier = (*LogNotifier)(nil)

// Summary renders the outcome of execution as a single line.
func Summary(execution *model.JobExecution) string {
	duration := time.Duration(0)
	if execution.EndTime != nil {
		duration = execution.EndTime.Sub(execution.StartTime)
	}
	message := fmt.Sprintf(
		"Job Notification: Job '%s' (ID: %s) finished with Status: %s, ExitStatus: %s, ExitCode: %d. Duration: %s, Failures: %d",
		execution.JobName,
		execution.ID,
		execution.Status,
		execution.ExitStatus,
		execution.ExitCode(),
		duration,
		len(execution.Failures),
	)
	if len(execution.Failures) > 0 {
		message += " (" + strings.Join(execution.Failures, "; ") + ")"
	}
	return message
}

// NotificationListener is a JobExecutionListener that hands finished executions to a Notifier.
type NotificationListener struct {
	notifier    ports.Notifier
	failureOnly bool
}

// NewNotificationListener creates a listener for notifier configured by properties.
func NewNotificationListener(notifier ports.Notifier, properties map[string]string) (*NotificationListener, error) {
	l := &NotificationListener{notifier: notifier}
	switch strings.ToLower(properties[notifyOnProperty]) {
	case "", "all":
	case "failure":
		l.failureOnly = true
	default:
		return nil, fmt.Errorf("invalid %s property: %q", notifyOnProperty, properties[notifyOnProperty])
	}
	return l, nil
}

// BeforeJob does nothing.
func (l *NotificationListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
}

// AfterJob notifies unless the listener is restricted to failures and the job did not fail.
func (l *NotificationListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	if l.failureOnly && jobExecution.Status != model.BatchStatusFailed {
		return
	}
	l.notifier.NotifyJobCompletion(ctx, jobExecution)
}

var _ port.JobExecutionListener = (*NotificationListener)(nil)
