package notification

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	jsl "github.com/tigerroll/chunkbatch/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/chunkbatch/pkg/batch/core/config/support"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/ports"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ListenerName is the name under which the notification listener is referenced in job definitions.
const ListenerName = "notificationJobListener"

// NewNotificationJobListenerBuilder creates a ComponentBuilder for NotificationListener.
func NewNotificationJobListenerBuilder(notifier ports.Notifier) jsl.JobExecutionListenerBuilder {
	return func(
		_ *config.Config,
		properties map[string]string,
	) (port.JobExecutionListener, error) {
		return NewNotificationListener(notifier, properties)
	}
}

// NotificationListenerParams defines the dependencies that RegisterNotificationListener receives from Fx.
type NotificationListenerParams struct {
	fx.In
	JobFactory *support.JobFactory
	Builder    jsl.JobExecutionListenerBuilder `name:"notificationJobListener"`
}

// RegisterNotificationListener registers the notification listener builder with the JobFactory.
func RegisterNotificationListener(p NotificationListenerParams) {
	p.JobFactory.RegisterJobListenerBuilder(ListenerName, p.Builder)
	logger.Debugf("Notification listener registered with JobFactory.")
}

// Module provides the log notifier and registers the notification listener.
// Applications with their own Notifier replace it with fx.Decorate.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLogNotifier,
		fx.As(new(ports.Notifier)),
	)),
	fx.Provide(fx.Annotate(NewNotificationJobListenerBuilder, fx.ResultTags(`name:"notificationJobListener"`))),
	fx.Invoke(RegisterNotificationListener),
)
