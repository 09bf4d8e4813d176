package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLogger routes fx lifecycle events into the batch logger.
// Container chatter goes to DEBUG; failures go to ERROR.
type FxLogger struct{}

// NewFxLogger creates the fxevent.Logger used by Module.
func NewFxLogger() fxevent.Logger {
	return &FxLogger{}
}

// LogEvent implements fxevent.Logger.
func (l *FxLogger) LogEvent(event fxevent.Event) {
	z := Zap().With(zap.String("component", "fx"))

	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			z.Error("OnStart hook failed", zap.String("callee", trimFuncName(e.FunctionName)), zap.Error(e.Err))
			return
		}
		z.Debug("OnStart hook executed", zap.String("callee", trimFuncName(e.FunctionName)), zap.Duration("runtime", e.Runtime))
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			z.Error("OnStop hook failed", zap.String("callee", trimFuncName(e.FunctionName)), zap.Error(e.Err))
			return
		}
		z.Debug("OnStop hook executed", zap.String("callee", trimFuncName(e.FunctionName)))
	case *fxevent.Supplied:
		if e.Err != nil {
			z.Error("supply failed", zap.String("type", e.TypeName), zap.Error(e.Err))
		}
	case *fxevent.Provided:
		if e.Err != nil {
			z.Error("provide failed", zap.String("constructor", e.ConstructorName), zap.Error(e.Err))
			return
		}
		z.Debug("provided", zap.Strings("types", e.OutputTypeNames))
	case *fxevent.Invoked:
		if e.Err != nil {
			z.Error("invoke failed", zap.String("function", e.FunctionName), zap.Error(e.Err), zap.String("stack", e.Trace))
		}
	case *fxevent.Stopping:
		z.Info("received signal", zap.String("signal", strings.ToUpper(e.Signal.String())))
	case *fxevent.Stopped:
		if e.Err != nil {
			z.Error("stop failed", zap.Error(e.Err))
		}
	case *fxevent.RollingBack:
		z.Error("start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		if e.Err != nil {
			z.Error("rollback failed", zap.Error(e.Err))
		}
	case *fxevent.Started:
		if e.Err != nil {
			z.Error("start failed", zap.Error(e.Err))
			return
		}
		z.Debug("application started")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			z.Error("custom logger initialization failed", zap.Error(e.Err))
		}
	}
}

// trimFuncName strips the anonymous ".funcN" suffix fx reports for closures.
func trimFuncName(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		return name[:idx]
	}
	return name
}
