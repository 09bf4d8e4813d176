package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Params defines the dependencies of the telemetry providers.
type Params struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
}

// NewMetricRecorder returns the recorder selected by surfin.infrastructure.metrics.type.
// The Prometheus recorder serves /metrics on ListenAddress while the application runs.
func NewMetricRecorder(p Params) (metrics.MetricRecorder, error) {
	cfg := p.Cfg.Surfin.Infrastructure.Metrics
	switch cfg.Type {
	case "", config.MetricsNoop:
		return metrics.NewNoOpMetricRecorder(), nil
	case config.MetricsPrometheus:
		recorder := NewPrometheusRecorder()
		registerMetricsServer(p.Lifecycle, cfg.ListenAddress, recorder)
		return recorder, nil
	case config.MetricsOTel:
		mp, err := NewMeterProvider(context.Background(), cfg, p.Cfg.Surfin.Infrastructure.Tracing.ServiceName)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{OnStop: mp.Shutdown})
		otel.SetMeterProvider(mp)
		return NewOTelMetricRecorder(mp.Meter(instrumentationName)), nil
	default:
		return nil, fmt.Errorf("unknown metrics type: %s", cfg.Type)
	}
}

// NewTracer returns an OpenTelemetry tracer when tracing is enabled, else the no-op tracer.
// Spans still buffered are flushed on stop.
func NewTracer(p Params) (metrics.Tracer, error) {
	cfg := p.Cfg.Surfin.Infrastructure.Tracing
	if !cfg.Enabled || cfg.Exporter == "" || cfg.Exporter == config.TraceExporterNone {
		return metrics.NewNoOpTracer(), nil
	}
	tp, err := NewTracerProvider(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{OnStop: tp.Shutdown})
	otel.SetTracerProvider(tp)
	return NewOpenTelemetryTracer(tp.Tracer(instrumentationName)), nil
}

func registerMetricsServer(lc fx.Lifecycle, addr string, recorder *PrometheusRecorder) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(recorder.GetRegistry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
			}
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("Metrics server stopped: %v", err)
				}
			}()
			logger.Infof("Serving Prometheus metrics on %s/metrics", ln.Addr())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

// Module provides the configured MetricRecorder and Tracer. It replaces the no-op
// core metrics module.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)
