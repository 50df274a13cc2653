package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/solarback/internal/config"
)

// Module is an Fx module that provides the PrometheusRecorder, the metrics
// endpoint, and the Tracer.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	fx.Invoke(StartMetricsServer),
	fx.Provide(func(lc fx.Lifecycle, cfg *config.Config) (*Tracer, error) {
		tracer, err := NewTracer(context.Background(), cfg.Solarback.Tracing)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return tracer.Shutdown(ctx)
			},
		})
		return tracer, nil
	}),
)
