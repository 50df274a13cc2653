package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	config "github.com/tigerroll/solarback/internal/config"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

// StartMetricsServer serves the recorder's registry on /metrics for Prometheus
// scrapes. A disabled configuration registers nothing.
func StartMetricsServer(lc fx.Lifecycle, cfg *config.Config, recorder *PrometheusRecorder) {
	mcfg := cfg.Solarback.Metrics
	if !mcfg.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(recorder.GetRegistry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: mcfg.ListenAddr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Infof("Serving Prometheus metrics on %s/metrics.", mcfg.ListenAddr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("Metrics endpoint failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
