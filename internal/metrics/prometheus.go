// Package metrics provides the Prometheus recorder and the OTLP tracer for
// the backfill engine.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tigerroll/solarback/pkg/backfill"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

// PrometheusRecorder exposes sweep and HTTP client metrics through its own
// Prometheus registry. It implements both the sweep recorder and the HTTP
// request observer, so one instance covers the whole engine.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Sweep metrics
	sweepDurationSeconds *prometheus.HistogramVec
	bucketOutcomeCounter *prometheus.CounterVec
	rowsWrittenCounter   *prometheus.CounterVec

	// HTTP client metrics
	requestDurationSeconds *prometheus.HistogramVec
	requestRetryCounter    *prometheus.CounterVec

	// The driver runs a single sequential worker, so tracking the current
	// sweep in plain fields is safe.
	sweepStart time.Time
	sweepKind  string
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		sweepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backfill_sweep_duration_seconds",
			Help:    "Duration of backfill sweeps.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"site_id", "kind", "exit_status"}),
		bucketOutcomeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_bucket_outcomes_total",
			Help: "Total bucket outcomes by sweep kind and disposition.",
		}, []string{"kind", "disposition"}),
		rowsWrittenCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_rows_written_total",
			Help: "Total telemetry rows written by sweep kind.",
		}, []string{"kind"}),
		requestDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backfill_http_request_duration_seconds",
			Help:    "Duration of owner API requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
		requestRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_http_request_retries_total",
			Help: "Total owner API request retries by endpoint.",
		}, []string{"endpoint"}),
	}

	registry.MustRegister(r.sweepDurationSeconds)
	registry.MustRegister(r.bucketOutcomeCounter)
	registry.MustRegister(r.rowsWrittenCounter)
	registry.MustRegister(r.requestDurationSeconds)
	registry.MustRegister(r.requestRetryCounter)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// StartSweep records the sweep start time and kind.
func (r *PrometheusRecorder) StartSweep(ctx context.Context, site backfill.Site, kind string) {
	r.sweepStart = time.Now()
	r.sweepKind = kind
	logger.Debugf("Metrics: %s sweep for site %d started.", kind, site.ID)
}

// RecordBucket counts one bucket outcome.
func (r *PrometheusRecorder) RecordBucket(ctx context.Context, bucket time.Time, disposition string, rows int, errText string) {
	r.bucketOutcomeCounter.WithLabelValues(r.sweepKind, disposition).Inc()
}

// FinishSweep observes the sweep duration and row totals.
func (r *PrometheusRecorder) FinishSweep(ctx context.Context, report backfill.SweepReport) {
	duration := time.Since(r.sweepStart).Seconds()
	r.sweepDurationSeconds.WithLabelValues(
		strconv.FormatInt(report.SiteID, 10),
		report.Kind,
		report.ExitStatus,
	).Observe(duration)
	r.rowsWrittenCounter.WithLabelValues(report.Kind).Add(float64(report.RowsWritten))
	logger.Debugf("Metrics: %s sweep for site %d ended. Duration: %.3fs", report.Kind, report.SiteID, duration)
}

// ObserveRequest records one owner API request.
func (r *PrometheusRecorder) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	r.requestDurationSeconds.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// ObserveRetry records one owner API retry.
func (r *PrometheusRecorder) ObserveRetry(endpoint string) {
	r.requestRetryCounter.WithLabelValues(endpoint).Inc()
}

// Verify that PrometheusRecorder implements the SweepRecorder interface.
var _ backfill.SweepRecorder = (*PrometheusRecorder)(nil)
