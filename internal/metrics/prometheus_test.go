package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigerroll/solarback/pkg/backfill"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderMetricsAppearOnScrapeEndpoint(t *testing.T) {
	recorder := NewPrometheusRecorder()

	site := backfill.Site{
		ID:          123456,
		InstallDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		Timezone:    "UTC",
		Location:    time.UTC,
	}
	recorder.StartSweep(context.Background(), site, backfill.KindPower)
	recorder.RecordBucket(context.Background(), time.Date(2023, 5, 22, 0, 0, 0, 0, time.UTC), backfill.DispositionFetched, 288, "")
	recorder.FinishSweep(context.Background(), backfill.SweepReport{
		Kind:        backfill.KindPower,
		SiteID:      123456,
		Fetched:     1,
		RowsWritten: 288,
		ExitStatus:  backfill.ExitCompleted,
	})
	recorder.ObserveRequest("calendar_history", http.StatusOK, 120*time.Millisecond)
	recorder.ObserveRetry("calendar_history")

	handler := promhttp.HandlerFor(recorder.GetRegistry(), promhttp.HandlerOpts{})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `backfill_bucket_outcomes_total{disposition="fetched",kind="power"} 1`)
	assert.Contains(t, body, `backfill_rows_written_total{kind="power"} 288`)
	assert.Contains(t, body, `backfill_http_request_retries_total{endpoint="calendar_history"} 1`)
	assert.Contains(t, body, "backfill_sweep_duration_seconds_count")
	// The registry also carries the standard Go runtime collectors.
	assert.Contains(t, body, "go_goroutines")
}
