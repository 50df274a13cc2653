package backfill

import (
	"context"
	"time"

	"github.com/tigerroll/solarback/pkg/series"
	"github.com/tigerroll/solarback/pkg/tesla"
)

// SiteFetcher fetches one bucket's worth of canonical rows. An empty result
// with a nil error is a valid terminal signal: the site had no activity in
// that bucket.
type SiteFetcher interface {
	// FetchPowerDay fetches the 5-minute power samples of one day bucket.
	FetchPowerDay(ctx context.Context, site Site, day time.Time) ([]series.PowerRow, error)
	// FetchEnergyMonth fetches the per-interval energy totals of one month bucket.
	FetchEnergyMonth(ctx context.Context, site Site, month time.Time) ([]series.EnergyRow, error)
}

// APIFetcher is the production SiteFetcher over the rate-limited client,
// adapting raw calendar history records onto canonical rows per the
// configured schema version.
type APIFetcher struct {
	client  *tesla.Client
	version series.SchemaVersion
}

// NewAPIFetcher creates a fetcher over the given client.
func NewAPIFetcher(client *tesla.Client, version series.SchemaVersion) *APIFetcher {
	return &APIFetcher{client: client, version: version}
}

// FetchPowerDay fetches and adapts one power day bucket.
func (f *APIFetcher) FetchPowerDay(ctx context.Context, site Site, day time.Time) ([]series.PowerRow, error) {
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, site.Location)
	records, err := f.client.CalendarHistory(ctx, site.ID, "power", "day", end, site.Timezone)
	if err != nil {
		return nil, err
	}

	rows := make([]series.PowerRow, 0, len(records))
	for _, record := range records {
		row, err := series.AdaptPowerRecord(f.version, record, site.Location)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchEnergyMonth fetches and adapts one energy month bucket.
func (f *APIFetcher) FetchEnergyMonth(ctx context.Context, site Site, month time.Time) ([]series.EnergyRow, error) {
	end := month.AddDate(0, 1, 0).Add(-time.Second)
	records, err := f.client.CalendarHistory(ctx, site.ID, "energy", "month", end, site.Timezone)
	if err != nil {
		return nil, err
	}

	rows := make([]series.EnergyRow, 0, len(records))
	for _, record := range records {
		row, err := series.AdaptEnergyRecord(f.version, record, site.Location)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Verify that APIFetcher implements the SiteFetcher interface.
var _ SiteFetcher = (*APIFetcher)(nil)
