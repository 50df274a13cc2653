package backfill

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tigerroll/solarback/pkg/series"
	"github.com/tigerroll/solarback/pkg/support/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dayKey = "2006-01-02"

// fakeFetcher serves canned rows or errors per bucket and records the order
// of fetch calls.
type fakeFetcher struct {
	mu          sync.Mutex
	powerRows   map[string][]series.PowerRow
	powerErrs   map[string]error
	energyRows  map[string][]series.EnergyRow
	energyErrs  map[string]error
	powerCalls  []time.Time
	energyCalls []time.Time
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		powerRows:  make(map[string][]series.PowerRow),
		powerErrs:  make(map[string]error),
		energyRows: make(map[string][]series.EnergyRow),
		energyErrs: make(map[string]error),
	}
}

func (f *fakeFetcher) FetchPowerDay(ctx context.Context, site Site, day time.Time) ([]series.PowerRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powerCalls = append(f.powerCalls, day)
	key := day.Format(dayKey)
	if err, ok := f.powerErrs[key]; ok {
		return nil, err
	}
	return f.powerRows[key], nil
}

func (f *fakeFetcher) FetchEnergyMonth(ctx context.Context, site Site, month time.Time) ([]series.EnergyRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.energyCalls = append(f.energyCalls, month)
	key := month.Format(dayKey)
	if err, ok := f.energyErrs[key]; ok {
		return nil, err
	}
	return f.energyRows[key], nil
}

var _ SiteFetcher = (*fakeFetcher)(nil)

// fakeSleeper records requested delays without waiting.
type fakeSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

// captureRecorder collects recorder events for assertions.
type captureRecorder struct {
	started      bool
	dispositions map[string]string
	finished     *SweepReport
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{dispositions: make(map[string]string)}
}

func (r *captureRecorder) StartSweep(ctx context.Context, site Site, kind string) { r.started = true }

func (r *captureRecorder) RecordBucket(ctx context.Context, bucket time.Time, disposition string, rows int, errText string) {
	r.dispositions[bucket.Format(dayKey)] = disposition
}

func (r *captureRecorder) FinishSweep(ctx context.Context, report SweepReport) {
	r.finished = &report
}

var _ SweepRecorder = (*captureRecorder)(nil)

func powerRows(day time.Time, n int) []series.PowerRow {
	rows := make([]series.PowerRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, series.PowerRow{Timestamp: day.Add(time.Duration(i) * 5 * time.Minute), SolarPower: 100})
	}
	return rows
}

// fullDayRows produces a complete day ending at 23:55 local.
func fullDayRows(day time.Time) []series.PowerRow {
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 55, 0, 0, day.Location())
	var rows []series.PowerRow
	for ts := day; !ts.After(end); ts = ts.Add(5 * time.Minute) {
		rows = append(rows, series.PowerRow{Timestamp: ts, SolarPower: 100})
	}
	return rows
}

type driverFixture struct {
	driver   *Driver
	fetcher  *fakeFetcher
	recorder *captureRecorder
	sleeper  *fakeSleeper
	site     Site
	baseDir  string
	now      time.Time
}

func newDriverFixture(t *testing.T, opts DriverOptions) *driverFixture {
	t.Helper()
	baseDir := t.TempDir()
	opts.BaseDir = baseDir
	if opts.Version == 0 {
		opts.Version = series.SchemaV3
	}

	site := Site{
		ID:          123456,
		InstallDate: time.Date(2023, 5, 18, 0, 0, 0, 0, time.UTC),
		Timezone:    "UTC",
		Location:    time.UTC,
	}
	now := time.Date(2023, 5, 23, 14, 30, 0, 0, time.UTC)

	fetcher := newFakeFetcher()
	recorder := newCaptureRecorder()
	sleeper := &fakeSleeper{}
	driver := NewDriver(opts, fetcher, NewChecker(baseDir, opts.Version), recorder, sleeper)
	driver.clock = func() time.Time { return now }

	return &driverFixture{
		driver:   driver,
		fetcher:  fetcher,
		recorder: recorder,
		sleeper:  sleeper,
		site:     site,
		baseDir:  baseDir,
		now:      now,
	}
}

func TestRunPowerFetchesAllBucketsNewestFirst(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})
	for d := 0; d < 6; d++ {
		day := time.Date(2023, 5, 23-d, 0, 0, 0, 0, time.UTC)
		fx.fetcher.powerRows[day.Format(dayKey)] = powerRows(day, 10)
	}

	report, err := fx.driver.RunPower(context.Background(), fx.site)

	require.NoError(t, err)
	assert.Equal(t, ExitCompleted, report.ExitStatus)
	assert.Equal(t, 6, report.Fetched)
	assert.Equal(t, 60, report.RowsWritten)
	require.Len(t, fx.fetcher.powerCalls, 6)
	assert.Equal(t, "2023-05-23", fx.fetcher.powerCalls[0].Format(dayKey))
	assert.Equal(t, "2023-05-18", fx.fetcher.powerCalls[5].Format(dayKey))

	// The current day lands in a partial file, the rest in normal buckets.
	today := time.Date(2023, 5, 23, 0, 0, 0, 0, time.UTC)
	_, statErr := os.Stat(series.PowerPartialPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, today))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(series.PowerBucketPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, today.AddDate(0, 0, -1)))
	assert.NoError(t, statErr)
}

func TestRunPowerSkipsCompleteBuckets(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})

	// Two past days already have complete files on disk.
	for _, d := range []int{20, 21} {
		day := time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
		path := series.PowerBucketPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, day)
		require.NoError(t, series.WritePowerBucket(path, series.SchemaV3, fullDayRows(day)))
	}
	for _, d := range []int{18, 19, 22, 23} {
		day := time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
		fx.fetcher.powerRows[day.Format(dayKey)] = powerRows(day, 5)
	}

	report, err := fx.driver.RunPower(context.Background(), fx.site)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 4, report.Fetched)
	assert.Len(t, fx.fetcher.powerCalls, 4)
	assert.Equal(t, DispositionSkipped, fx.recorder.dispositions["2023-05-20"])
	assert.Equal(t, DispositionFetched, fx.recorder.dispositions["2023-05-22"])
}

func TestRunPowerAlwaysRefetchesCurrentDay(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})

	// Even a file that looks complete for today must be re-fetched: the day
	// is still accumulating.
	today := time.Date(2023, 5, 23, 0, 0, 0, 0, time.UTC)
	path := series.PowerBucketPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, today)
	require.NoError(t, series.WritePowerBucket(path, series.SchemaV3, fullDayRows(today)))

	for d := 18; d <= 23; d++ {
		day := time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
		fx.fetcher.powerRows[day.Format(dayKey)] = powerRows(day, 5)
	}

	_, err := fx.driver.RunPower(context.Background(), fx.site)

	require.NoError(t, err)
	fetchedToday := false
	for _, call := range fx.fetcher.powerCalls {
		if call.Equal(today) {
			fetchedToday = true
		}
	}
	assert.True(t, fetchedToday)
}

func TestRunPowerRefetchesTruncatedBucket(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})

	// Yesterday's file stops at 14:35: a crashed run left it truncated.
	day := time.Date(2023, 5, 22, 0, 0, 0, 0, time.UTC)
	path := series.PowerBucketPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, day)
	require.NoError(t, series.WritePowerBucket(path, series.SchemaV3, powerRows(day, 12)))

	for d := 18; d <= 23; d++ {
		bucket := time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
		fx.fetcher.powerRows[bucket.Format(dayKey)] = fullDayRows(bucket)
	}

	report, err := fx.driver.RunPower(context.Background(), fx.site)

	require.NoError(t, err)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 6, report.Fetched)

	// The truncated file was overwritten with the full day.
	rows, err := series.ReadPowerBucket(path, series.SchemaV3)
	require.NoError(t, err)
	assert.Len(t, rows, 288)
}

func TestRunPowerSkippableFailureDoesNotHaltSweep(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})

	for d := 18; d <= 23; d++ {
		day := time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
		fx.fetcher.powerRows[day.Format(dayKey)] = powerRows(day, 5)
	}
	// One mid-sweep day exhausts its retries.
	fx.fetcher.powerErrs["2023-05-21"] = exception.NewFetchError("client", "server kept returning 503", nil)

	report, err := fx.driver.RunPower(context.Background(), fx.site)

	require.NoError(t, err)
	assert.Equal(t, ExitCompleted, report.ExitStatus)
	assert.Equal(t, 5, report.Fetched)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, DispositionFailed, fx.recorder.dispositions["2023-05-21"])

	// Neighbors of the failed bucket were still written.
	_, statErr := os.Stat(series.PowerBucketPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC)))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(series.PowerBucketPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, time.Date(2023, 5, 22, 0, 0, 0, 0, time.UTC)))
	assert.NoError(t, statErr)
}

func TestRunPowerSchemaErrorSkipsBucket(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})

	for d := 18; d <= 23; d++ {
		day := time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
		fx.fetcher.powerRows[day.Format(dayKey)] = powerRows(day, 5)
	}
	fx.fetcher.powerErrs["2023-05-20"] = exception.NewSchemaError("series", "power record is missing channel 'grid_power'", nil)

	report, err := fx.driver.RunPower(context.Background(), fx.site)

	require.NoError(t, err)
	assert.Equal(t, ExitCompleted, report.ExitStatus)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 5, report.Fetched)
}

func TestRunPowerAuthFailureHaltsSweep(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})

	for d := 18; d <= 23; d++ {
		day := time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
		fx.fetcher.powerRows[day.Format(dayKey)] = powerRows(day, 5)
	}
	fx.fetcher.powerErrs["2023-05-21"] = exception.NewAuthError("client", "token refresh rejected", nil)

	report, err := fx.driver.RunPower(context.Background(), fx.site)

	require.Error(t, err)
	assert.True(t, exception.IsAuthError(err))
	assert.Equal(t, ExitFailed, report.ExitStatus)
	// Older buckets were never attempted.
	assert.Len(t, fx.fetcher.powerCalls, 3)
	require.NotNil(t, fx.recorder.finished)
	assert.Equal(t, ExitFailed, fx.recorder.finished.ExitStatus)
}

func TestRunPowerEmptyDayWritesNothing(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})

	for d := 19; d <= 23; d++ {
		day := time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
		fx.fetcher.powerRows[day.Format(dayKey)] = powerRows(day, 5)
	}
	// 2023-05-18 yields no rows: the site predates its first telemetry.

	report, err := fx.driver.RunPower(context.Background(), fx.site)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Empty)
	assert.Equal(t, DispositionEmpty, fx.recorder.dispositions["2023-05-18"])
	_, statErr := os.Stat(series.PowerBucketPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, time.Date(2023, 5, 18, 0, 0, 0, 0, time.UTC)))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunPowerContextCancellation(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := fx.driver.RunPower(ctx, fx.site)

	require.Error(t, err)
	assert.Equal(t, ExitInterrupted, report.ExitStatus)
	assert.Empty(t, fx.fetcher.powerCalls)
	require.NotNil(t, fx.recorder.finished)
	assert.Equal(t, ExitInterrupted, fx.recorder.finished.ExitStatus)
}

func TestRunPowerCleansPartialFilesBeforeSweep(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})

	// A stale partial from a run that crashed two days ago.
	staleDay := time.Date(2023, 5, 21, 0, 0, 0, 0, time.UTC)
	stalePath := series.PowerPartialPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, staleDay)
	require.NoError(t, series.WritePowerBucket(stalePath, series.SchemaV3, powerRows(staleDay, 3)))

	for d := 18; d <= 23; d++ {
		day := time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
		fx.fetcher.powerRows[day.Format(dayKey)] = powerRows(day, 5)
	}

	_, err := fx.driver.RunPower(context.Background(), fx.site)

	require.NoError(t, err)
	_, statErr := os.Stat(stalePath)
	assert.True(t, os.IsNotExist(statErr))
	// The stale day was re-fetched into a normal bucket file.
	_, statErr = os.Stat(series.PowerBucketPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, staleDay))
	assert.NoError(t, statErr)
}

func TestRunEnergyMonthlyLayoutSkipsCompleteMonths(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})
	fx.site.InstallDate = time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC)

	// March is already on disk.
	march := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	marchPath := series.EnergyMonthPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, march)
	require.NoError(t, series.WriteEnergyBucket(marchPath, series.SchemaV3, []series.EnergyRow{
		{Timestamp: time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), Values: map[string]float64{"solar_energy_exported": 1}},
	}))

	for _, m := range []time.Month{4, 5} {
		month := time.Date(2023, m, 1, 0, 0, 0, 0, time.UTC)
		fx.fetcher.energyRows[month.Format(dayKey)] = []series.EnergyRow{
			{Timestamp: month.AddDate(0, 0, 10), Values: map[string]float64{"solar_energy_exported": 2}},
		}
	}

	report, err := fx.driver.RunEnergy(context.Background(), fx.site)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Fetched)
	assert.Len(t, fx.fetcher.energyCalls, 2)

	_, statErr := os.Stat(series.EnergyMonthPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.NoError(t, statErr)
}

func TestRunEnergyCumulativeLayoutMergesPerRow(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{Version: series.SchemaV2})
	fx.site.InstallDate = time.Date(2023, 4, 10, 0, 0, 0, 0, time.UTC)

	may := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	shared := time.Date(2023, 4, 30, 0, 0, 0, 0, time.UTC)

	fx.fetcher.energyRows[may.Format(dayKey)] = []series.EnergyRow{
		{Timestamp: shared, Values: map[string]float64{"solar_energy_exported": 10}},
		{Timestamp: may.AddDate(0, 0, 5), Values: map[string]float64{"solar_energy_exported": 20}},
	}
	fx.fetcher.energyRows[april.Format(dayKey)] = []series.EnergyRow{
		// Duplicate of a row already merged from the May fetch; must not count.
		{Timestamp: shared, Values: map[string]float64{"solar_energy_exported": 999}},
		{Timestamp: april.AddDate(0, 0, 5), Values: map[string]float64{"solar_energy_exported": 30}},
	}

	report, err := fx.driver.RunEnergy(context.Background(), fx.site)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 3, report.RowsWritten)

	path := series.CumulativeEnergyPath(fx.baseDir, fx.site.DirName(), series.SchemaV2)
	rows, err := series.ReadEnergyFile(path, series.SchemaV2)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// The first write wins for the shared timestamp.
	assert.Equal(t, float64(10), rows[1].Values["solar_energy_exported"])
}

func TestRunEnergyPausesBetweenMonths(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{EnergyItemInterval: 2 * time.Second})
	fx.site.InstallDate = time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC)

	for _, m := range []time.Month{3, 4, 5} {
		month := time.Date(2023, m, 1, 0, 0, 0, 0, time.UTC)
		fx.fetcher.energyRows[month.Format(dayKey)] = []series.EnergyRow{
			{Timestamp: month.AddDate(0, 0, 10), Values: map[string]float64{"solar_energy_exported": 1}},
		}
	}

	_, err := fx.driver.RunEnergy(context.Background(), fx.site)

	require.NoError(t, err)
	// No pause before the first month, one before each subsequent fetch.
	require.Len(t, fx.sleeper.sleeps, 2)
	assert.Equal(t, 2*time.Second, fx.sleeper.sleeps[0])
}

func TestRunPowerClampsRowsToBucketInterval(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})
	fx.site.InstallDate = time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC)

	day := time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC)
	rows := fullDayRows(day)
	// Boundary artifacts the vendor API emits around a day query: the next
	// day's midnight sample, a sample from the previous day, and a duplicate
	// of an in-day timestamp.
	rows = append(rows,
		series.PowerRow{Timestamp: day.AddDate(0, 0, 1), SolarPower: 500},
		series.PowerRow{Timestamp: day.Add(-5 * time.Minute), SolarPower: 500},
		series.PowerRow{Timestamp: day.Add(12 * time.Hour), SolarPower: 999},
	)
	fx.fetcher.powerRows[day.Format(dayKey)] = rows

	report, err := fx.driver.RunPower(context.Background(), fx.site)
	require.NoError(t, err)
	assert.Equal(t, ExitCompleted, report.ExitStatus)

	path := series.PowerBucketPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, day)
	written, err := series.ReadPowerBucket(path, series.SchemaV3)
	require.NoError(t, err)
	require.Len(t, written, 288)

	// Every timestamp is inside the day and strictly increasing.
	assert.True(t, written[0].Timestamp.Equal(day))
	assert.True(t, written[287].Timestamp.Equal(day.Add(23*time.Hour+55*time.Minute)))
	for i := 1; i < len(written); i++ {
		assert.True(t, written[i].Timestamp.After(written[i-1].Timestamp))
	}
	// The first occurrence of the duplicated slot wins.
	assert.Equal(t, float64(100), written[144].SolarPower)

	// With the boundary rows dropped the bucket is complete and the next run
	// skips it instead of refetching forever.
	assert.True(t, fx.driver.checker.IsPowerBucketComplete(fx.site, day))
}

func TestRunEnergyMonthlyLayoutClampsRowsToMonth(t *testing.T) {
	fx := newDriverFixture(t, DriverOptions{})
	fx.site.InstallDate = time.Date(2023, 5, 18, 0, 0, 0, 0, time.UTC)

	may := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	fx.fetcher.energyRows[may.Format(dayKey)] = []series.EnergyRow{
		{Timestamp: may.AddDate(0, 0, 19), Values: map[string]float64{"solar_energy_exported": 1}},
		// Next month's boundary row and a duplicate of the first timestamp.
		{Timestamp: may.AddDate(0, 1, 0), Values: map[string]float64{"solar_energy_exported": 2}},
		{Timestamp: may.AddDate(0, 0, 19), Values: map[string]float64{"solar_energy_exported": 999}},
		{Timestamp: may.AddDate(0, 0, 20), Values: map[string]float64{"solar_energy_exported": 3}},
	}

	report, err := fx.driver.RunEnergy(context.Background(), fx.site)
	require.NoError(t, err)
	assert.Equal(t, 2, report.RowsWritten)

	path := series.EnergyMonthPath(fx.baseDir, fx.site.DirName(), series.SchemaV3, may)
	rows, err := series.ReadEnergyFile(path, series.SchemaV3)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, float64(1), rows[0].Values["solar_energy_exported"])
	assert.Equal(t, float64(3), rows[1].Values["solar_energy_exported"])
}

func TestRunPowerObservesBucketSpans(t *testing.T) {
	type spanEnd struct {
		bucket string
		err    error
	}
	var opened []string
	var closed []spanEnd
	span := func(ctx context.Context, bucket time.Time, kind string) (context.Context, func(error)) {
		key := bucket.Format(dayKey)
		opened = append(opened, key)
		return ctx, func(err error) { closed = append(closed, spanEnd{bucket: key, err: err}) }
	}

	fx := newDriverFixture(t, DriverOptions{Span: span})
	fx.site.InstallDate = time.Date(2023, 5, 21, 0, 0, 0, 0, time.UTC)

	for _, d := range []int{21, 23} {
		day := time.Date(2023, 5, d, 0, 0, 0, 0, time.UTC)
		fx.fetcher.powerRows[day.Format(dayKey)] = powerRows(day, 5)
	}
	fetchErr := exception.NewFetchError("client", "bucket fetch failed", nil)
	fx.fetcher.powerErrs["2023-05-22"] = fetchErr

	_, err := fx.driver.RunPower(context.Background(), fx.site)
	require.NoError(t, err)

	// One span per fetched bucket, newest-first; the failed fetch closes
	// its span with the fault.
	assert.Equal(t, []string{"2023-05-23", "2023-05-22", "2023-05-21"}, opened)
	require.Len(t, closed, 3)
	assert.NoError(t, closed[0].err)
	assert.Same(t, fetchErr, closed[1].err)
	assert.NoError(t, closed[2].err)
}
