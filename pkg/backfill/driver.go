package backfill

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/solarback/pkg/backfill/retry"
	"github.com/tigerroll/solarback/pkg/series"
	"github.com/tigerroll/solarback/pkg/support/exception"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

const driverModule = "driver"

// Sweep kinds.
const (
	KindPower  = "power"
	KindEnergy = "energy"
)

// BucketSpan opens an observation around one bucket's fetch and persist. It
// returns the context to fetch with and a callback invoked with the bucket's
// outcome.
type BucketSpan func(ctx context.Context, bucket time.Time, kind string) (context.Context, func(error))

// DriverOptions carries the tunable parts of the sweep driver.
type DriverOptions struct {
	// BaseDir is the download base directory.
	BaseDir string
	// Version is the site-wide schema version.
	Version series.SchemaVersion
	// EarliestDate is an optional floor for power day buckets; zero means none.
	EarliestDate time.Time
	// EnergyItemInterval is the extra pause between energy month fetches.
	EnergyItemInterval time.Duration
	// Span wraps each non-skipped bucket; nil disables per-bucket observation.
	Span BucketSpan
}

// Driver walks the bucket space of one site newest-first with a single
// sequential worker, fetching only incomplete buckets and persisting each
// completed bucket atomically before moving on. A run interrupted at any
// point resumes from the completeness check, not from a run-level cursor.
type Driver struct {
	fetcher  SiteFetcher
	checker  *Checker
	recorder SweepRecorder
	sleeper  retry.Sleeper
	opts     DriverOptions

	clock func() time.Time
}

// NewDriver creates a sweep driver.
//
// Parameters:
//
//	opts: Driver tunables.
//	fetcher: The per-bucket fetcher.
//	checker: The bucket completeness checker.
//	recorder: The sweep recorder; nil means no recording.
//	sleeper: The sleeper used for the inter-item energy pause.
func NewDriver(opts DriverOptions, fetcher SiteFetcher, checker *Checker, recorder SweepRecorder, sleeper retry.Sleeper) *Driver {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Driver{
		fetcher:  fetcher,
		checker:  checker,
		recorder: recorder,
		sleeper:  sleeper,
		opts:     opts,
		clock:    time.Now,
	}
}

// RunPower sweeps all power day buckets of a site, newest-first. The
// still-accumulating current day is always re-fetched and written to a
// partial file; partial files left by a previous run are deleted up front.
//
// Returns:
//
//	The sweep report and an error if the sweep halted on a fatal fault.
func (d *Driver) RunPower(ctx context.Context, site Site) (SweepReport, error) {
	report := SweepReport{Kind: KindPower, SiteID: site.ID, ExitStatus: ExitCompleted}

	d.checker.CleanPartialFiles(site)

	today := TruncateDay(d.clock(), site.Location)
	install := TruncateDay(site.InstallDate, site.Location)
	buckets := DayBuckets(today, install, d.opts.EarliestDate)
	logger.Infof("Starting power sweep for site %d: %d day buckets from %s down to %s.",
		site.ID, len(buckets), today.Format("2006-01-02"), install.Format("2006-01-02"))
	d.recorder.StartSweep(ctx, site, KindPower)

	for _, day := range buckets {
		if err := ctx.Err(); err != nil {
			report.ExitStatus = ExitInterrupted
			d.recorder.FinishSweep(ctx, report)
			return report, err
		}

		isToday := day.Equal(today)
		if !isToday && d.checker.IsPowerBucketComplete(site, day) {
			report.Skipped++
			d.recorder.RecordBucket(ctx, day, DispositionSkipped, 0, "")
			continue
		}

		bctx, endBucket := d.beginBucket(ctx, day, KindPower)
		rows, err := d.fetcher.FetchPowerDay(bctx, site, day)
		if err != nil {
			endBucket(err)
			if halt := d.handleBucketError(ctx, &report, day, err); halt != nil {
				return report, halt
			}
			continue
		}
		rows = clampPowerRows(rows, day, site.Location)

		if len(rows) == 0 {
			// A valid terminal signal: the site had no activity that day.
			endBucket(nil)
			report.Empty++
			d.recorder.RecordBucket(ctx, day, DispositionEmpty, 0, "")
			continue
		}

		path := series.PowerBucketPath(d.opts.BaseDir, site.DirName(), d.opts.Version, day)
		if isToday {
			path = series.PowerPartialPath(d.opts.BaseDir, site.DirName(), d.opts.Version, day)
		}
		if err := series.WritePowerBucket(path, d.opts.Version, rows); err != nil {
			endBucket(err)
			if halt := d.handleBucketError(ctx, &report, day, err); halt != nil {
				return report, halt
			}
			continue
		}
		endBucket(nil)

		report.Fetched++
		report.RowsWritten += len(rows)
		d.recorder.RecordBucket(ctx, day, DispositionFetched, len(rows), "")
		logger.Debugf("Wrote %d rows to %s.", len(rows), path)
	}

	d.recorder.FinishSweep(ctx, report)
	logger.Infof("Power sweep for site %d finished: %d fetched, %d skipped, %d empty, %d failed, %d rows.",
		site.ID, report.Fetched, report.Skipped, report.Empty, report.Failed, report.RowsWritten)
	return report, nil
}

// RunEnergy sweeps the energy month buckets of a site, newest-first. Under
// the per-month layout each completed past month is skippable and the current
// month is always re-fetched; under the cumulative layout every month is
// fetched and merged per row into the single growing file.
func (d *Driver) RunEnergy(ctx context.Context, site Site) (SweepReport, error) {
	report := SweepReport{Kind: KindEnergy, SiteID: site.ID, ExitStatus: ExitCompleted}

	today := d.clock()
	months := MonthBuckets(today, site.InstallDate, site.Location)
	logger.Infof("Starting energy sweep for site %d: %d month buckets.", site.ID, len(months))
	d.recorder.StartSweep(ctx, site, KindEnergy)

	for i, month := range months {
		if err := ctx.Err(); err != nil {
			report.ExitStatus = ExitInterrupted
			d.recorder.FinishSweep(ctx, report)
			return report, err
		}

		if d.opts.Version == series.SchemaV3 && d.checker.IsEnergyMonthComplete(site, month, today) {
			report.Skipped++
			d.recorder.RecordBucket(ctx, month, DispositionSkipped, 0, "")
			continue
		}

		if i > 0 && d.opts.EnergyItemInterval > 0 {
			if err := d.sleeper.Sleep(ctx, d.opts.EnergyItemInterval); err != nil {
				report.ExitStatus = ExitInterrupted
				d.recorder.FinishSweep(ctx, report)
				return report, err
			}
		}

		bctx, endBucket := d.beginBucket(ctx, month, KindEnergy)
		rows, err := d.fetcher.FetchEnergyMonth(bctx, site, month)
		if err != nil {
			endBucket(err)
			if halt := d.handleBucketError(ctx, &report, month, err); halt != nil {
				return report, halt
			}
			continue
		}
		if d.opts.Version == series.SchemaV3 {
			// Per-month files have a declared interval of their own. The
			// cumulative layout keeps boundary rows and relies on the
			// per-row merge instead.
			rows = clampEnergyRows(rows, month, site.Location)
		}

		if len(rows) == 0 {
			endBucket(nil)
			report.Empty++
			d.recorder.RecordBucket(ctx, month, DispositionEmpty, 0, "")
			continue
		}

		written, err := d.persistEnergyMonth(site, month, rows)
		if err != nil {
			endBucket(err)
			if halt := d.handleBucketError(ctx, &report, month, err); halt != nil {
				return report, halt
			}
			continue
		}
		endBucket(nil)

		report.Fetched++
		report.RowsWritten += written
		d.recorder.RecordBucket(ctx, month, DispositionFetched, written, "")
	}

	d.recorder.FinishSweep(ctx, report)
	logger.Infof("Energy sweep for site %d finished: %d fetched, %d skipped, %d empty, %d failed, %d rows.",
		site.ID, report.Fetched, report.Skipped, report.Empty, report.Failed, report.RowsWritten)
	return report, nil
}

// persistEnergyMonth writes one month's rows under the layout rules of the
// configured schema version and returns the number of rows actually persisted.
func (d *Driver) persistEnergyMonth(site Site, month time.Time, rows []series.EnergyRow) (int, error) {
	if d.opts.Version == series.SchemaV3 {
		path := series.EnergyMonthPath(d.opts.BaseDir, site.DirName(), d.opts.Version, month)
		if err := series.WriteEnergyBucket(path, d.opts.Version, rows); err != nil {
			return 0, err
		}
		return len(rows), nil
	}
	path := series.CumulativeEnergyPath(d.opts.BaseDir, site.DirName(), d.opts.Version)
	return series.MergeEnergyFile(path, d.opts.Version, rows)
}

// beginBucket opens the configured bucket observation, or a no-op one.
func (d *Driver) beginBucket(ctx context.Context, bucket time.Time, kind string) (context.Context, func(error)) {
	if d.opts.Span == nil {
		return ctx, func(error) {}
	}
	return d.opts.Span(ctx, bucket, kind)
}

// clampPowerRows keeps only rows inside the day's calendar interval and
// collapses duplicate timestamps, first occurrence wins. The vendor API emits
// a next-day midnight sample at bucket boundaries; writing it would leave a
// file whose last timestamp never falls on the bucket date, so the
// completeness check would refetch that day forever.
func clampPowerRows(rows []series.PowerRow, day time.Time, loc *time.Location) []series.PowerRow {
	start := TruncateDay(day, loc)
	end := start.AddDate(0, 0, 1)
	seen := make(map[int64]struct{}, len(rows))
	kept := make([]series.PowerRow, 0, len(rows))
	for _, row := range rows {
		if row.Timestamp.Before(start) || !row.Timestamp.Before(end) {
			continue
		}
		key := row.Timestamp.Unix()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	return kept
}

// clampEnergyRows is the month-interval counterpart of clampPowerRows.
func clampEnergyRows(rows []series.EnergyRow, month time.Time, loc *time.Location) []series.EnergyRow {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0)
	seen := make(map[int64]struct{}, len(rows))
	kept := make([]series.EnergyRow, 0, len(rows))
	for _, row := range rows {
		if row.Timestamp.Before(start) || !row.Timestamp.Before(end) {
			continue
		}
		key := row.Timestamp.Unix()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	return kept
}

// handleBucketError classifies a per-bucket failure. Skippable faults are
// recorded and the sweep moves to the next bucket; everything else halts the
// run with a FAILED (or INTERRUPTED) exit status.
func (d *Driver) handleBucketError(ctx context.Context, report *SweepReport, bucket time.Time, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		report.ExitStatus = ExitInterrupted
		d.recorder.FinishSweep(ctx, *report)
		return err
	}

	if be, ok := err.(*exception.BatchError); ok && be.IsSkippable() {
		report.Failed++
		logger.Warnf("Bucket %s failed and is skipped: %v", bucket.Format("2006-01-02"), err)
		d.recorder.RecordBucket(ctx, bucket, DispositionFailed, 0, exception.ExtractErrorMessage(err))
		return nil
	}

	report.ExitStatus = ExitFailed
	report.Failed++
	logger.Errorf("Bucket %s failed fatally. Halting the sweep: %v", bucket.Format("2006-01-02"), err)
	d.recorder.RecordBucket(ctx, bucket, DispositionFailed, 0, exception.ExtractErrorMessage(err))
	d.recorder.FinishSweep(ctx, *report)
	return err
}
