package backfill

import (
	"context"
	"time"
)

// Bucket dispositions recorded per sweep step.
const (
	DispositionFetched = "fetched"
	DispositionSkipped = "skipped"
	DispositionEmpty   = "empty"
	DispositionFailed  = "failed"
)

// Sweep exit statuses.
const (
	ExitCompleted   = "COMPLETED"
	ExitFailed      = "FAILED"
	ExitInterrupted = "INTERRUPTED"
)

// SweepReport summarizes one driver pass over all buckets of one kind.
type SweepReport struct {
	Kind        string
	SiteID      int64
	Fetched     int
	Skipped     int
	Empty       int
	Failed      int
	RowsWritten int
	ExitStatus  string
}

// SweepRecorder receives sweep lifecycle and per-bucket outcome events.
// The run journal and the metrics recorder both implement it; recorders
// must tolerate being called from the single sweep worker only.
type SweepRecorder interface {
	// StartSweep is called once before the first bucket of a sweep.
	StartSweep(ctx context.Context, site Site, kind string)
	// RecordBucket is called once per enumerated bucket with its disposition.
	RecordBucket(ctx context.Context, bucket time.Time, disposition string, rows int, errText string)
	// FinishSweep is called once with the final report.
	FinishSweep(ctx context.Context, report SweepReport)
}

// NopRecorder is a SweepRecorder that does nothing.
type NopRecorder struct{}

func (NopRecorder) StartSweep(context.Context, Site, string)                     {}
func (NopRecorder) RecordBucket(context.Context, time.Time, string, int, string) {}
func (NopRecorder) FinishSweep(context.Context, SweepReport)                     {}

// MultiRecorder fans events out to several recorders.
type MultiRecorder []SweepRecorder

func (m MultiRecorder) StartSweep(ctx context.Context, site Site, kind string) {
	for _, r := range m {
		r.StartSweep(ctx, site, kind)
	}
}

func (m MultiRecorder) RecordBucket(ctx context.Context, bucket time.Time, disposition string, rows int, errText string) {
	for _, r := range m {
		r.RecordBucket(ctx, bucket, disposition, rows, errText)
	}
}

func (m MultiRecorder) FinishSweep(ctx context.Context, report SweepReport) {
	for _, r := range m {
		r.FinishSweep(ctx, report)
	}
}

// Verify interfaces
var (
	_ SweepRecorder = NopRecorder{}
	_ SweepRecorder = MultiRecorder(nil)
)
