package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/solarback/pkg/backfill"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

// Recorder persists sweep lifecycle events to the journal database. Journal
// faults are logged and never fail the sweep: the journal is an audit trail,
// not a source of truth. Bucket files on disk remain the authority on
// completeness.
type Recorder struct {
	conn  *Connection
	clock func() time.Time

	currentRunID string
}

// NewRecorder creates a Recorder over an established journal connection.
func NewRecorder(conn *Connection) *Recorder {
	return &Recorder{conn: conn, clock: time.Now}
}

// StartSweep inserts a new sweep run row.
func (r *Recorder) StartSweep(ctx context.Context, site backfill.Site, kind string) {
	run := SweepRun{
		ID:        uuid.NewString(),
		SiteID:    site.ID,
		Kind:      kind,
		StartTime: r.clock().UTC(),
	}
	if err := r.conn.DB().WithContext(ctx).Create(&run).Error; err != nil {
		logger.Warnf("Failed to record sweep start in journal: %v", err)
		r.currentRunID = ""
		return
	}
	r.currentRunID = run.ID
}

// RecordBucket inserts one bucket outcome row for the current run.
func (r *Recorder) RecordBucket(ctx context.Context, bucket time.Time, disposition string, rows int, errText string) {
	if r.currentRunID == "" {
		return
	}
	outcome := BucketOutcome{
		ID:          uuid.NewString(),
		RunID:       r.currentRunID,
		Bucket:      bucket.UTC(),
		Disposition: disposition,
		Rows:        rows,
		ErrorText:   errText,
		RecordedAt:  r.clock().UTC(),
	}
	if err := r.conn.DB().WithContext(ctx).Create(&outcome).Error; err != nil {
		logger.Warnf("Failed to record bucket outcome in journal: %v", err)
	}
}

// FinishSweep closes the current run row with the final counters.
func (r *Recorder) FinishSweep(ctx context.Context, report backfill.SweepReport) {
	if r.currentRunID == "" {
		return
	}
	now := r.clock().UTC()
	updates := map[string]interface{}{
		"end_time":     &now,
		"fetched":      report.Fetched,
		"skipped":      report.Skipped,
		"empty":        report.Empty,
		"failed":       report.Failed,
		"rows_written": report.RowsWritten,
		"exit_status":  report.ExitStatus,
	}
	err := r.conn.DB().WithContext(ctx).
		Model(&SweepRun{}).
		Where("id = ?", r.currentRunID).
		Updates(updates).Error
	if err != nil {
		logger.Warnf("Failed to record sweep finish in journal: %v", err)
	}
	r.currentRunID = ""
}

// Verify that Recorder implements the SweepRecorder interface.
var _ backfill.SweepRecorder = (*Recorder)(nil)
