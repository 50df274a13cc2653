package journal

import "time"

// SweepRun is one recorded driver pass over a site's buckets.
type SweepRun struct {
	ID          string     `gorm:"column:id;primaryKey"`
	SiteID      int64      `gorm:"column:site_id"`
	Kind        string     `gorm:"column:kind"`
	StartTime   time.Time  `gorm:"column:start_time"`
	EndTime     *time.Time `gorm:"column:end_time"`
	Fetched     int        `gorm:"column:fetched"`
	Skipped     int        `gorm:"column:skipped"`
	Empty       int        `gorm:"column:empty"`
	Failed      int        `gorm:"column:failed"`
	RowsWritten int        `gorm:"column:rows_written"`
	ExitStatus  string     `gorm:"column:exit_status"`
}

// TableName specifies the table name for SweepRun.
func (SweepRun) TableName() string {
	return "sweep_runs"
}

// BucketOutcome is the recorded disposition of one bucket within a sweep run.
type BucketOutcome struct {
	ID          string    `gorm:"column:id;primaryKey"`
	RunID       string    `gorm:"column:run_id;index"`
	Bucket      time.Time `gorm:"column:bucket"`
	Disposition string    `gorm:"column:disposition"`
	Rows        int       `gorm:"column:rows"`
	ErrorText   string    `gorm:"column:error_text"`
	RecordedAt  time.Time `gorm:"column:recorded_at"`
}

// TableName specifies the table name for BucketOutcome.
func (BucketOutcome) TableName() string {
	return "bucket_outcomes"
}
