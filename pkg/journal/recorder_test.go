package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/solarback/pkg/backfill"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockRecorder wires a Recorder to a sqlmock-backed GORM connection.
func newMockRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 NewGormLogger("SILENT"),
	})
	require.NoError(t, err)

	conn := &Connection{db: gormDB, cfg: DatabaseConfig{Type: "postgres"}, name: "journal"}
	recorder := NewRecorder(conn)
	recorder.clock = func() time.Time { return time.Date(2023, 5, 23, 12, 0, 0, 0, time.UTC) }
	return recorder, mock
}

func sweepSite() backfill.Site {
	return backfill.Site{
		ID:          123456,
		InstallDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		Timezone:    "UTC",
		Location:    time.UTC,
	}
}

func TestStartSweepInsertsRun(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectExec(`INSERT INTO "sweep_runs"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	recorder.StartSweep(context.Background(), sweepSite(), backfill.KindPower)

	assert.NotEmpty(t, recorder.currentRunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordBucketInsertsOutcome(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectExec(`INSERT INTO "sweep_runs"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "bucket_outcomes"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	recorder.StartSweep(context.Background(), sweepSite(), backfill.KindPower)
	recorder.RecordBucket(context.Background(), time.Date(2023, 5, 22, 0, 0, 0, 0, time.UTC), backfill.DispositionFetched, 288, "")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishSweepUpdatesRun(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectExec(`INSERT INTO "sweep_runs"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "sweep_runs" SET .* WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	recorder.StartSweep(context.Background(), sweepSite(), backfill.KindPower)
	recorder.FinishSweep(context.Background(), backfill.SweepReport{
		Kind:        backfill.KindPower,
		SiteID:      123456,
		Fetched:     10,
		Skipped:     498,
		RowsWritten: 2880,
		ExitStatus:  backfill.ExitCompleted,
	})

	assert.Empty(t, recorder.currentRunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalFaultsDoNotPropagate(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectExec(`INSERT INTO "sweep_runs"`).
		WillReturnError(errors.New("connection refused"))

	// Must not panic and must leave the recorder inert: subsequent bucket and
	// finish events issue no SQL at all.
	recorder.StartSweep(context.Background(), sweepSite(), backfill.KindPower)
	recorder.RecordBucket(context.Background(), time.Now(), backfill.DispositionFetched, 1, "")
	recorder.FinishSweep(context.Background(), backfill.SweepReport{ExitStatus: backfill.ExitCompleted})

	assert.Empty(t, recorder.currentRunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordBucketWithoutRunIsNoOp(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	recorder.RecordBucket(context.Background(), time.Now(), backfill.DispositionSkipped, 0, "")

	assert.NoError(t, mock.ExpectationsWereMet())
}
