package series_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tigerroll/solarback/pkg/series"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func powerRowAt(ts time.Time, solar, battery, grid float64) series.PowerRow {
	return series.PowerRow{
		Timestamp:    ts,
		SolarPower:   solar,
		BatteryPower: battery,
		GridPower:    grid,
	}
}

func TestWritePowerBucketRecomputesLoadPower(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2023-05-01.csv")
	ts := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	row := series.PowerRow{
		Timestamp:         ts,
		SolarPower:        1200,
		BatteryPower:      -300,
		GridPower:         150,
		GridServicesPower: 10,
		GeneratorPower:    5,
	}
	require.NoError(t, series.WritePowerBucket(path, series.SchemaV3, []series.PowerRow{row}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, series.PowerHeader(series.SchemaV3), records[0])
	// load_power is the last column and must equal the channel sum.
	assert.Equal(t, "1065", records[1][len(records[1])-1])
}

func TestWritePowerBucketSortsAscending(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2023-05-01.csv")
	base := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	rows := []series.PowerRow{
		powerRowAt(base.Add(10*time.Minute), 3, 0, 0),
		powerRowAt(base, 1, 0, 0),
		powerRowAt(base.Add(5*time.Minute), 2, 0, 0),
	}
	require.NoError(t, series.WritePowerBucket(path, series.SchemaV2, rows))

	read, err := series.ReadPowerBucket(path, series.SchemaV2)
	require.NoError(t, err)
	require.Len(t, read, 3)
	assert.Equal(t, float64(1), read[0].SolarPower)
	assert.Equal(t, float64(2), read[1].SolarPower)
	assert.Equal(t, float64(3), read[2].SolarPower)
	assert.True(t, read[0].Timestamp.Before(read[1].Timestamp))
	assert.True(t, read[1].Timestamp.Before(read[2].Timestamp))
}

func TestWritePowerBucketOverwritesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2023-05-01.csv")
	ts := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, series.WritePowerBucket(path, series.SchemaV3, []series.PowerRow{powerRowAt(ts, 1, 0, 0)}))
	require.NoError(t, series.WritePowerBucket(path, series.SchemaV3, []series.PowerRow{
		powerRowAt(ts, 10, 0, 0),
		powerRowAt(ts.Add(5*time.Minute), 20, 0, 0),
	}))

	read, err := series.ReadPowerBucket(path, series.SchemaV3)
	require.NoError(t, err)
	require.Len(t, read, 2)
	assert.Equal(t, float64(10), read[0].SolarPower)
}

func TestWritePowerBucketLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2023-05-01.csv")
	ts := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, series.WritePowerBucket(path, series.SchemaV1, []series.PowerRow{powerRowAt(ts, 1, 2, 3)}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2023-05-01.csv", entries[0].Name())
}

func TestWritePowerBucketV1HeaderOmitsExtendedChannels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2023-05-01.csv")
	ts := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, series.WritePowerBucket(path, series.SchemaV1, []series.PowerRow{powerRowAt(ts, 1, 2, 3)}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"timestamp", "solar_power", "battery_power", "grid_power", "load_power"}, records[0])
	assert.NotContains(t, records[0], "grid_services_power")
}

func TestWritePowerBucketPreservesUTCOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2023-05-01.csv")
	loc := time.FixedZone("PDT", -7*3600)
	ts := time.Date(2023, 5, 1, 6, 30, 0, 0, loc)

	require.NoError(t, series.WritePowerBucket(path, series.SchemaV3, []series.PowerRow{powerRowAt(ts, 1, 0, 0)}))

	read, err := series.ReadPowerBucket(path, series.SchemaV3)
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.True(t, read[0].Timestamp.Equal(ts))
	_, offset := read[0].Timestamp.Zone()
	assert.Equal(t, -7*3600, offset)
}

func TestReadPowerBucketMissingFile(t *testing.T) {
	_, err := series.ReadPowerBucket(filepath.Join(t.TempDir(), "absent.csv"), series.SchemaV3)
	assert.Error(t, err)
}
