package series

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/tigerroll/solarback/pkg/support/exception"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

// WritePowerBucket serializes one day bucket's rows to path.
// Rows are sorted ascending by timestamp and the derived load channel is
// recomputed per row. The write is all-or-nothing: content goes to a
// temporary file in the destination directory which is renamed into place
// only after the full row set is serialized, so a crash mid-write never
// leaves a file the completeness check would classify as complete.
//
// Parameters:
//
//	path: The destination bucket file path.
//	v: The schema version governing the header.
//	rows: The rows to serialize.
func WritePowerBucket(path string, v SchemaVersion, rows []PowerRow) error {
	sorted := make([]PowerRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	records := make([][]string, 0, len(sorted)+1)
	records = append(records, PowerHeader(v))
	for _, row := range sorted {
		records = append(records, powerRecord(v, row))
	}

	return writeAtomically(path, records)
}

// powerRecord serializes one row in header order, recomputing load_power.
func powerRecord(v SchemaVersion, row PowerRow) []string {
	if v == SchemaV1 {
		return []string{
			row.Timestamp.Format(TimestampLayout),
			formatValue(row.SolarPower),
			formatValue(row.BatteryPower),
			formatValue(row.GridPower),
			formatValue(row.LoadPower()),
		}
	}
	return []string{
		row.Timestamp.Format(TimestampLayout),
		formatValue(row.SolarPower),
		formatValue(row.BatteryPower),
		formatValue(row.GridPower),
		formatValue(row.GridServicesPower),
		formatValue(row.GeneratorPower),
		formatValue(row.LoadPower()),
	}
}

// ReadPowerBucket parses a previously written power bucket file.
//
// Parameters:
//
//	path: The bucket file path.
//	v: The schema version governing the header.
func ReadPowerBucket(path string, v SchemaVersion) ([]PowerRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, exception.NewWriteError(moduleName, fmt.Sprintf("failed to open bucket file %s", path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, exception.NewWriteError(moduleName, fmt.Sprintf("failed to parse bucket file %s", path), err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	rows := make([]PowerRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		ts, err := time.Parse(TimestampLayout, rec[col["timestamp"]])
		if err != nil {
			return nil, exception.NewWriteError(moduleName, fmt.Sprintf("bucket file %s holds unparseable timestamp '%s'", path, rec[col["timestamp"]]), err)
		}
		row := PowerRow{Timestamp: ts}
		row.SolarPower = parseColumn(rec, col, "solar_power")
		row.BatteryPower = parseColumn(rec, col, "battery_power")
		row.GridPower = parseColumn(rec, col, "grid_power")
		row.GridServicesPower = parseColumn(rec, col, "grid_services_power")
		row.GeneratorPower = parseColumn(rec, col, "generator_power")
		rows = append(rows, row)
	}
	return rows, nil
}

// parseColumn reads a named numeric column, tolerating its absence.
func parseColumn(rec []string, col map[string]int, name string) float64 {
	idx, ok := col[name]
	if !ok || idx >= len(rec) {
		return 0
	}
	val, err := strconv.ParseFloat(rec[idx], 64)
	if err != nil {
		return 0
	}
	return val
}

// formatValue serializes a channel value without artificial precision loss.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeAtomically writes CSV records to a temporary file in path's directory
// and renames it into place. Any failure yields a WriteError and removes
// the temporary file.
func writeAtomically(path string, records [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return exception.NewWriteError(moduleName, fmt.Sprintf("failed to create directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return exception.NewWriteError(moduleName, fmt.Sprintf("failed to create temporary file in %s", dir), err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		if removeErr := os.Remove(tmpName); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.Warnf("Failed to remove temporary file %s: %v", tmpName, removeErr)
		}
	}

	writer := csv.NewWriter(tmp)
	if err := writer.WriteAll(records); err != nil {
		cleanup()
		return exception.NewWriteError(moduleName, fmt.Sprintf("failed to serialize rows for %s", path), err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		cleanup()
		return exception.NewWriteError(moduleName, fmt.Sprintf("failed to flush rows for %s", path), err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return exception.NewWriteError(moduleName, fmt.Sprintf("failed to sync temporary file for %s", path), err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return exception.NewWriteError(moduleName, fmt.Sprintf("failed to close temporary file for %s", path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return exception.NewWriteError(moduleName, fmt.Sprintf("failed to rename temporary file into %s", path), err)
	}
	return nil
}
