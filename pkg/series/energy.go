package series

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/tigerroll/solarback/pkg/support/exception"
)

// ReadEnergyFile parses a previously written energy file.
//
// Parameters:
//
//	path: The energy file path.
//	v: The schema version governing the header.
func ReadEnergyFile(path string, v SchemaVersion) ([]EnergyRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, exception.NewWriteError(moduleName, fmt.Sprintf("failed to open energy file %s", path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, exception.NewWriteError(moduleName, fmt.Sprintf("failed to parse energy file %s", path), err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]EnergyRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) == 0 {
			continue
		}
		ts, err := time.Parse(TimestampLayout, rec[0])
		if err != nil {
			return nil, exception.NewWriteError(moduleName, fmt.Sprintf("energy file %s holds unparseable timestamp '%s'", path, rec[0]), err)
		}
		row := EnergyRow{Timestamp: ts, Values: make(map[string]float64)}
		for i := 1; i < len(header) && i < len(rec); i++ {
			if val, err := strconv.ParseFloat(rec[i], 64); err == nil {
				row.Values[header[i]] = val
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// MergeEnergyFile merges newly fetched rows into the energy file at path.
// Completeness of the cumulative file is per logical row: rows whose
// timestamp is already present are skipped, existing rows are never
// altered, and the merged file is rewritten atomically sorted ascending.
//
// Parameters:
//
//	path: The energy file path (created if absent).
//	v: The schema version governing the header.
//	newRows: The freshly fetched rows to merge.
//
// Returns:
//
//	The number of rows actually added and an error if the merge fails.
func MergeEnergyFile(path string, v SchemaVersion, newRows []EnergyRow) (int, error) {
	existing, err := ReadEnergyFile(path, v)
	if err != nil {
		return 0, err
	}

	seen := make(map[int64]struct{}, len(existing))
	for _, row := range existing {
		seen[row.Timestamp.Unix()] = struct{}{}
	}

	merged := existing
	added := 0
	for _, row := range newRows {
		key := row.Timestamp.Unix()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, row)
		added++
	}

	if added == 0 && len(existing) > 0 {
		// Nothing new; leave the authoritative file untouched.
		return 0, nil
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })

	channels := EnergyChannels(v)
	records := make([][]string, 0, len(merged)+1)
	records = append(records, EnergyHeader(v))
	for _, row := range merged {
		rec := make([]string, 0, len(channels)+1)
		rec = append(rec, row.Timestamp.Format(TimestampLayout))
		for _, ch := range channels {
			rec = append(rec, formatValue(row.Values[ch]))
		}
		records = append(records, rec)
	}

	if err := writeAtomically(path, records); err != nil {
		return 0, err
	}
	return added, nil
}

// WriteEnergyBucket serializes one month bucket's rows to path (v3 layout).
// Like power buckets the write is atomic and rows are sorted ascending.
func WriteEnergyBucket(path string, v SchemaVersion, rows []EnergyRow) error {
	sorted := make([]EnergyRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	channels := EnergyChannels(v)
	records := make([][]string, 0, len(sorted)+1)
	records = append(records, EnergyHeader(v))
	for _, row := range sorted {
		rec := make([]string, 0, len(channels)+1)
		rec = append(rec, row.Timestamp.Format(TimestampLayout))
		for _, ch := range channels {
			rec = append(rec, formatValue(row.Values[ch]))
		}
		records = append(records, rec)
	}
	return writeAtomically(path, records)
}
