// Package series models the canonical telemetry row schema, its historical
// versions, and the on-disk CSV bucket files.
package series

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/tigerroll/solarback/pkg/support/exception"
)

const moduleName = "series"

// TimestampLayout is the canonical timestamp format used in bucket files.
// Timestamps carry the site's UTC offset, so re-localized values survive DST.
const TimestampLayout = time.RFC3339

// PartialSuffix marks a file written for a then-current, still-accumulating
// day. Partial files are deleted at sweep startup so the day is re-fetched whole.
const PartialSuffix = ".partial.csv"

// SchemaVersion identifies one of the historical CSV layout generations.
// The version is a site-wide configuration constant; it is never inferred
// from file contents.
type SchemaVersion int

const (
	// SchemaV1 is the original flat layout: day files directly under the site
	// directory and a reduced power channel set.
	SchemaV1 SchemaVersion = 1
	// SchemaV2 moves day files under a power/ subdirectory and adds the
	// grid-services and generator channels.
	SchemaV2 SchemaVersion = 2
	// SchemaV3 additionally splits energy into per-month files.
	SchemaV3 SchemaVersion = 3
)

// Valid reports whether v is a known schema version.
func (v SchemaVersion) Valid() bool {
	return v >= SchemaV1 && v <= SchemaV3
}

// PowerHeader returns the ordered CSV header for power bucket files.
func PowerHeader(v SchemaVersion) []string {
	if v == SchemaV1 {
		return []string{"timestamp", "solar_power", "battery_power", "grid_power", "load_power"}
	}
	return []string{"timestamp", "solar_power", "battery_power", "grid_power", "grid_services_power", "generator_power", "load_power"}
}

// EnergyChannels returns the ordered energy channel list for energy files.
func EnergyChannels(v SchemaVersion) []string {
	base := []string{
		"solar_energy_exported",
		"grid_energy_imported",
		"grid_energy_exported_from_solar",
		"battery_energy_exported",
		"battery_energy_imported_from_grid",
		"battery_energy_imported_from_solar",
		"consumer_energy_imported_from_grid",
		"consumer_energy_imported_from_solar",
		"consumer_energy_imported_from_battery",
	}
	if v == SchemaV1 {
		return base
	}
	return append(base,
		"generator_energy_exported",
		"grid_services_energy_imported",
		"grid_services_energy_exported",
	)
}

// EnergyHeader returns the ordered CSV header for energy files.
func EnergyHeader(v SchemaVersion) []string {
	return append([]string{"timestamp"}, EnergyChannels(v)...)
}

// SiteDir returns the directory holding all bucket files for a site.
func SiteDir(baseDir, siteID string) string {
	return filepath.Join(baseDir, siteID)
}

// PowerDir returns the directory holding power day files for a site.
func PowerDir(baseDir, siteID string, v SchemaVersion) string {
	if v == SchemaV1 {
		return SiteDir(baseDir, siteID)
	}
	return filepath.Join(SiteDir(baseDir, siteID), "power")
}

// PowerBucketPath returns the file path for one power day bucket.
func PowerBucketPath(baseDir, siteID string, v SchemaVersion, day time.Time) string {
	return filepath.Join(PowerDir(baseDir, siteID, v), day.Format("2006-01-02")+".csv")
}

// PowerPartialPath returns the partial-file path for a still-accumulating day.
func PowerPartialPath(baseDir, siteID string, v SchemaVersion, day time.Time) string {
	return filepath.Join(PowerDir(baseDir, siteID, v), day.Format("2006-01-02")+PartialSuffix)
}

// EnergyDir returns the directory holding energy files for a site.
func EnergyDir(baseDir, siteID string, v SchemaVersion) string {
	if v == SchemaV3 {
		return filepath.Join(SiteDir(baseDir, siteID), "energy")
	}
	return SiteDir(baseDir, siteID)
}

// CumulativeEnergyPath returns the single growing energy file used by v1 and v2.
func CumulativeEnergyPath(baseDir, siteID string, v SchemaVersion) string {
	return filepath.Join(EnergyDir(baseDir, siteID, v), "energy.csv")
}

// EnergyMonthPath returns the per-month energy file used by v3.
func EnergyMonthPath(baseDir, siteID string, v SchemaVersion, month time.Time) string {
	return filepath.Join(EnergyDir(baseDir, siteID, v), month.Format("2006-01")+".csv")
}

// AdaptPowerRecord maps one raw API record onto the canonical PowerRow for
// the given schema version. The timestamp is re-localized into loc so offsets
// remain correct across DST transitions. Missing required fields yield a
// SchemaError; the derived load channel is never read from the record.
//
// Parameters:
//
//	v: The schema version governing the required channel set.
//	raw: The decoded API record.
//	loc: The site's timezone.
func AdaptPowerRecord(v SchemaVersion, raw map[string]interface{}, loc *time.Location) (PowerRow, error) {
	ts, err := recordTimestamp(raw, loc)
	if err != nil {
		return PowerRow{}, err
	}

	row := PowerRow{Timestamp: ts}

	required := []struct {
		key  string
		dest *float64
	}{
		{"solar_power", &row.SolarPower},
		{"battery_power", &row.BatteryPower},
		{"grid_power", &row.GridPower},
	}
	if v != SchemaV1 {
		required = append(required,
			struct {
				key  string
				dest *float64
			}{"grid_services_power", &row.GridServicesPower},
			struct {
				key  string
				dest *float64
			}{"generator_power", &row.GeneratorPower},
		)
	}

	for _, ch := range required {
		val, ok := numericField(raw, ch.key)
		if !ok {
			return PowerRow{}, exception.NewSchemaError(moduleName, fmt.Sprintf("power record at %s is missing channel '%s'", ts.Format(TimestampLayout), ch.key), nil)
		}
		*ch.dest = val
	}

	return row, nil
}

// AdaptEnergyRecord maps one raw API record onto the canonical EnergyRow.
// Channels absent from the record are recorded as zero; a missing timestamp
// yields a SchemaError.
func AdaptEnergyRecord(v SchemaVersion, raw map[string]interface{}, loc *time.Location) (EnergyRow, error) {
	ts, err := recordTimestamp(raw, loc)
	if err != nil {
		return EnergyRow{}, err
	}

	row := EnergyRow{Timestamp: ts, Values: make(map[string]float64)}
	for _, ch := range EnergyChannels(v) {
		if val, ok := numericField(raw, ch); ok {
			row.Values[ch] = val
		}
	}
	return row, nil
}

// recordTimestamp extracts and re-localizes the timestamp field of a raw record.
func recordTimestamp(raw map[string]interface{}, loc *time.Location) (time.Time, error) {
	tsVal, ok := raw["timestamp"]
	if !ok {
		return time.Time{}, exception.NewSchemaError(moduleName, "record is missing 'timestamp'", nil)
	}
	tsStr, ok := tsVal.(string)
	if !ok {
		return time.Time{}, exception.NewSchemaError(moduleName, fmt.Sprintf("record timestamp has unexpected type %T", tsVal), nil)
	}
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return time.Time{}, exception.NewSchemaError(moduleName, fmt.Sprintf("record timestamp '%s' is not parseable", tsStr), err)
	}
	if loc != nil {
		ts = ts.In(loc)
	}
	return ts, nil
}

// numericField extracts a numeric channel value from a raw record.
func numericField(raw map[string]interface{}, key string) (float64, bool) {
	val, ok := raw[key]
	if !ok || val == nil {
		return 0, false
	}
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
