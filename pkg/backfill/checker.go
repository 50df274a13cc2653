package backfill

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tigerroll/solarback/pkg/series"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

// Checker decides whether a bucket's file already exists and is well-formed,
// hence skippable. A day bucket is complete iff its file exists, is
// non-empty, and its last timestamp falls on the bucket's calendar date at
// the terminal 5-minute slot; anything else (including a file truncated by
// a crashed previous run) is re-fetched and overwritten.
type Checker struct {
	baseDir string
	version series.SchemaVersion
}

// NewChecker creates a Checker over the download base directory.
func NewChecker(baseDir string, version series.SchemaVersion) *Checker {
	return &Checker{baseDir: baseDir, version: version}
}

// IsPowerBucketComplete reports whether the day bucket needs no further fetching.
func (c *Checker) IsPowerBucketComplete(site Site, day time.Time) bool {
	path := series.PowerBucketPath(c.baseDir, site.DirName(), c.version, day)
	last, ok := lastDataTimestamp(path)
	if !ok {
		return false
	}

	local := last.In(site.Location)
	if local.Year() != day.Year() || local.Month() != day.Month() || local.Day() != day.Day() {
		logger.Warnf("Bucket file %s ends on %s, outside its calendar date. Treating as truncated.", path, local.Format("2006-01-02"))
		return false
	}
	// The terminal slot of a complete day is 23:55 local.
	return local.Hour() == 23 && local.Minute() == 55
}

// IsEnergyMonthComplete reports whether a v3 per-month energy file needs no
// further fetching. The current, still-accumulating month is never complete.
func (c *Checker) IsEnergyMonthComplete(site Site, month, today time.Time) bool {
	if !month.Before(TruncateMonth(today, site.Location)) {
		return false
	}
	path := series.EnergyMonthPath(c.baseDir, site.DirName(), c.version, month)
	_, ok := lastDataTimestamp(path)
	return ok
}

// CleanPartialFiles deletes files written for a then-current day by a
// previous run, so that day is re-fetched whole.
func (c *Checker) CleanPartialFiles(site Site) {
	dir := series.PowerDir(c.baseDir, site.DirName(), c.version)
	matches, err := filepath.Glob(filepath.Join(dir, "*"+series.PartialSuffix))
	if err != nil {
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			logger.Warnf("Failed to remove partial file %s: %v", path, err)
			continue
		}
		logger.Infof("Removed partial file %s.", path)
	}
}

// lastDataTimestamp parses the timestamp of the last data row of a bucket
// file. It returns ok=false for a missing, empty, or header-only file.
func lastDataTimestamp(path string) (time.Time, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return time.Time{}, false
	}

	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	if len(lines) < 2 {
		// Header only, or no content at all.
		return time.Time{}, false
	}
	lastLine := string(lines[len(lines)-1])
	fields := strings.SplitN(lastLine, ",", 2)
	if len(fields) == 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(series.TimestampLayout, fields[0])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
