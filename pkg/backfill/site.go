// Package backfill implements the incremental, rate-limited backfill engine:
// the sweep driver, the bucket completeness checker, and the bucket
// enumeration over calendar time.
package backfill

import (
	"strconv"
	"time"
)

// Site is one physical installation: the opaque site identifier plus the
// bounds and timezone that govern its sweeps.
type Site struct {
	// ID is the energy site identifier.
	ID int64
	// InstallDate is the lower bound for backfill, at site-local midnight.
	InstallDate time.Time
	// Timezone is the site's IANA timezone name.
	Timezone string
	// Location is the resolved timezone.
	Location *time.Location
}

// DirName returns the site's directory name under the download base directory.
func (s Site) DirName() string {
	return strconv.FormatInt(s.ID, 10)
}

// TruncateDay returns the site-local midnight of t.
func TruncateDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// TruncateMonth returns the site-local first-of-month midnight of t.
func TruncateMonth(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

// DayBuckets enumerates the power day buckets for a sweep, newest-first,
// from today down to the install date inclusive. An optional earliest floor
// cuts the walk short. The install-date boundary is exact: the day before
// the install date is never enumerated.
//
// Parameters:
//
//	today: The upper bound (site-local midnight).
//	install: The install-date lower bound (site-local midnight).
//	earliest: An optional floor; zero means no floor.
func DayBuckets(today, install, earliest time.Time) []time.Time {
	var buckets []time.Time
	for d := today; !d.Before(install); d = d.AddDate(0, 0, -1) {
		if !earliest.IsZero() && d.Before(earliest) {
			break
		}
		buckets = append(buckets, d)
	}
	return buckets
}

// MonthBuckets enumerates the energy month buckets for a sweep, newest-first,
// from the current month down to the install month inclusive.
func MonthBuckets(today, install time.Time, loc *time.Location) []time.Time {
	installMonth := TruncateMonth(install, loc)
	var buckets []time.Time
	for m := TruncateMonth(today, loc); !m.Before(installMonth); m = m.AddDate(0, -1, 0) {
		buckets = append(buckets, m)
	}
	return buckets
}
