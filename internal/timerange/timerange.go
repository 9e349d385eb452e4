// Package timerange converts user-supplied date range parameters into
// absolute UTC instants. Date-only inputs are interpreted as calendar
// days in the caller's timezone; datetime inputs are used as-is.
// Parsing is lenient: anything unparseable becomes an unbounded side.
package timerange

import (
	"regexp"
	"time"
)

var dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Range is a half-open-or-unbounded UTC time filter. A nil bound means
// unbounded on that side; downstream queries must omit the bound
// entirely rather than substitute a sentinel date.
type Range struct {
	Start *time.Time
	End   *time.Time
}

// IsZero reports whether the range has no bounds at all.
func (r Range) IsZero() bool {
	return r.Start == nil && r.End == nil
}

// Parse builds a Range from raw query parameters. timezone is an IANA
// name and defaults to UTC; unknown names also fall back to UTC rather
// than erroring, matching the lenient contract of the endpoints.
//
// Date-only values (YYYY-MM-DD) expand to local day boundaries:
// startDate to local midnight, endDate to local 23:59:59.999999999,
// end-of-day inclusive. Constructing the instants with time.Date in
// the loaded location makes the local-to-UTC conversion DST-correct,
// including zones with non-whole-hour offsets.
func Parse(startDate, endDate, timezone string) Range {
	loc := loadLocation(timezone)
	return Range{
		Start: parseBound(startDate, loc, false),
		End:   parseBound(endDate, loc, true),
	}
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseBound parses one bound. Returns nil for empty or unparseable
// input: lenient by design, a bad date never fails the request.
func parseBound(value string, loc *time.Location, endOfDay bool) *time.Time {
	if value == "" {
		return nil
	}

	if dateOnlyRe.MatchString(value) {
		day, err := time.ParseInLocation("2006-01-02", value, loc)
		if err != nil {
			return nil
		}
		y, m, d := day.Date()
		var t time.Time
		if endOfDay {
			t = time.Date(y, m, d, 23, 59, 59, 999999999, loc)
		} else {
			t = time.Date(y, m, d, 0, 0, 0, 0, loc)
		}
		utc := t.UTC()
		return &utc
	}

	// Full datetimes are used as-is, no day-boundary expansion.
	// An explicit offset wins; otherwise the wall clock is read in
	// the requested timezone.
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}

	localLayouts := []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			utc := t.UTC()
			return &utc
		}
	}

	return nil
}
