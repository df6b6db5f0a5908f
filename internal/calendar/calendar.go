// Package calendar resolves civil days in an explicit reference timezone.
// Nothing here consults time.Local; every boundary is computed from the
// *time.Location handed in by the caller.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

// DefaultTimezone is the reference zone used when configuration leaves it empty.
const DefaultTimezone = "America/New_York"

// LoadLocation resolves an IANA zone name, falling back to DefaultTimezone
// for an empty name.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("calendar: load location %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns civil midnight of t's date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Window returns the 24-hour window that begins at civil midnight of day.
// End is Start plus exactly 24 hours of absolute time.
func Window(day time.Time, loc *time.Location) domain.DayWindow {
	start := StartOfDay(day, loc)
	return domain.DayWindow{Start: start, End: start.Add(24 * time.Hour)}
}

// ParseDay parses a YYYY-MM-DD string as civil midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(domain.DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// Range returns every civil day from start through end inclusive. Days are
// stepped by calendar date so DST transitions never skip or repeat a day.
func Range(start, end time.Time, loc *time.Location) []time.Time {
	start = StartOfDay(start, loc)
	end = StartOfDay(end, loc)
	var days []time.Time
	for d := start; !d.After(end); d = time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc) {
		days = append(days, d)
	}
	return days
}

// ParseDates interprets backfill date arguments:
//
//	[D]          a single day
//	[D1,D2,...]  a comma-separated list
//	[START END]  an inclusive range
func ParseDates(args []string, loc *time.Location) ([]time.Time, error) {
	switch {
	case len(args) == 1 && strings.Contains(args[0], ","):
		var days []time.Time
		for _, part := range strings.Split(args[0], ",") {
			d, err := ParseDay(part, loc)
			if err != nil {
				return nil, err
			}
			days = append(days, d)
		}
		return days, nil
	case len(args) == 1:
		d, err := ParseDay(args[0], loc)
		if err != nil {
			return nil, err
		}
		return []time.Time{d}, nil
	case len(args) == 2:
		start, err := ParseDay(args[0], loc)
		if err != nil {
			return nil, err
		}
		end, err := ParseDay(args[1], loc)
		if err != nil {
			return nil, err
		}
		if end.Before(start) {
			return nil, fmt.Errorf("invalid date range: %s is before %s", args[1], args[0])
		}
		return Range(start, end, loc), nil
	default:
		return nil, fmt.Errorf("invalid date arguments: expected DATE, START END, or D1,D2,... (got %d arguments)", len(args))
	}
}

// Label formats the day list the way backfill output files are named:
// a single date, or "first-last".
func Label(days []time.Time) string {
	if len(days) == 0 {
		return ""
	}
	first := days[0].Format(domain.DateLayout)
	if len(days) == 1 {
		return first
	}
	return first + "-" + days[len(days)-1].Format(domain.DateLayout)
}
