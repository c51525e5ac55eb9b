package types

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date wire format used for as_of_date keys.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date string in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// LocalDate returns the calendar date of the given instant in the user's
// IANA timezone, falling back to UTC when tz is empty or unknown. Derived
// daily artifacts are keyed by the user's local day, not the server's.
func LocalDate(at time.Time, tz string) string {
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	return at.In(loc).Format(DateLayout)
}

// EndOfDay returns the last instant of the given calendar date (UTC).
func EndOfDay(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}

// StartOfDay returns the first instant of the given calendar date (UTC).
func StartOfDay(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayOfYear returns the 1-based day of year for a YYYY-MM-DD date string,
// or 0 when the string does not parse. Used for deterministic nudge variant
// rotation.
func DayOfYear(dateISO string) int {
	t, err := ParseDate(dateISO)
	if err != nil {
		return 0
	}
	return t.YearDay()
}

// WeekStart returns the Monday-start week boundary containing the given date.
func WeekStart(date time.Time) time.Time {
	d := StartOfDay(date)
	// time.Weekday: Sunday=0 ... Saturday=6; normalize to Monday start.
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
