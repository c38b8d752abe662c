// internal/bi/day.go
package bi

import (
	"fmt"
	"time"
)

// dayLayout is the wire format every command accepts for its day parameter.
const dayLayout = "2006-01-02"

// DayOf buckets a timestamp into its calendar date in the given timezone.
// The returned value is midnight UTC of that date, which is what the DATE
// columns store.
func DayOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}

// DefaultDay is yesterday in the given timezone. Every BI command falls back
// to it when no explicit day is passed, so the scheduler can run the pipeline
// shortly after midnight against the completed day.
func DefaultDay(loc *time.Location) time.Time {
	return DayOf(time.Now(), loc).AddDate(0, 0, -1)
}

// ResolveDay parses an optional YYYY-MM-DD argument, defaulting to yesterday.
func ResolveDay(arg string, loc *time.Location) (time.Time, error) {
	if arg == "" {
		return DefaultDay(loc), nil
	}
	d, err := time.Parse(dayLayout, arg)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q (expected YYYY-MM-DD): %w", arg, err)
	}
	return d, nil
}
