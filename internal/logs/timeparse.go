package logs

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseTime accepts an ISO date ("2024-03-04") or an RFC3339 timestamp.
// Dates are interpreted at midnight in loc; dateOnly reports which form was given.
func ParseTime(value string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.UTC
	}

	if d, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return d, true, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, false, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC3339", value)
}

// EndOfDay returns the last microsecond of t's calendar day
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999000, t.Location())
}
