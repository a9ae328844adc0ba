package briefings

import (
	"fmt"
	"time"

	"github.com/jimdaga/mediecho/internal/apierror"
	"github.com/jimdaga/mediecho/internal/logs"
)

// Window is the inclusive [Start, End] range a brief covers
type Window struct {
	Start time.Time
	End   time.Time
}

// normalize stores instants in UTC at the microsecond precision Postgres keeps,
// so exact window lookups match what was inserted
func (w Window) normalize() Window {
	return Window{
		Start: w.Start.UTC().Truncate(time.Microsecond),
		End:   w.End.UTC().Truncate(time.Microsecond),
	}
}

// WeekOf returns Monday 00:00 through Sunday 23:59:59.999999 of the week containing t in loc
func WeekOf(t time.Time, loc *time.Location) Window {
	local := t.In(loc)
	offset := (int(local.Weekday()) + 6) % 7 // days since Monday
	y, m, d := local.Date()
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	end := logs.EndOfDay(start.AddDate(0, 0, 6))
	return Window{Start: start, End: end}.normalize()
}

// ResolveWindow turns optional request dates into a window. Missing bounds come from
// the week containing now; a date-only end covers that whole day.
func ResolveWindow(startValue, endValue string, now time.Time, loc *time.Location) (Window, error) {
	if startValue == "" && endValue == "" {
		return WeekOf(now, loc), nil
	}

	var (
		w          Window
		start, end time.Time
		err        error
	)
	if startValue != "" {
		start, _, err = logs.ParseTime(startValue, loc)
		if err != nil {
			return w, apierror.Validation("Invalid weekStartDate", err.Error())
		}
	}
	if endValue != "" {
		var dateOnly bool
		end, dateOnly, err = logs.ParseTime(endValue, loc)
		if err != nil {
			return w, apierror.Validation("Invalid weekEndDate", err.Error())
		}
		if dateOnly {
			end = logs.EndOfDay(end)
		}
	}

	switch {
	case startValue == "":
		local := end.In(loc)
		y, m, d := local.Date()
		start = time.Date(y, m, d-6, 0, 0, 0, 0, loc)
	case endValue == "":
		end = logs.EndOfDay(start.In(loc).AddDate(0, 0, 6))
	}

	if end.Before(start) {
		return w, apierror.Validation("Invalid window", fmt.Sprintf("weekEndDate %s is before weekStartDate %s", end.Format(time.RFC3339), start.Format(time.RFC3339)))
	}
	return Window{Start: start, End: end}.normalize(), nil
}
