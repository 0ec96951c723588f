// Package timetable turns the remote daily timetable into absolute class
// periods and answers "what is on now / next" for a given instant.
package timetable

import (
	"strings"
	"time"

	"classboard/internal/model"
)

const (
	dateLayout      = "2006-01-02"
	clockLayout     = "15:04"
	stampLayout     = dateLayout + "T" + clockLayout
	TimeOfDayLayout = "15:04:05"
)

// FormatTimes resolves every period of s onto now's calendar date, in now's
// location. The schedule's own Date field is ignored on purpose: periods are
// always anchored to the day they are formatted on.
//
// A malformed "HH:MM" yields the zero time; such a period never matches as
// current or next.
func FormatTimes(s *model.RawSchedule, now time.Time) []model.FormattedPeriod {
	if s == nil {
		return nil
	}

	day := now.Format(dateLayout)
	out := make([]model.FormattedPeriod, 0, len(s.Schedule))
	for _, p := range s.Schedule {
		out = append(out, model.FormattedPeriod{
			Name:    p.Name,
			Subject: p.Subject,
			Start:   atClock(day, p.Start, now.Location()),
			End:     atClock(day, p.End, now.Location()),
		})
	}
	return out
}

// Today returns now's calendar date as YYYY-MM-DD.
func Today(now time.Time) string {
	return now.Format(dateLayout)
}

func atClock(day, hhmm string, loc *time.Location) time.Time {
	t, err := time.ParseInLocation(stampLayout, day+"T"+strings.TrimSpace(hhmm), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}
