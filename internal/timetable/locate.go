package timetable

import (
	"time"

	"classboard/internal/model"
)

// CurrentClass returns the first period whose [Start, End] contains now,
// both ends inclusive, or nil.
func CurrentClass(s *model.RawSchedule, now time.Time) *model.FormattedPeriod {
	periods := FormatTimes(s, now)
	for i := range periods {
		p := periods[i]
		if !now.Before(p.Start) && !now.After(p.End) {
			return &p
		}
	}
	return nil
}

// NextClass returns the first period starting strictly after now, or nil.
func NextClass(s *model.RawSchedule, now time.Time) *model.FormattedPeriod {
	periods := FormatTimes(s, now)
	for i := range periods {
		p := periods[i]
		if p.Start.After(now) {
			return &p
		}
	}
	return nil
}
