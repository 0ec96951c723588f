package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "classboard/internal/log"
	"classboard/internal/model"
)

// maxOccurrencesPerEvent caps a single RRULE expansion inside one window.
const maxOccurrencesPerEvent = 500

// ErrNoEvents is returned by TodaySchedule when the feed has no timed
// events on the requested day.
var ErrNoEvents = errors.New("ics: no timed events on this day")

// Occurrence is one concrete instance of an Event in the display zone.
type Occurrence struct {
	UID     string
	Summary string
	Subject string
	AllDay  bool
	Start   time.Time
	End     time.Time
}

// Expand returns every occurrence of events intersecting [from, to],
// applying RRULE, EXDATE and RECURRENCE-ID overrides, converted into loc
// and sorted by start.
func Expand(events []Event, from, to time.Time, loc *time.Location) []Occurrence {
	if loc == nil {
		loc = time.Local
	}

	base := make(map[string][]Event)
	overrides := make(map[string][]Event)
	order := make([]string, 0)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := base[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		base[ev.UID] = append(base[ev.UID], ev)
	}

	out := make([]Occurrence, 0)
	for _, uid := range order {
		for _, ev := range base[uid] {
			out = append(out, expandEvent(ev, overrides[uid], from, to, loc)...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func expandEvent(ev Event, overrides []Event, from, to time.Time, loc *time.Location) []Occurrence {
	if ev.RawRRule == "" {
		if !overlaps(ev.Start, ev.End, from, to) {
			return nil
		}
		if o, ok := findOverride(overrides, ev.Start); ok {
			ev = o
		}
		return []Occurrence{makeOccurrence(ev, ev.Start, ev.End, loc)}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	starts := set.Between(from.In(ev.Start.Location()), to.In(ev.Start.Location()), true)
	if len(starts) > maxOccurrencesPerEvent {
		appLog.Warn("ics: truncated recurrence", "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		starts = starts[:maxOccurrencesPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		inst, start, end := ev, s, s.Add(dur)
		if o, ok := findOverride(overrides, s); ok {
			inst, start, end = o, o.Start, o.End
		}
		out = append(out, makeOccurrence(inst, start, end, loc))
	}
	return out
}

// findOverride matches a RECURRENCE-ID against an instance start.
func findOverride(overrides []Event, start time.Time) (Event, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return Event{}, false
}

func makeOccurrence(ev Event, start, end time.Time, loc *time.Location) Occurrence {
	subject := ev.Location
	if subject == "" {
		subject = ev.Description
	}
	return Occurrence{
		UID:     ev.UID,
		Summary: ev.Summary,
		Subject: subject,
		AllDay:  ev.AllDay,
		Start:   start.In(loc),
		End:     end.In(loc),
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}

// TodaySchedule builds the timetable for now's calendar day (in now's
// location) from an ICS payload. All-day events are left out; periods are
// ordered by start time.
func TodaySchedule(body []byte, now time.Time) (*model.RawSchedule, error) {
	loc := now.Location()
	events, err := Parse(body, loc)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond)

	sched := &model.RawSchedule{Date: dayStart.Format("2006-01-02")}
	for _, occ := range Expand(events, dayStart, dayEnd, loc) {
		if occ.AllDay || occ.Start.Before(dayStart) || occ.Start.After(dayEnd) {
			continue
		}
		sched.Schedule = append(sched.Schedule, model.RawPeriod{
			Name:    occ.Summary,
			Subject: occ.Subject,
			Start:   occ.Start.Format("15:04"),
			End:     occ.End.Format("15:04"),
		})
	}
	if len(sched.Schedule) == 0 {
		return nil, ErrNoEvents
	}
	return sched, nil
}
