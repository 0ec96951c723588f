package ics

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

// Weekly Monday timetable: 1限 every week with one week skipped and one
// week moved, plus a one-off 2限 and an all-day event.
const timetableICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//classboard//test//EN
BEGIN:VEVENT
UID:period-1
DTSTART:20261005T000000Z
DTEND:20261005T005000Z
RRULE:FREQ=WEEKLY;BYDAY=MO
EXDATE:20261012T000000Z
SUMMARY:1限
LOCATION:Math
END:VEVENT
BEGIN:VEVENT
UID:period-1
RECURRENCE-ID:20261026T000000Z
DTSTART:20261026T003000Z
DTEND:20261026T012000Z
SUMMARY:1限
LOCATION:Math (moved)
END:VEVENT
BEGIN:VEVENT
UID:period-2
DTSTART:20261019T010000Z
DTEND:20261019T015000Z
SUMMARY:2限
DESCRIPTION:English
END:VEVENT
BEGIN:VEVENT
UID:holiday
DTSTART;VALUE=DATE:20261019
DTEND;VALUE=DATE:20261020
SUMMARY:Sports day
END:VEVENT
END:VCALENDAR
`

func icsBody() []byte {
	return []byte(strings.ReplaceAll(timetableICS, "\n", "\r\n"))
}

func TestTodayScheduleRecurringAndOneOff(t *testing.T) {
	loc := tokyo(t)
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, loc)

	s, err := TodaySchedule(icsBody(), now)
	if err != nil {
		t.Fatalf("TodaySchedule: %v", err)
	}
	if s.Date != "2026-10-19" {
		t.Errorf("date = %q", s.Date)
	}
	if len(s.Schedule) != 2 {
		t.Fatalf("periods = %+v, want 2", s.Schedule)
	}

	first, second := s.Schedule[0], s.Schedule[1]
	if first.Name != "1限" || first.Subject != "Math" || first.Start != "09:00" || first.End != "09:50" {
		t.Errorf("first = %+v", first)
	}
	if second.Name != "2限" || second.Subject != "English" || second.Start != "10:00" || second.End != "10:50" {
		t.Errorf("second = %+v", second)
	}
}

func TestTodayScheduleExdate(t *testing.T) {
	loc := tokyo(t)
	now := time.Date(2026, 10, 12, 8, 0, 0, 0, loc)

	_, err := TodaySchedule(icsBody(), now)
	if !errors.Is(err, ErrNoEvents) {
		t.Fatalf("err = %v, want ErrNoEvents", err)
	}
}

func TestTodayScheduleOverride(t *testing.T) {
	loc := tokyo(t)
	now := time.Date(2026, 10, 26, 8, 0, 0, 0, loc)

	s, err := TodaySchedule(icsBody(), now)
	if err != nil {
		t.Fatalf("TodaySchedule: %v", err)
	}
	if len(s.Schedule) != 1 {
		t.Fatalf("periods = %+v", s.Schedule)
	}
	got := s.Schedule[0]
	if got.Start != "09:30" || got.End != "10:20" || got.Subject != "Math (moved)" {
		t.Errorf("override not applied: %+v", got)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse(nil, time.UTC); err == nil {
		t.Fatal("expected error for empty body")
	}
}
