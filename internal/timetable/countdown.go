package timetable

import (
	"time"

	"classboard/internal/model"
)

type CountdownState int

const (
	// CountdownFinished: no schedule, or nothing left to start today.
	CountdownFinished CountdownState = iota
	// CountdownPending: the next class starts in Minutes:Seconds.
	CountdownPending
	// CountdownElapsed: the lookup raced past the start boundary.
	CountdownElapsed
)

// Countdown is the time left until the next class starts.
type Countdown struct {
	State   CountdownState
	Minutes int64
	Seconds int64
	Next    *model.FormattedPeriod
}

// ComputeCountdown measures next.Start - now at millisecond precision and
// floors it into whole minutes and remaining whole seconds.
func ComputeCountdown(s *model.RawSchedule, now time.Time) Countdown {
	next := NextClass(s, now)
	if next == nil {
		return Countdown{State: CountdownFinished}
	}

	ms := next.Start.Sub(now).Milliseconds()
	if ms <= 0 {
		return Countdown{State: CountdownElapsed, Next: next}
	}
	return Countdown{
		State:   CountdownPending,
		Minutes: ms / 60000,
		Seconds: (ms % 60000) / 1000,
		Next:    next,
	}
}
