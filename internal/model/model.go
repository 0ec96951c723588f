package model

import "time"

// RawSchedule is one calendar day's timetable as delivered by the remote
// endpoint.
type RawSchedule struct {
	Date     string      `json:"date"` // YYYY-MM-DD
	Schedule []RawPeriod `json:"schedule"`
}

// RawPeriod is a single class period with time-of-day strings ("HH:MM").
// Source order is assumed to be chronological.
type RawPeriod struct {
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// FormattedPeriod is a RawPeriod resolved to absolute timestamps on the
// date it was formatted.
type FormattedPeriod struct {
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Mode selects which view the display area shows.
type Mode int

const (
	ModeDay Mode = iota
	ModeCurrent
	ModeNext

	modeCount = 3
)

// Next returns the mode after m, wrapping around.
func (m Mode) Next() Mode {
	return (m + 1) % modeCount
}

func (m Mode) String() string {
	switch m {
	case ModeDay:
		return "day"
	case ModeCurrent:
		return "current"
	case ModeNext:
		return "next"
	default:
		return "unknown"
	}
}
