// Package view turns a schedule and an instant into display view models and
// renders them through html/template, so fetched text is always escaped.
package view

import (
	"fmt"
	"strings"
	"time"

	"classboard/internal/model"
	"classboard/internal/timetable"
)

const (
	TitleDay       = "1日の予定"
	TitleCurrent   = "現在の時間"
	TitleNext      = "次の予定"
	TextOffClass   = "授業外"
	TextDayEnded   = "本日の授業は終了しました"
	SubjectMissing = "ー"
)

// Row is one line of the day table.
type Row struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Time    string `json:"time"`
}

// View is what the display area shows for one mode.
type View struct {
	Mode  model.Mode `json:"mode"`
	Title string     `json:"title"`
	// Class is the CSS class of the heading and body ("" for the day table
	// and for the day-ended heading).
	Class string `json:"class,omitempty"`

	// Day mode.
	Headers []string `json:"headers,omitempty"`
	Rows    []Row    `json:"rows,omitempty"`

	// Current/next mode. Line is empty when Placeholder is used.
	Line        string `json:"line,omitempty"`
	Range       string `json:"range,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Text flattens v for logs and terminals.
func (v View) Text() string {
	var b strings.Builder
	b.WriteString(v.Title)
	switch {
	case len(v.Headers) > 0:
		for _, r := range v.Rows {
			fmt.Fprintf(&b, "\n%s\t%s\t%s", r.Name, r.Subject, r.Time)
		}
	case v.Line != "":
		fmt.Fprintf(&b, "\n%s (%s)", v.Line, v.Range)
	case v.Placeholder != "":
		b.WriteString("\n" + v.Placeholder)
	}
	return b.String()
}

// DayView lists every period of s.
func DayView(s *model.RawSchedule, now time.Time) View {
	v := View{
		Mode:    model.ModeDay,
		Title:   TitleDay,
		Headers: []string{"科目", "教科", "時間"},
	}
	for _, p := range timetable.FormatTimes(s, now) {
		subject := p.Subject
		if subject == "" {
			subject = SubjectMissing
		}
		v.Rows = append(v.Rows, Row{
			Name:    p.Name,
			Subject: subject,
			Time:    timeRange(p),
		})
	}
	return v
}

// CurrentView shows the period in progress, or the off-class placeholder.
func CurrentView(s *model.RawSchedule, now time.Time) View {
	v := View{Mode: model.ModeCurrent, Title: TitleCurrent, Class: "currentClass"}
	p := timetable.CurrentClass(s, now)
	if p == nil {
		v.Placeholder = TextOffClass
		return v
	}
	v.Line = p.Name + " - " + p.Subject
	v.Range = timeRange(*p)
	return v
}

// NextView shows the next period to start, or the day-ended heading.
func NextView(s *model.RawSchedule, now time.Time) View {
	p := timetable.NextClass(s, now)
	if p == nil {
		return View{Mode: model.ModeNext, Title: TextDayEnded}
	}
	return View{
		Mode:  model.ModeNext,
		Title: TitleNext,
		Class: "nextClass",
		Line:  p.Name + " - " + p.Subject,
		Range: timeRange(*p),
	}
}

// Render picks the view for mode.
func Render(mode model.Mode, s *model.RawSchedule, now time.Time) View {
	switch mode {
	case model.ModeCurrent:
		return CurrentView(s, now)
	case model.ModeNext:
		return NextView(s, now)
	default:
		return DayView(s, now)
	}
}

// ClockText is the live clock line.
func ClockText(now time.Time) string {
	return "現在時刻: " + now.Format(timetable.TimeOfDayLayout)
}

// CountdownText renders c; an elapsed countdown clears the region.
func CountdownText(c timetable.Countdown) string {
	switch c.State {
	case timetable.CountdownPending:
		return fmt.Sprintf("次の開始まで: %d分%d秒", c.Minutes, c.Seconds)
	case timetable.CountdownElapsed:
		return ""
	default:
		return TextDayEnded
	}
}

func timeRange(p model.FormattedPeriod) string {
	return p.Start.Format(timetable.TimeOfDayLayout) + " ~ " + p.End.Format(timetable.TimeOfDayLayout)
}
