// Package board owns the display state (last fetched schedule, display
// mode, clock and countdown text) and the periodic jobs that update it.
package board

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/timetable"
	"classboard/internal/view"
)

// ScheduleSource returns today's schedule, or nil when none is available.
type ScheduleSource interface {
	FetchToday(ctx context.Context) *model.RawSchedule
}

// Snapshot is a consistent copy of the board state at one instant.
type Snapshot struct {
	Now       time.Time
	Clock     string
	Countdown string
	Mode      model.Mode
	HasFrame  bool
	View      view.View
	Schedule  *model.RawSchedule
	FetchedAt time.Time
}

// Board is the application state. Jobs run on separate goroutines, so every
// field is guarded by mu; the fetch itself runs outside the lock.
type Board struct {
	source ScheduleSource
	now    func() time.Time

	refreshing atomic.Bool

	mu        sync.Mutex
	schedule  *model.RawSchedule
	fetchedAt time.Time
	shown     model.Mode
	next      model.Mode
	hasFrame  bool
	clock     string
	countdown string
}

// New builds a Board. now may be nil for time.Now; callers usually pass a
// func that applies the display timezone.
func New(source ScheduleSource, now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	return &Board{
		source: source,
		now:    now,
		next:   model.ModeDay,
	}
}

// Refresh fetches the schedule, replaces the current one wholesale (nil
// included) and recomputes the countdown. It reports false when skipped
// because another refresh is still in flight. If ctx is canceled during
// the fetch the previous schedule is kept.
func (b *Board) Refresh(ctx context.Context) bool {
	if !b.refreshing.CompareAndSwap(false, true) {
		appLog.Warn("refresh skipped; previous fetch still running")
		return false
	}
	defer b.refreshing.Store(false)

	s := b.source.FetchToday(ctx)
	if err := ctx.Err(); err != nil {
		appLog.Warn("refresh abandoned; keeping previous schedule", "err", err)
		return true
	}

	b.mu.Lock()
	b.schedule = s
	b.fetchedAt = b.now()
	b.mu.Unlock()

	b.Tick()
	return true
}

// Tick recomputes the clock and countdown text.
func (b *Board) Tick() {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = view.ClockText(now)
	b.countdown = view.CountdownText(timetable.ComputeCountdown(b.schedule, now))
}

// Cycle shows the next display mode. Without a schedule it does nothing and
// the mode does not advance.
func (b *Board) Cycle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.schedule == nil {
		return
	}
	b.shown = b.next
	b.hasFrame = true
	b.next = b.next.Next()
	appLog.Debug("display cycled", "mode", b.shown.String())
}

// Start performs the startup sequence: one fetch, then the first frame
// immediately.
func (b *Board) Start(ctx context.Context) {
	b.Refresh(ctx)
	b.Cycle()
}

// Schedule returns the last fetched schedule (nil if none).
func (b *Board) Schedule() *model.RawSchedule {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.schedule
}

// Snapshot renders the current frame against the current time. The
// frame's view is always built from the latest schedule, so a failed fetch
// turns it into placeholders.
func (b *Board) Snapshot() Snapshot {
	now := b.now()

	b.mu.Lock()
	snap := Snapshot{
		Now:       now,
		Clock:     b.clock,
		Countdown: b.countdown,
		Mode:      b.shown,
		HasFrame:  b.hasFrame,
		Schedule:  b.schedule,
		FetchedAt: b.fetchedAt,
	}
	b.mu.Unlock()

	if snap.HasFrame {
		snap.View = view.Render(snap.Mode, snap.Schedule, now)
	}
	return snap
}
