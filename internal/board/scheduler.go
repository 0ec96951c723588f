package board

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"classboard/internal/config"
	appLog "classboard/internal/log"
)

// Job is an extra periodic task run alongside the board jobs (e.g. page
// capture).
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
}

// Scheduler drives a Board from cron specs: tick (clock + countdown),
// refresh (re-fetch) and cycle (display rotation).
type Scheduler struct {
	cron  *cron.Cron
	board *Board
	specs config.ScheduleConfig
	extra []Job
}

func NewScheduler(b *Board, specs config.ScheduleConfig, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{})),
	)
	return &Scheduler{cron: c, board: b, specs: specs}
}

// Add registers an extra job. It must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.extra = append(s.extra, job)
}

// Start runs the startup sequence, registers every job and blocks until ctx
// is canceled. Running jobs are allowed to finish before it returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.register(ctx); err != nil {
		return err
	}

	s.board.Start(ctx)
	s.cron.Start()
	appLog.Info("scheduler started",
		"tick", s.specs.Tick,
		"refresh", s.specs.Refresh,
		"cycle", s.specs.Cycle,
		"extra_jobs", len(s.extra),
	)

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop stops the cron and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) register(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.specs.Tick, s.board.Tick); err != nil {
		return fmt.Errorf("add tick job: %w", err)
	}

	// A fetch that outlives its interval makes the next run a no-op.
	refresh := cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(func() {
		s.board.Refresh(ctx)
	}))
	if _, err := s.cron.AddJob(s.specs.Refresh, refresh); err != nil {
		return fmt.Errorf("add refresh job: %w", err)
	}

	if _, err := s.cron.AddFunc(s.specs.Cycle, s.board.Cycle); err != nil {
		return fmt.Errorf("add cycle job: %w", err)
	}

	for _, job := range s.extra {
		run := job.Run
		if _, err := s.cron.AddFunc(job.Spec, func() { run(ctx) }); err != nil {
			return fmt.Errorf("add %s job: %w", job.Name, err)
		}
	}
	return nil
}

// cronLogger routes robfig/cron's logging into the application logger.
// Routine scheduling chatter goes to DEBUG.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
