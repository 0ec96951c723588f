package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"classboard/internal/battery"
	"classboard/internal/board"
	"classboard/internal/capture"
	"classboard/internal/config"
	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/timetable"
	"classboard/internal/view"
	"classboard/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	level := appLog.ParseLevel(conf.LogLevel)
	if flags.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)
	appLog.Info("classboard starting", "version", version)

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"format", conf.Source.Format,
		"refresh", conf.Schedule.Refresh,
		"cycle", conf.Schedule.Cycle,
		"tick", conf.Schedule.Tick,
		"capture", conf.Capture.Enabled,
		"battery", conf.Battery.Enabled,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc := conf.Location()
	now := func() time.Time { return time.Now().In(loc) }
	fetcher := timetable.NewFetcherFromConfig(conf)

	if flags.once {
		printOnce(ctx, os.Stdout, fetcher, now())
		return
	}

	b := board.New(fetcher, now)

	var bat *battery.Cache
	if conf.Battery.Enabled {
		var reader battery.Reader
		if conf.Battery.Mock {
			reader = battery.NewMockReader()
		} else {
			reader = battery.DefaultReader()
		}
		bat = battery.NewCache(reader, 30*time.Second)
	}

	sched := board.NewScheduler(b, conf.Schedule, loc)
	if conf.Capture.Enabled {
		sched.Add(board.Job{
			Name: "capture",
			Spec: conf.Capture.Refresh,
			Run: capture.Job(capture.Options{
				URL:        pageURL(conf),
				OutputPath: conf.Capture.OutputPath,
				Width:      conf.Capture.Width,
				Height:     conf.Capture.Height,
				Planes:     conf.Capture.Planes,
			}),
		})
	}

	srv := web.NewServer(conf, b, bat)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Start(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil {
		appLog.Error("classboard stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("classboard exiting")
}

// printOnce fetches once and prints every region to w.
func printOnce(ctx context.Context, w io.Writer, f *timetable.Fetcher, now time.Time) {
	s := f.FetchToday(ctx)
	fmt.Fprintln(w, view.ClockText(now))
	fmt.Fprintln(w, view.CountdownText(timetable.ComputeCountdown(s, now)))
	for _, mode := range []model.Mode{model.ModeDay, model.ModeCurrent, model.ModeNext} {
		fmt.Fprintln(w)
		fmt.Fprintln(w, view.Render(mode, s, now).Text())
	}
}

// pageURL is the address the capture job loads. Wildcard listen addresses
// are reached over loopback.
func pageURL(conf *config.Config) string {
	addr := conf.Listen
	switch {
	case strings.HasPrefix(addr, ":"):
		addr = "127.0.0.1" + addr
	case strings.HasPrefix(addr, "0.0.0.0:"):
		addr = "127.0.0.1" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	u := url.URL{Scheme: "http", Host: addr, Path: "/"}
	if a := conf.BasicAuth; a != nil && a.Username != "" && a.Password != "" {
		u.User = url.UserPassword(a.Username, a.Password)
	}
	return u.String()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/classboard/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch once, print every display region and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging (logs raw responses)")

	flag.Parse()

	return cfg
}
