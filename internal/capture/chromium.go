// Package capture snapshots the board page with headless Chromium so the
// display can also be pushed to panels that only take images.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"classboard/internal/convert"
	appLog "classboard/internal/log"
)

const (
	DefaultWidth   = 1304
	DefaultHeight  = 984
	DefaultTimeout = 30 * time.Second

	// readySelector is set by the board page once its regions are filled.
	readySelector = `[data-ready="true"]`
)

// Options defines one capture.
type Options struct {
	// URL of the board page, e.g. "http://127.0.0.1:8080/".
	URL string
	// OutputPath receives the PNG.
	OutputPath string
	// Width/Height of the viewport; zero means the defaults.
	Width  int
	Height int
	// Timeout bounds the whole capture; zero means DefaultTimeout.
	Timeout time.Duration
	// Planes also writes packed e-paper planes next to the PNG.
	Planes bool
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// BoardPNG navigates to the board page, waits for the ready marker and
// writes a screenshot of the viewport to opts.OutputPath.
func BoardPNG(parent context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		// Let the last paint land.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.CaptureScreenshot(&png),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	// Write-then-rename so /preview.png never serves a half-written file.
	tmp := opts.OutputPath + ".tmp"
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	if err := os.Rename(tmp, opts.OutputPath); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

// Job returns a func suitable for the scheduler that captures with opts and
// logs the outcome.
func Job(opts Options) func(ctx context.Context) {
	return func(ctx context.Context) {
		start := time.Now()
		if err := BoardPNG(ctx, opts); err != nil {
			appLog.Error("board capture failed", err, "url", opts.URL)
			return
		}
		appLog.Info("board captured", "path", opts.OutputPath, "elapsed", time.Since(start).Round(time.Millisecond))

		if !opts.Planes {
			return
		}
		blackPath, redPath, err := convert.WritePNGPlanes(opts.OutputPath)
		if err != nil {
			appLog.Error("plane packing failed", err, "path", opts.OutputPath)
			return
		}
		appLog.Debug("planes written", "black", blackPath, "red", redPath)
	}
}
