package timetable

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"classboard/internal/config"
	"classboard/internal/ics"
	appLog "classboard/internal/log"
	"classboard/internal/model"
)

// Failure categories. FetchToday collapses all of them into a nil schedule;
// they exist so the log line says which one happened.
var (
	ErrStatus          = errors.New("timetable: non-OK HTTP status")
	ErrPayload         = errors.New("timetable: unexpected payload")
	ErrRemote          = errors.New("timetable: remote reported an error")
	ErrNoScheduleToday = errors.New("timetable: no schedule for today")
)

// maxLoggedBody bounds how much of a response goes into the debug log.
const maxLoggedBody = 2048

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	URL      string
	Format   string // config.FormatJSON or config.FormatICS
	Timeout  time.Duration
	CacheDir string // empty disables conditional requests
	Location *time.Location
	Now      func() time.Time
	Client   *http.Client
}

// Fetcher performs the single GET against the timetable endpoint and picks
// today's entry.
type Fetcher struct {
	client   *http.Client
	url      string
	format   string
	cacheDir string
	loc      *time.Location
	now      func() time.Time
}

// cacheEntry holds HTTP validators for the last 200 response.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	format := opts.Format
	if format == "" {
		format = config.FormatJSON
	}
	return &Fetcher{
		client:   client,
		url:      opts.URL,
		format:   format,
		cacheDir: opts.CacheDir,
		loc:      loc,
		now:      now,
	}
}

// NewFetcherFromConfig wires a Fetcher from the application config.
func NewFetcherFromConfig(cfg *config.Config) *Fetcher {
	return NewFetcher(FetcherOptions{
		URL:      cfg.Source.URL,
		Format:   cfg.Source.Format,
		Timeout:  cfg.FetchTimeout(),
		CacheDir: cfg.Source.CacheDir,
		Location: cfg.Location(),
	})
}

// FetchToday returns today's schedule or nil. It never returns an error:
// transport failures, bad payloads, remote errors and a missing entry for
// today are all logged and reported as "no schedule".
func (f *Fetcher) FetchToday(ctx context.Context) *model.RawSchedule {
	s, err := f.Fetch(ctx)
	if err != nil {
		appLog.Error("timetable fetch failed", err, "url", redactURL(f.url), "format", f.format)
		return nil
	}
	appLog.Info("timetable fetched", "date", s.Date, "periods", len(s.Schedule))
	return s
}

// Fetch is FetchToday with the failure reason kept.
func (f *Fetcher) Fetch(ctx context.Context) (*model.RawSchedule, error) {
	if f.url == "" {
		return nil, errors.New("timetable: endpoint URL is empty")
	}

	body, err := f.get(ctx)
	if err != nil {
		return nil, err
	}
	appLog.Debug("timetable response", "bytes", len(body), "body", truncate(body, maxLoggedBody))

	now := f.now().In(f.loc)
	if f.format == config.FormatICS {
		s, err := ics.TodaySchedule(body, now)
		if errors.Is(err, ics.ErrNoEvents) {
			return nil, fmt.Errorf("%w: %s", ErrNoScheduleToday, Today(now))
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		return s, nil
	}
	return pickToday(body, Today(now))
}

// pickToday decodes the JSON payload (a list of days, or an object with an
// "error" field) and returns the first day whose date equals today.
func pickToday(body []byte, today string) (*model.RawSchedule, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		if msg, ok := remoteError(obj["error"]); ok {
			return nil, fmt.Errorf("%w: %s", ErrRemote, msg)
		}
		return nil, fmt.Errorf("%w: expected a list of days", ErrPayload)
	}

	var days []model.RawSchedule
	if err := json.Unmarshal(trimmed, &days); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	for i := range days {
		if days[i].Date == today {
			return &days[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoScheduleToday, today)
}

// remoteError reports whether raw holds a truthy error value.
func remoteError(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw), true
	}
	switch e := v.(type) {
	case nil:
		return "", false
	case bool:
		return "true", e
	case string:
		return e, e != ""
	case float64:
		return fmt.Sprint(e), e != 0
	default:
		return string(raw), true
	}
}

// get issues the GET, sending cached validators when a cache dir is set.
// A 304 reuses the cached body; any other non-2xx status is an error even
// if a cached body exists.
func (f *Fetcher) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}

	cachePath := f.cachePath()
	var cachedBody []byte
	if cachePath != "" {
		if meta, err := loadCacheMeta(cachePath); err == nil && meta.URL == f.url {
			cachedBody, _ = os.ReadFile(filepath.Join(cachePath, "body"))
			if len(cachedBody) > 0 {
				if meta.ETag != "" {
					req.Header.Set("If-None-Match", meta.ETag)
				}
				if meta.LastModified != "" {
					req.Header.Set("If-Modified-Since", meta.LastModified)
				}
			}
		}
	}

	appLog.Debug("timetable fetch start", "url", redactURL(f.url))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, fmt.Errorf("%w: 304 without a cached body", ErrStatus)
		}
		appLog.Debug("timetable not modified; using cached body", "url", redactURL(f.url))
		return cachedBody, nil

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		meta := cacheEntry{
			URL:          f.url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if meta.ETag != "" || meta.LastModified != "" {
			if err := saveCache(cachePath, meta, body); err != nil {
				appLog.Error("timetable cache save failed", err, "dir", cachePath)
			}
		}
	}
	return body, nil
}

func (f *Fetcher) cachePath() string {
	if f.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(f.url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return err
	}
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host only; deployment URLs embed secrets in
// the path.
func redactURL(u string) string {
	const suffix = "/...(redacted)"
	i := strings.Index(u, "://")
	if i < 0 {
		return "...(redacted)"
	}
	j := i + 3
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + suffix
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
