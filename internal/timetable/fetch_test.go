package timetable

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"classboard/internal/config"
)

const daysJSON = `[
  {"date": "2026-10-18", "schedule": [{"name": "1限", "subject": "Music", "start": "09:00", "end": "09:50"}]},
  {"date": "2026-10-19", "schedule": [
    {"name": "1限", "subject": "Math", "start": "09:00", "end": "09:50"},
    {"name": "昼休み", "start": "12:00", "end": "12:45"}
  ]}
]`

func fixedNow() time.Time {
	return time.Date(2026, 10, 19, 9, 30, 0, 0, jst)
}

func newTestFetcher(url string, cacheDir string) *Fetcher {
	return NewFetcher(FetcherOptions{
		URL:      url,
		Format:   config.FormatJSON,
		CacheDir: cacheDir,
		Location: jst,
		Now:      fixedNow,
	})
}

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.RawQuery != "" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchTodayPicksTodaysEntry(t *testing.T) {
	srv := serve(t, http.StatusOK, daysJSON)

	s := newTestFetcher(srv.URL, "").FetchToday(context.Background())
	if s == nil {
		t.Fatal("expected a schedule")
	}
	if s.Date != "2026-10-19" || len(s.Schedule) != 2 {
		t.Fatalf("got %+v", s)
	}
	if s.Schedule[1].Subject != "" {
		t.Errorf("missing subject should default to empty, got %q", s.Schedule[1].Subject)
	}
}

func TestFetchFailuresCollapseToNil(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"remote error", http.StatusOK, `{"error": "x"}`, ErrRemote},
		{"http 500", http.StatusInternalServerError, daysJSON, ErrStatus},
		{"no entry for today", http.StatusOK, `[{"date": "2026-10-18", "schedule": []}]`, ErrNoScheduleToday},
		{"garbage", http.StatusOK, `<html>oops</html>`, ErrPayload},
		{"object without error", http.StatusOK, `{"date": "2026-10-19"}`, ErrPayload},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serve(t, tc.status, tc.body)
			f := newTestFetcher(srv.URL, "")

			if s := f.FetchToday(context.Background()); s != nil {
				t.Errorf("FetchToday = %+v, want nil", s)
			}
			if _, err := f.Fetch(context.Background()); !errors.Is(err, tc.wantErr) {
				t.Errorf("Fetch err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestFetchFalsyErrorFieldIsNotRemoteError(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"error": ""}`)
	_, err := newTestFetcher(srv.URL, "").Fetch(context.Background())
	if !errors.Is(err, ErrPayload) || errors.Is(err, ErrRemote) {
		t.Errorf("err = %v, want payload error", err)
	}
}

func TestFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if s := newTestFetcher(url, "").FetchToday(context.Background()); s != nil {
		t.Errorf("closed server should yield nil, got %+v", s)
	}
}

func TestFetchConditionalRequestUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		switch n {
		case 1:
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte(daysJSON))
		case 2:
			if r.Header.Get("If-None-Match") != `"v1"` {
				t.Errorf("If-None-Match = %q", r.Header.Get("If-None-Match"))
			}
			w.WriteHeader(http.StatusNotModified)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, t.TempDir())

	if s := f.FetchToday(context.Background()); s == nil {
		t.Fatal("first fetch should succeed")
	}
	s := f.FetchToday(context.Background())
	if s == nil || len(s.Schedule) != 2 {
		t.Fatalf("304 should reuse cached body, got %+v", s)
	}
	// A failing status is not papered over with the cache.
	if s := f.FetchToday(context.Background()); s != nil {
		t.Errorf("502 should yield nil even with a cache, got %+v", s)
	}
}

func TestFetchICSFormat(t *testing.T) {
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//t//t//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:a\r\nDTSTART:20261019T000000Z\r\nDTEND:20261019T005000Z\r\nSUMMARY:1限\r\nLOCATION:Math\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
	srv := serve(t, http.StatusOK, body)

	f := NewFetcher(FetcherOptions{URL: srv.URL, Format: config.FormatICS, Location: jst, Now: fixedNow})
	s := f.FetchToday(context.Background())
	if s == nil || len(s.Schedule) != 1 {
		t.Fatalf("got %+v", s)
	}
	if p := s.Schedule[0]; p.Name != "1限" || p.Subject != "Math" || p.Start != "09:00" || p.End != "09:50" {
		t.Errorf("period = %+v", p)
	}

	f.now = func() time.Time { return fixedNow().AddDate(0, 0, 1) }
	if _, err := f.Fetch(context.Background()); !errors.Is(err, ErrNoScheduleToday) {
		t.Errorf("err = %v, want ErrNoScheduleToday", err)
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://script.google.com/macros/s/SECRET/exec")
	if got != "https://script.google.com/...(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
}
