package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"classboard/internal/battery"
	"classboard/internal/board"
	"classboard/internal/config"
	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/timetable"
	"classboard/internal/view"
)

// Server serves the board page and a small JSON API over the Board state.
type Server struct {
	cfg     *config.Config
	board   *board.Board
	battery *battery.Cache // nil when the gauge is disabled
	mux     *http.ServeMux
}

// NewServer constructs a Server. bat may be nil.
func NewServer(cfg *config.Config, b *board.Board, bat *battery.Cache) *Server {
	s := &Server{
		cfg:     cfg,
		board:   b,
		battery: bat,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped with basic auth if configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handlePage)
	s.mux.HandleFunc("GET /api/board", s.handleBoard)
	s.mux.HandleFunc("GET /api/schedule", s.handleSchedule)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/battery", s.handleBattery)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="classboard", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePage renders the board page: clock, countdown and display area.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	snap := s.board.Snapshot()

	page := view.Page{
		Clock:          snap.Clock,
		Countdown:      snap.Countdown,
		Mode:           snap.Mode.String(),
		RefreshSeconds: 1,
	}
	if snap.HasFrame {
		v := snap.View
		page.View = &v
	}
	if s.battery != nil {
		if st, err := s.battery.Read(r.Context()); err == nil {
			page.Battery = &view.Battery{Percent: st.Percent}
		}
	}

	var buf bytes.Buffer
	if err := view.WritePage(&buf, page); err != nil {
		appLog.Error("render board page failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// boardResponse is the JSON shape of /api/board.
type boardResponse struct {
	Now       time.Time  `json:"now"`
	Clock     string     `json:"clock"`
	Countdown string     `json:"countdown"`
	Mode      string     `json:"mode"`
	View      *view.View `json:"view,omitempty"`
	Loaded    bool       `json:"loaded"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	snap := s.board.Snapshot()
	resp := boardResponse{
		Now:       snap.Now,
		Clock:     snap.Clock,
		Countdown: snap.Countdown,
		Mode:      snap.Mode.String(),
		Loaded:    snap.Schedule != nil,
	}
	if snap.HasFrame {
		v := snap.View
		resp.View = &v
	}
	if !snap.FetchedAt.IsZero() {
		t := snap.FetchedAt
		resp.FetchedAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// scheduleResponse is the JSON shape of /api/schedule.
type scheduleResponse struct {
	Date    string                  `json:"date"`
	Periods []model.FormattedPeriod `json:"periods"`
	Current *model.FormattedPeriod  `json:"current,omitempty"`
	Next    *model.FormattedPeriod  `json:"next,omitempty"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, _ *http.Request) {
	snap := s.board.Snapshot()
	if snap.Schedule == nil {
		writeError(w, http.StatusNotFound, "no schedule for today")
		return
	}
	periods := timetable.FormatTimes(snap.Schedule, snap.Now)
	if periods == nil {
		periods = []model.FormattedPeriod{}
	}
	writeJSON(w, http.StatusOK, scheduleResponse{
		Date:    snap.Schedule.Date,
		Periods: periods,
		Current: timetable.CurrentClass(snap.Schedule, snap.Now),
		Next:    timetable.NextClass(snap.Schedule, snap.Now),
	})
}

// handleRefresh fetches immediately instead of waiting for the next poll.
// The fetch is detached from the request so a client abort cannot cut it
// short; the fetcher has its own timeout.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.board.Refresh(context.WithoutCancel(r.Context())) {
		writeError(w, http.StatusConflict, "refresh already in progress")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"loaded": s.board.Schedule() != nil})
}

func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	if s.battery == nil {
		writeError(w, http.StatusNotFound, "battery gauge disabled")
		return
	}
	st, err := s.battery.Read(r.Context())
	if err != nil {
		appLog.Error("battery read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePreview serves the last capture written by the capture job.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Capture.Enabled {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.cfg.Capture.OutputPath)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
