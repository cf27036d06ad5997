package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"calclient/internal/client"
	"calclient/internal/config"
	"calclient/internal/ics"
	appLog "calclient/internal/log"
	"calclient/internal/metrics"
	"calclient/internal/model"
)

const maxRangeDays = 366

// Executor runs fn on the goroutine that owns the client.
type Executor interface {
	Do(ctx context.Context, fn func(*client.Client)) error
}

// Server exposes the client's state over a small local HTTP API and an ICS
// feed. Every handler reads through the Executor; none touches the client
// directly.
type Server struct {
	cfg     *config.Config
	exec    Executor
	metrics *metrics.Metrics
	mux     *http.ServeMux
	now     func() time.Time
}

func NewServer(cfg *config.Config, exec Executor, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		exec:    exec,
		metrics: m,
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="calclient", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
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
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/day", s.handleDay)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/schedules", s.handleSchedules)
	s.mux.HandleFunc("/api/templates", s.handleTemplates)
	s.mux.HandleFunc("/api/access_levels", s.handleAccessLevels)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/accept", s.handleAccept)
	s.mux.HandleFunc("/calendar.ics", s.handleICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type statusResponse struct {
	LoggedIn    bool               `json:"logged_in"`
	User        *model.User        `json:"user,omitempty"`
	AccessLevel *model.AccessLevel `json:"access_level,omitempty"`
	Pending     int                `json:"pending"`
	LastError   string             `json:"last_error,omitempty"`
	Timezone    string             `json:"timezone"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse
	err := s.exec.Do(r.Context(), func(c *client.Client) {
		resp.LoggedIn = c.LoggedIn()
		if me, ok := c.Me(); ok {
			resp.User = &me
		}
		if lvl, ok := c.AccessLevel(); ok {
			resp.AccessLevel = &lvl
		}
		resp.Pending = c.Pending()
		if err := c.LastError(); err != nil {
			resp.LastError = err.Error()
		}
		resp.Timezone = c.Location().String()
	})
	if s.failed(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type dayResponse struct {
	Date     string        `json:"date"`
	Timezone string        `json:"timezone"`
	Events   []model.Event `json:"events"`
}

// handleDay returns one day of the merged calendar.
//
// GET /api/day?date=2024-03-01 (default: today)
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	var resp dayResponse
	var parseErr error
	err := s.exec.Do(r.Context(), func(c *client.Client) {
		date, err := s.dateParam(r, c.Location())
		if err != nil {
			parseErr = err
			return
		}
		resp = dayResponse{
			Date:     date.String(),
			Timezone: c.Location().String(),
			Events:   c.EventsForDate(date),
		}
	})
	if s.failed(w, err) {
		return
	}
	if parseErr != nil {
		writeError(w, http.StatusBadRequest, parseErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type eventsResponse struct {
	From     string        `json:"from"`
	Days     int           `json:"days"`
	Timezone string        `json:"timezone"`
	Events   []model.Event `json:"events"`
}

// handleEvents returns a range of days.
//
// GET /api/events?from=2024-03-01&days=7
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from, days, events, ok := s.rangeQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		From:     from.date.String(),
		Days:     days,
		Timezone: from.loc.String(),
		Events:   events,
	})
}

// handleICS serves the same range as an iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	_, _, events, ok := s.rangeQuery(w, r)
	if !ok {
		return
	}
	body := ics.Export(events, ics.ExportOptions{Name: "calclient", Stamp: s.now()})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type anchor struct {
	date model.Date
	loc  *time.Location
}

func (s *Server) rangeQuery(w http.ResponseWriter, r *http.Request) (anchor, int, []model.Event, bool) {
	days, err := parseIntDefault(r.URL.Query().Get("days"), s.cfg.HorizonDays)
	if err != nil || days <= 0 || days > maxRangeDays {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 366")
		return anchor{}, 0, nil, false
	}

	var (
		from     anchor
		events   []model.Event
		parseErr error
	)
	err = s.exec.Do(r.Context(), func(c *client.Client) {
		date, err := s.dateParamNamed(r, "from", c.Location())
		if err != nil {
			parseErr = err
			return
		}
		from = anchor{date: date, loc: c.Location()}
		events = c.EventsInRange(date, days)
	})
	if s.failed(w, err) {
		return anchor{}, 0, nil, false
	}
	if parseErr != nil {
		writeError(w, http.StatusBadRequest, parseErr.Error())
		return anchor{}, 0, nil, false
	}
	if events == nil {
		events = []model.Event{}
	}
	return from, days, events, true
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	var out []model.Schedule
	err := s.exec.Do(r.Context(), func(c *client.Client) { out = c.Schedules() })
	if s.failed(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	var out []model.EventTemplate
	err := s.exec.Do(r.Context(), func(c *client.Client) { out = c.EventTemplates() })
	if s.failed(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) handleAccessLevels(w http.ResponseWriter, r *http.Request) {
	var out []model.AccessLevel
	err := s.exec.Do(r.Context(), func(c *client.Client) { out = c.AccessLevels() })
	if s.failed(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

// handleRefresh queues a full reload. POST only.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.signal(w, r, client.Refresh{})
}

// handleAccept turns a phantom into a real event.
//
// POST /api/accept?plan_id=100&date=2024-03-04
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	q := r.URL.Query()
	planID, err := strconv.ParseInt(q.Get("plan_id"), 10, 64)
	if err != nil || planID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid plan_id")
		return
	}
	date, err := model.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.signal(w, r, client.AcceptScheduledEvent{PlanID: planID, Date: date})
}

func (s *Server) signal(w http.ResponseWriter, r *http.Request, sig client.Signal) {
	var handleErr error
	err := s.exec.Do(r.Context(), func(c *client.Client) { handleErr = c.Handle(sig) })
	if s.failed(w, err) {
		return
	}
	if errors.Is(handleErr, client.ErrNotLoggedIn) {
		writeError(w, http.StatusConflict, handleErr.Error())
		return
	}
	if handleErr != nil {
		appLog.Error("signal failed", handleErr)
		writeError(w, http.StatusInternalServerError, "signal failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func (s *Server) dateParam(r *http.Request, loc *time.Location) (model.Date, error) {
	return s.dateParamNamed(r, "date", loc)
}

func (s *Server) dateParamNamed(r *http.Request, name string, loc *time.Location) (model.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return model.DateOf(s.now(), loc), nil
	}
	return model.ParseDate(v)
}

// failed writes a 503 if the executor could not run the request.
func (s *Server) failed(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	appLog.Error("client unavailable", err)
	writeError(w, http.StatusServiceUnavailable, "client unavailable")
	return true
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// parseIntDefault returns def for an empty string.
func parseIntDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
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
