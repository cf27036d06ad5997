package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calclient/internal/client"
	"calclient/internal/config"
	"calclient/internal/connector"
	"calclient/internal/ics"
	"calclient/internal/metrics"
	"calclient/internal/model"
	"calclient/internal/runner"
)

// direct runs jobs inline; tests drive the client from one goroutine.
type direct struct{ c *client.Client }

func (d direct) Do(_ context.Context, fn func(*client.Client)) error {
	fn(d.c)
	return nil
}

type stopped struct{}

func (stopped) Do(context.Context, func(*client.Client)) error { return runner.ErrStopped }

type backend struct {
	mu       sync.Mutex
	accepted []string
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{}
	reply := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, body) }
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", reply(`{"user_id":1,"key":"c2VjcmV0"}`))
	mux.HandleFunc("/user/me", reply(`{"id":1,"name":"Ada","email":"ada@example.com","access_level":0}`))
	mux.HandleFunc("/access_levels", reply(`[{"id":1,"level":0,"name":"public","can_edit":false}]`))
	mux.HandleFunc("/event_templates", reply(`[{"id":10,"name":"Workout","description":"","duration":3600,"access_level":0}]`))
	mux.HandleFunc("/schedules", reply(`[{"id":1,"template_id":10,"name":"gym","access_level":0,"plans":[{"id":100,"weekday":1,"time":32400}]}]`))
	mux.HandleFunc("/events", reply(`[{"id":7,"name":"Lunch","description":"","start":"2024-03-01T11:00:00Z","end":"2024-03-01T12:00:00Z","access_level":0,"visibility":"show"}]`))
	mux.HandleFunc("/schedule/accept", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.accepted = append(b.accepted, string(raw))
		b.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":8,"name":"Workout","description":"","start":"2024-03-04T09:00:00Z","end":"2024-03-04T10:00:00Z","access_level":0,"visibility":"show","plan_id":100}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func settle(t *testing.T, c *client.Client) {
	t.Helper()
	for i := 0; i < 50 && c.Pending() > 0; i++ {
		c.Wait()
		c.Tick()
	}
	require.Zero(t, c.Pending())
}

func newClient(t *testing.T, baseURL string, m *metrics.Metrics) *client.Client {
	t.Helper()
	c, err := client.New(client.Options{
		Connector: connector.Options{BaseURL: baseURL, Metrics: m},
		Location:  time.UTC,
	})
	require.NoError(t, err)
	return c
}

func loggedInServer(t *testing.T, cfg *config.Config) (*Server, *client.Client, *backend) {
	t.Helper()
	b, srv := newBackend(t)
	m := metrics.New()
	c := newClient(t, srv.URL, m)
	require.NoError(t, c.Handle(client.Login{Email: "ada@example.com", Password: "pw"}))
	settle(t, c)
	require.True(t, c.LoggedIn())

	s := NewServer(cfg, direct{c}, m)
	s.now = func() time.Time { return time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC) }
	return s, c, b
}

func do(t *testing.T, h http.Handler, method, target string, auth ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBasicAuthSparesHealth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	s, _, _ := loggedInServer(t, cfg)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)
	rec := do(t, h, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", "admin", "nope").Code)

	rec = do(t, h, http.MethodGet, "/api/status", "admin", "pw")
	require.Equal(t, http.StatusOK, rec.Code)
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.LoggedIn)
	require.NotNil(t, st.User)
	assert.Equal(t, "Ada", st.User.Name)
	require.NotNil(t, st.AccessLevel)
	assert.Equal(t, "public", st.AccessLevel.Name)
	assert.Equal(t, "UTC", st.Timezone)
}

func TestDay(t *testing.T) {
	s, _, _ := loggedInServer(t, config.DefaultConfig())
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/day")
	require.Equal(t, http.StatusOK, rec.Code)
	var day dayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &day))
	assert.Equal(t, "2024-03-04", day.Date, "defaults to today")
	require.Len(t, day.Events, 1)
	assert.Equal(t, model.PhantomID, day.Events[0].ID)
	assert.Equal(t, model.HideAll, day.Events[0].Visibility)

	rec = do(t, h, http.MethodGet, "/api/day?date=2024-03-01")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &day))
	require.Len(t, day.Events, 1)
	assert.Equal(t, "Lunch", day.Events[0].Name)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/day?date=yesterday").Code)
}

func TestEventsRange(t *testing.T) {
	s, _, _ := loggedInServer(t, config.DefaultConfig())
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/events?from=2024-03-01&days=7")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, int64(7), resp.Events[0].ID)
	assert.True(t, resp.Events[1].IsPhantom())

	rec = do(t, h, http.MethodGet, "/api/events?from=2024-03-05&days=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events":[]`)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/events?days=0").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/events?days=9999").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/events?days=abc").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/calendar.ics?days=7x").Code)
}

func TestCalendarFeed(t *testing.T) {
	s, _, _ := loggedInServer(t, config.DefaultConfig())

	rec := do(t, s.Handler(), http.MethodGet, "/calendar.ics?from=2024-03-01&days=7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Lunch")
	assert.Contains(t, body, ics.PhantomProperty+":TRUE")
}

func TestListings(t *testing.T) {
	s, _, _ := loggedInServer(t, config.DefaultConfig())
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/schedules")
	require.Equal(t, http.StatusOK, rec.Code)
	var schedules []model.Schedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schedules))
	require.Len(t, schedules, 1)
	assert.Equal(t, time.Monday, schedules[0].Plans[0].Weekday)

	rec = do(t, h, http.MethodGet, "/api/templates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Workout")

	rec = do(t, h, http.MethodGet, "/api/access_levels")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "public")
}

func TestAcceptQueuesSignal(t *testing.T) {
	s, c, b := loggedInServer(t, config.DefaultConfig())
	h := s.Handler()

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/accept?plan_id=100&date=2024-03-04").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/accept?plan_id=x&date=2024-03-04").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/accept?plan_id=100&date=x").Code)

	rec := do(t, h, http.MethodPost, "/api/accept?plan_id=100&date=2024-03-04")
	require.Equal(t, http.StatusAccepted, rec.Code)
	settle(t, c)

	b.mu.Lock()
	assert.Equal(t, []string{`{"plan_id":100,"date":"2024-03-04"}`}, b.accepted)
	b.mu.Unlock()

	monday := model.Date{Year: 2024, Month: time.March, Day: 4}
	day := c.EventsForDate(monday)
	require.Len(t, day, 1)
	assert.Equal(t, int64(8), day[0].ID, "accepted event replaces the phantom")
}

func TestRefresh(t *testing.T) {
	s, _, _ := loggedInServer(t, config.DefaultConfig())
	h := s.Handler()
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/refresh").Code)
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/refresh").Code)

	_, srv := newBackend(t)
	out := NewServer(config.DefaultConfig(), direct{newClient(t, srv.URL, nil)}, nil)
	assert.Equal(t, http.StatusConflict, do(t, out.Handler(), http.MethodPost, "/api/refresh").Code)
}

func TestStoppedClient(t *testing.T) {
	s := NewServer(config.DefaultConfig(), stopped{}, nil)
	h := s.Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/status").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/events").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics").Code, "metrics disabled")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := loggedInServer(t, config.DefaultConfig())
	rec := do(t, s.Handler(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calclient_requests_dispatched_total")
}
