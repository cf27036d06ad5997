// Package client is the single context object behind the calendar UI.
//
// A Client owns the dispatcher, the response registry, the completion
// tracker, the entity tables and the day view. All of it belongs to one
// goroutine: the caller must invoke Handle, Tick and every accessor from
// that goroutine only. Network exchanges run elsewhere and come back through
// the dispatcher's channel, which Tick drains.
package client

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"calclient/internal/api"
	"calclient/internal/connector"
	appLog "calclient/internal/log"
	"calclient/internal/model"
	"calclient/internal/table"
	"calclient/internal/tracker"
	"calclient/internal/view"
)

var (
	// ErrNotLoggedIn is returned by Handle for signals that need a session.
	ErrNotLoggedIn = errors.New("client: not logged in")
	// ErrPhantomEvent is returned when a signal addresses a synthesized event.
	ErrPhantomEvent = errors.New("client: phantom events cannot be modified")
)

// CredentialStore persists the login blob across restarts.
type CredentialStore interface {
	Load() (*model.Credential, error)
	Save(c *model.Credential) error
	Clear() error
}

// BadResponseError is a typed 4xx answer the server gave to a request.
type BadResponseError struct {
	ID     api.RequestID
	Status int
	Reason string
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("client: request %d rejected (status %d): %s", e.ID, e.Status, e.Reason)
}

type Options struct {
	Connector connector.Options
	// Location is the zone used to bucket events into days.
	Location *time.Location
	Store    CredentialStore
	// OnError receives transport, decode and unexpected-status failures.
	// Nil logs them.
	OnError func(error)
}

type Client struct {
	dispatcher *connector.Dispatcher
	registry   *connector.Registry
	tracker    *tracker.Tracker
	view       *view.Cache
	store      CredentialStore
	onError    func(error)

	events    *table.Table[int64, model.Event]
	schedules *table.Table[int64, model.Schedule]
	templates *table.Table[int64, model.EventTemplate]
	levels    *table.Table[int64, model.AccessLevel]
	me        *model.User

	// Mutations for requests issued before staleBefore belong to an
	// earlier session and are dropped.
	staleBefore api.RequestID
	lastErr     error
}

func New(opts Options) (*Client, error) {
	d, err := connector.NewDispatcher(opts.Connector)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	c := &Client{
		dispatcher: d,
		store:      opts.Store,
		onError:    opts.OnError,
		events:     table.New[int64, model.Event](),
		schedules:  table.New[int64, model.Schedule](),
		templates:  table.New[int64, model.EventTemplate](),
		levels:     table.New[int64, model.AccessLevel](),
	}
	if c.onError == nil {
		c.onError = func(err error) {
			appLog.Error("request failed", err)
		}
	}
	c.registry = connector.NewRegistry(d.Results(), c.report)
	c.tracker = tracker.New(c.registry, opts.Connector.Metrics)
	c.view = view.New(source{c}, opts.Location, opts.Connector.Metrics)
	return c, nil
}

func (c *Client) report(err error) {
	c.lastErr = err
	c.onError(err)
}

// Tick runs one scheduling cycle: staged mutations from the previous tick
// are applied, completed requests are staged for the next tick, and newly
// arrived results are drained from the network channel.
func (c *Client) Tick() {
	c.tracker.Tick(mutator{c})
	c.registry.Drain()
}

// Pending reports requests that have not been applied yet.
func (c *Client) Pending() int {
	return c.tracker.Pending() + c.tracker.Staged()
}

// Wait blocks until every in-flight exchange has delivered its result to the
// channel. It does not apply anything.
func (c *Client) Wait() {
	c.dispatcher.Wait()
}

// Close aborts in-flight exchanges and waits for their workers. Results
// that have not been drained are dropped. Call it once the loop has stopped.
func (c *Client) Close() {
	c.dispatcher.Close()
}

// Resume attempts a silent re-login with the stored credential. It reports
// whether a request was sent.
func (c *Client) Resume() bool {
	if c.store == nil {
		return false
	}
	cred, err := c.store.Load()
	if err != nil {
		appLog.Error("credential load failed", err)
		return false
	}
	if !cred.Valid() {
		return false
	}
	c.dispatcher.SetCredential(cred)
	if _, err := send(c, api.GetMe, api.NoQuery{}, api.NoBody{}, api.SessionCheck{}); err != nil {
		appLog.Error("resume failed", err)
		return false
	}
	appLog.Info("resuming session", "user_id", cred.UserID)
	return true
}

// send dispatches one descriptor call and tracks it.
func send[Q api.Query, B any, R, E api.Response](c *Client, d api.Descriptor[Q, B, R, E], q Q, b B, info api.Info) (api.RequestID, error) {
	if d.Auth != api.AuthNone && !c.dispatcher.HasCredential() {
		return 0, ErrNotLoggedIn
	}
	id, decode, err := api.Call(c.dispatcher, d, q, b)
	if err != nil {
		return 0, err
	}
	c.tracker.Track(id, info, decode)
	return id, nil
}

func (c *Client) loadAll() error {
	return errors.Join(
		discard(send(c, api.LoadAccessLevels, api.NoQuery{}, api.NoBody{}, api.NoInfo{})),
		discard(send(c, api.LoadTemplates, api.NoQuery{}, api.NoBody{}, api.NoInfo{})),
		discard(send(c, api.LoadSchedules, api.NoQuery{}, api.NoBody{}, api.NoInfo{})),
		discard(send(c, api.LoadEvents, api.NoQuery{}, api.NoBody{}, api.NoInfo{})),
	)
}

func discard(_ api.RequestID, err error) error {
	return err
}

// resetLocal empties every table and the view.
func (c *Client) resetLocal() {
	c.events.Clear()
	c.schedules.Clear()
	c.templates.Clear()
	c.levels.Clear()
	c.me = nil
	c.view.InvalidateAll()
}

func (c *Client) callerLevel() int32 {
	if c.me == nil {
		return 0
	}
	return c.me.AccessLevel
}

// EventsForDate returns the day's events, redacted for the caller and merged
// with schedule phantoms, sorted by start. The slice must not be modified.
func (c *Client) EventsForDate(d model.Date) []model.Event {
	return c.view.Events(d)
}

// EventsInRange returns the events of n days starting at from.
func (c *Client) EventsInRange(from model.Date, n int) []model.Event {
	return c.view.Range(from, n)
}

func (c *Client) Schedules() []model.Schedule {
	return slices.Clone(c.schedules.All())
}

func (c *Client) EventTemplates() []model.EventTemplate {
	return slices.Clone(c.templates.All())
}

func (c *Client) AccessLevels() []model.AccessLevel {
	return slices.Clone(c.levels.All())
}

// AccessLevel returns the record describing the caller's current level.
func (c *Client) AccessLevel() (model.AccessLevel, bool) {
	if c.me == nil {
		return model.AccessLevel{}, false
	}
	for _, l := range c.levels.All() {
		if l.Level == c.me.AccessLevel {
			return l, true
		}
	}
	return model.AccessLevel{}, false
}

func (c *Client) Me() (model.User, bool) {
	if c.me == nil {
		return model.User{}, false
	}
	return *c.me, true
}

// LoggedIn reports whether a session is established.
func (c *Client) LoggedIn() bool {
	return c.dispatcher.HasCredential() && c.me != nil
}

// LastError is the most recent failure or rejection, for display.
func (c *Client) LastError() error {
	return c.lastErr
}

// Location is the zone days are bucketed in.
func (c *Client) Location() *time.Location {
	return c.view.Location()
}

// source adapts the client tables to view.Source.
type source struct{ c *Client }

func (s source) RealEvents() []model.Event      { return s.c.events.All() }
func (s source) ScheduleList() []model.Schedule { return s.c.schedules.All() }
func (s source) CallerLevel() int32             { return s.c.callerLevel() }
func (s source) Template(id int64) (model.EventTemplate, bool) {
	return s.c.templates.Get(id)
}
