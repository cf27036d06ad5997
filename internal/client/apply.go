package client

import (
	"errors"
	"fmt"

	"calclient/internal/api"
	"calclient/internal/connector"
	appLog "calclient/internal/log"
	"calclient/internal/model"
	"calclient/internal/tracker"
)

// mutator feeds staged mutations into the client. It keeps Apply off the
// Client's public surface.
type mutator struct{ c *Client }

func (m mutator) Apply(mu tracker.Mutation) {
	m.c.apply(mu)
}

func (c *Client) apply(m tracker.Mutation) {
	if m.ID < c.staleBefore {
		appLog.Debug("dropping response from earlier session", "request_id", m.ID, "outcome", m.Outcome.Kind())
		return
	}
	o := m.Outcome
	switch o.Kind() {
	case api.OutcomeFailed:
		c.applyFailure(m)
	case api.OutcomeBad:
		c.applyBad(m)
	default:
		c.applyOK(m)
	}
}

func (c *Client) applyFailure(m tracker.Mutation) {
	// Transport errors were reported when drained.
	var te *connector.TransportError
	if errors.As(m.Outcome.Err, &te) {
		c.lastErr = te
		return
	}
	c.report(m.Outcome.Err)
}

func (c *Client) applyOK(m tracker.Mutation) {
	switch v := m.Outcome.Value.(type) {
	case api.Session:
		c.startSession(&model.Credential{UserID: v.UserID, Key: v.Key})

	case api.Me:
		user := v.User
		c.me = &user
		c.view.InvalidateAll()
		switch info := m.Info.(type) {
		case api.LevelRef:
			appLog.Info("access level changed", "requested", info.Level, "current", user.AccessLevel)
		default:
			appLog.Info("logged in", "user_id", user.ID)
			if err := c.loadAll(); err != nil {
				c.report(err)
			}
		}

	case api.Events:
		c.events.ReplaceAll(v)
		c.view.InvalidateAll()

	case api.EventRecord:
		c.putEvent(v.Event)

	case api.Schedules:
		c.schedules.ReplaceAll(v)
		c.view.InvalidateAll()

	case api.ScheduleRecord:
		c.schedules.Upsert(v.Schedule)
		c.view.InvalidateAll()

	case api.Templates:
		c.templates.ReplaceAll(v)
		c.view.InvalidateAll()

	case api.TemplateRecord:
		c.templates.Upsert(v.EventTemplate)
		c.view.InvalidateAll()

	case api.AccessLevels:
		c.levels.ReplaceAll(v)
		c.view.InvalidateAll()

	case api.Deleted:
		c.evict(m.Info)

	default:
		appLog.Warn("unexpected response", "request_id", m.ID, "type", fmt.Sprintf("%T", v))
	}
}

func (c *Client) applyBad(m tracker.Mutation) {
	o := m.Outcome
	switch v := o.Value.(type) {
	case api.AuthError:
		c.lastErr = &BadResponseError{ID: m.ID, Status: o.Status, Reason: v.Reason}
		if _, check := m.Info.(api.SessionCheck); check && c.me == nil && c.dispatcher.HasCredential() {
			// The credential being confirmed no longer works.
			c.forgetCredential()
		}
		appLog.Warn("authentication refused", "request_id", m.ID, "reason", v.Reason)

	case api.NotFound:
		c.lastErr = &BadResponseError{ID: m.ID, Status: o.Status, Reason: v.Reason}
		c.evict(m.Info)
		appLog.Warn("entity not found", "request_id", m.ID, "reason", v.Reason)

	case api.Rejected:
		c.lastErr = &BadResponseError{ID: m.ID, Status: o.Status, Reason: v.Reason}
		appLog.Warn("request rejected", "request_id", m.ID, "reason", v.Reason)

	default:
		c.lastErr = &BadResponseError{ID: m.ID, Status: o.Status}
		appLog.Warn("bad response", "request_id", m.ID, "status", o.Status, "type", fmt.Sprintf("%T", v))
	}
}

// startSession installs a fresh credential and fetches the account.
func (c *Client) startSession(cred *model.Credential) {
	c.staleBefore = c.dispatcher.LastID() + 1
	c.resetLocal()
	c.lastErr = nil
	c.dispatcher.SetCredential(cred)
	if c.store != nil {
		if err := c.store.Save(cred); err != nil {
			appLog.Error("credential save failed", err)
		}
	}
	if _, err := send(c, api.GetMe, api.NoQuery{}, api.NoBody{}, api.SessionCheck{}); err != nil {
		c.report(err)
	}
}

func (c *Client) forgetCredential() {
	c.dispatcher.ClearCredential()
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			appLog.Error("credential clear failed", err)
		}
	}
}

// putEvent stores e and drops the buckets of both its old and new day.
func (c *Client) putEvent(e model.Event) {
	if old, ok := c.events.Get(e.ID); ok {
		c.view.InvalidateEvent(old)
	}
	c.events.Upsert(e)
	c.view.InvalidateEvent(e)
}

// evict removes the entity named by info.
func (c *Client) evict(info api.Info) {
	switch ref := info.(type) {
	case api.EventRef:
		if old, ok := c.events.Remove(ref.ID); ok {
			c.view.InvalidateEvent(old)
		}
	case api.ScheduleRef:
		if _, ok := c.schedules.Remove(ref.ID); ok {
			c.view.InvalidateAll()
		}
	case api.TemplateRef:
		if _, ok := c.templates.Remove(ref.ID); ok {
			c.view.InvalidateAll()
		}
	}
}
