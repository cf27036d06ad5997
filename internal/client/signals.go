package client

import (
	"fmt"

	"calclient/internal/api"
	appLog "calclient/internal/log"
	"calclient/internal/model"
)

// Signal is a user intent. The set is closed to this package.
type Signal interface {
	signal()
}

type Login struct {
	Email    string
	Password string
}

type Register struct {
	Name     string
	Email    string
	Password string
}

// Logout forgets the credential and every loaded entity. Responses to
// requests sent before the logout are discarded when they arrive.
type Logout struct{}

// Refresh reloads access levels, templates, schedules and events.
type Refresh struct{}

type LoadEvent struct{ ID int64 }

type InsertEvent struct{ Event model.NewEvent }

type UpdateEvent struct{ Event model.Event }

type DeleteEvent struct{ ID int64 }

type InsertSchedule struct{ Schedule model.NewSchedule }

type UpdateSchedule struct{ Schedule model.Schedule }

type DeleteSchedule struct{ ID int64 }

type InsertEventTemplate struct{ Template model.NewEventTemplate }

type UpdateEventTemplate struct{ Template model.EventTemplate }

type DeleteEventTemplate struct{ ID int64 }

type ChangeAccessLevel struct{ Level int32 }

// AcceptScheduledEvent turns the phantom of plan PlanID on Date into a real
// event.
type AcceptScheduledEvent struct {
	PlanID int64
	Date   model.Date
}

func (Login) signal()                {}
func (Register) signal()             {}
func (Logout) signal()               {}
func (Refresh) signal()              {}
func (LoadEvent) signal()            {}
func (InsertEvent) signal()          {}
func (UpdateEvent) signal()          {}
func (DeleteEvent) signal()          {}
func (InsertSchedule) signal()       {}
func (UpdateSchedule) signal()       {}
func (DeleteSchedule) signal()       {}
func (InsertEventTemplate) signal()  {}
func (UpdateEventTemplate) signal()  {}
func (DeleteEventTemplate) signal()  {}
func (ChangeAccessLevel) signal()    {}
func (AcceptScheduledEvent) signal() {}

// Handle translates a signal into zero or more requests. Results are applied
// by later ticks. Signals that need a session fail with ErrNotLoggedIn
// instead of reaching the network.
func (c *Client) Handle(s Signal) error {
	var err error
	switch s := s.(type) {
	case Login:
		_, err = send(c, api.Login, api.NoQuery{}, api.Credentials{Email: s.Email, Password: s.Password}, api.NoInfo{})
	case Register:
		_, err = send(c, api.Register, api.NoQuery{}, api.Registration{Name: s.Name, Email: s.Email, Password: s.Password}, api.NoInfo{})
	case Logout:
		c.logout()
	case Refresh:
		if !c.dispatcher.HasCredential() {
			return ErrNotLoggedIn
		}
		err = c.loadAll()
	case LoadEvent:
		_, err = send(c, api.LoadEvent, api.IDQuery{ID: s.ID}, api.NoBody{}, api.EventRef{ID: s.ID})
	case InsertEvent:
		_, err = send(c, api.InsertEvent, api.NoQuery{}, s.Event, api.NoInfo{})
	case UpdateEvent:
		if s.Event.IsPhantom() {
			return ErrPhantomEvent
		}
		_, err = send(c, api.UpdateEvent, api.NoQuery{}, s.Event, api.EventRef{ID: s.Event.ID})
	case DeleteEvent:
		if s.ID == model.PhantomID {
			return ErrPhantomEvent
		}
		_, err = send(c, api.DeleteEvent, api.IDQuery{ID: s.ID}, api.NoBody{}, api.EventRef{ID: s.ID})
	case InsertSchedule:
		_, err = send(c, api.InsertSchedule, api.NoQuery{}, s.Schedule, api.NoInfo{})
	case UpdateSchedule:
		_, err = send(c, api.UpdateSchedule, api.NoQuery{}, s.Schedule, api.ScheduleRef{ID: s.Schedule.ID})
	case DeleteSchedule:
		_, err = send(c, api.DeleteSchedule, api.IDQuery{ID: s.ID}, api.NoBody{}, api.ScheduleRef{ID: s.ID})
	case InsertEventTemplate:
		_, err = send(c, api.InsertTemplate, api.NoQuery{}, s.Template, api.NoInfo{})
	case UpdateEventTemplate:
		_, err = send(c, api.UpdateTemplate, api.NoQuery{}, s.Template, api.TemplateRef{ID: s.Template.ID})
	case DeleteEventTemplate:
		_, err = send(c, api.DeleteTemplate, api.IDQuery{ID: s.ID}, api.NoBody{}, api.TemplateRef{ID: s.ID})
	case ChangeAccessLevel:
		_, err = send(c, api.ChangeAccessLevel, api.NoQuery{}, api.LevelChange{Level: s.Level}, api.LevelRef{Level: s.Level})
	case AcceptScheduledEvent:
		body := api.Acceptance{PlanID: s.PlanID, Date: s.Date.String()}
		_, err = send(c, api.AcceptScheduledEvent, api.NoQuery{}, body, api.PlanRef{PlanID: s.PlanID, Date: s.Date})
	default:
		return fmt.Errorf("client: unhandled signal %T", s)
	}
	if err != nil {
		return err
	}
	appLog.Debug("signal handled", "signal", fmt.Sprintf("%T", s), "pending", c.Pending())
	return nil
}

func (c *Client) logout() {
	// Anything already in flight answers for the old session.
	c.staleBefore = c.dispatcher.LastID() + 1
	c.dispatcher.ClearCredential()
	c.resetLocal()
	c.lastErr = nil
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			appLog.Error("credential clear failed", err)
		}
	}
	appLog.Info("logged out")
}
