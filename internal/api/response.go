package api

import (
	"fmt"

	"calclient/internal/model"
)

// Response is the closed set of decoded payloads. The unexported marker
// keeps the set closed to this package.
type Response interface {
	response()
}

// Session is returned by login and registration.
type Session struct {
	UserID int64  `json:"user_id"`
	Key    []byte `json:"key"`
}

// Me is the caller's own account.
type Me struct {
	model.User
}

type Events []model.Event

// EventRecord is a single event as stored by the server.
type EventRecord struct {
	model.Event
}

type Schedules []model.Schedule

type ScheduleRecord struct {
	model.Schedule
}

type Templates []model.EventTemplate

type TemplateRecord struct {
	model.EventTemplate
}

type AccessLevels []model.AccessLevel

// Deleted acknowledges a delete; the body is ignored.
type Deleted struct{}

// Empty is the unit bad response.
type Empty struct{}

// AuthError is the bad response of the authentication endpoints.
type AuthError struct {
	Reason string `json:"error"`
}

// NotFound reports that the addressed entity no longer exists.
type NotFound struct {
	Reason string `json:"error"`
}

// Rejected reports a validation or permission failure.
type Rejected struct {
	Reason string `json:"error"`
}

func (Session) response()        {}
func (Me) response()             {}
func (Events) response()         {}
func (EventRecord) response()    {}
func (Schedules) response()      {}
func (ScheduleRecord) response() {}
func (Templates) response()      {}
func (TemplateRecord) response() {}
func (AccessLevels) response()   {}
func (Deleted) response()        {}
func (Empty) response()          {}
func (AuthError) response()      {}
func (NotFound) response()       {}
func (Rejected) response()       {}

// Info is the closed set of correlation payloads carried from dispatch to
// application.
type Info interface {
	info()
}

type NoInfo struct{}

// SessionCheck marks the account fetch that confirms a credential, after
// login or when resuming a stored one.
type SessionCheck struct{}

// EventRef names the local event a response applies to.
type EventRef struct{ ID int64 }

type ScheduleRef struct{ ID int64 }

type TemplateRef struct{ ID int64 }

// LevelRef carries the access level that was requested.
type LevelRef struct{ Level int32 }

// PlanRef names the schedule slot being accepted.
type PlanRef struct {
	PlanID int64
	Date   model.Date
}

func (NoInfo) info()       {}
func (SessionCheck) info() {}
func (EventRef) info()     {}
func (ScheduleRef) info()  {}
func (TemplateRef) info()  {}
func (LevelRef) info()     {}
func (PlanRef) info()      {}

// OutcomeKind classifies an Outcome.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeBad
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeBad:
		return "bad"
	default:
		return "failed"
	}
}

// Outcome is a converted result. Exactly one of the following holds:
// Err != nil (transport, decode or unexpected status); Bad with Value set to
// the E variant; or success with Value set to the R variant.
type Outcome struct {
	Status int
	Value  Response
	Bad    bool
	Err    error
}

func (o Outcome) Kind() OutcomeKind {
	switch {
	case o.Err != nil:
		return OutcomeFailed
	case o.Bad:
		return OutcomeBad
	default:
		return OutcomeOK
	}
}

// DecodeError reports a body that does not match the declared shape.
type DecodeError struct {
	Op     string
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("api: decode %s response (status %d): %v", e.Op, e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusError reports a status that is neither 200 nor the declared bad
// status. Body is kept verbatim.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}
