package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// PhantomID is the identity carried by synthesized schedule events. Such
// events are never persisted and never stored in a table.
const PhantomID int64 = -1

// Visibility controls how an event is shown to callers whose current access
// level is below the event's access level.
type Visibility int

const (
	// Show passes the event through unchanged.
	Show Visibility = iota
	// HideDescription blanks the description only.
	HideDescription
	// HideName blanks both name and description.
	HideName
	// HideAll drops the event entirely.
	HideAll
)

var visibilityNames = map[Visibility]string{
	Show:            "show",
	HideDescription: "hide_description",
	HideName:        "hide_name",
	HideAll:         "hide_all",
}

func (v Visibility) String() string {
	if s, ok := visibilityNames[v]; ok {
		return s
	}
	return fmt.Sprintf("visibility(%d)", int(v))
}

func (v Visibility) MarshalJSON() ([]byte, error) {
	s, ok := visibilityNames[v]
	if !ok {
		return nil, fmt.Errorf("model: unknown visibility %d", int(v))
	}
	return json.Marshal(s)
}

func (v *Visibility) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("model: visibility: %w", err)
	}
	for k, name := range visibilityNames {
		if name == s {
			*v = k
			return nil
		}
	}
	return fmt.Errorf("model: unknown visibility %q", s)
}

// Event is a calendar entry. Real events come from the server; phantom
// events (ID == PhantomID) are synthesized from schedules.
type Event struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	AccessLevel int32      `json:"access_level"`
	Visibility  Visibility `json:"visibility"`
	// PlanID links the event to the schedule slot it fills, if any.
	PlanID *int64 `json:"plan_id,omitempty"`
}

func (e Event) Key() int64 { return e.ID }

func (e Event) IsPhantom() bool { return e.ID == PhantomID }

// NewEvent is the insert payload for an event.
type NewEvent struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	AccessLevel int32      `json:"access_level"`
	Visibility  Visibility `json:"visibility"`
	PlanID      *int64     `json:"plan_id,omitempty"`
}

// EventTemplate supplies name, description and duration for schedule slots.
type EventTemplate struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// DurationSeconds is the length of events generated from this template.
	DurationSeconds int64 `json:"duration"`
	AccessLevel     int32 `json:"access_level"`
}

func (t EventTemplate) Key() int64 { return t.ID }

func (t EventTemplate) Duration() time.Duration {
	return time.Duration(t.DurationSeconds) * time.Second
}

type NewEventTemplate struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationSeconds int64  `json:"duration"`
	AccessLevel     int32  `json:"access_level"`
}

// EventPlan is one weekly slot of a schedule.
type EventPlan struct {
	ID      int64        `json:"id"`
	Weekday time.Weekday `json:"weekday"`
	// TimeOfDay is seconds after local midnight.
	TimeOfDay int32 `json:"time"`
}

func (p EventPlan) Offset() time.Duration {
	return time.Duration(p.TimeOfDay) * time.Second
}

// Schedule is a recurring weekly pattern built from one template.
type Schedule struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id"`
	TemplateID  int64       `json:"template_id"`
	Name        string      `json:"name"`
	AccessLevel int32       `json:"access_level"`
	Plans       []EventPlan `json:"plans"`
}

func (s Schedule) Key() int64 { return s.ID }

type NewSchedule struct {
	TemplateID  int64       `json:"template_id"`
	Name        string      `json:"name"`
	AccessLevel int32       `json:"access_level"`
	Plans       []EventPlan `json:"plans"`
}

// AccessLevel is a permission tier. Higher levels see more.
type AccessLevel struct {
	ID      int64  `json:"id"`
	Level   int32  `json:"level"`
	Name    string `json:"name"`
	CanEdit bool   `json:"can_edit"`
}

func (a AccessLevel) Key() int64 { return a.ID }

// User is the logged-in account. AccessLevel is the caller's current level.
type User struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	AccessLevel int32  `json:"access_level"`
}

func (u User) Key() int64 { return u.ID }

// Credential is the opaque login blob kept across restarts.
type Credential struct {
	UserID int64  `json:"user_id"`
	Key    []byte `json:"key"`
}

func (c *Credential) Valid() bool {
	return c != nil && c.UserID > 0 && len(c.Key) > 0
}
