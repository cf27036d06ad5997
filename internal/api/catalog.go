package api

import (
	"net/http"

	"calclient/internal/model"
)

// Credentials is the login body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register body.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LevelChange asks the server to switch the caller's current access level.
type LevelChange struct {
	Level int32 `json:"level"`
}

// Acceptance turns one phantom schedule slot into a real event.
type Acceptance struct {
	PlanID int64  `json:"plan_id"`
	Date   string `json:"date"`
}

var (
	Login = Descriptor[NoQuery, Credentials, Session, AuthError]{
		Name: "login", Method: http.MethodPost, Path: "/auth/login", Auth: AuthNone,
	}
	Register = Descriptor[NoQuery, Registration, Session, AuthError]{
		Name: "register", Method: http.MethodPost, Path: "/auth/register", Auth: AuthNone,
	}
	// GetMe is the legacy endpoint used for silent re-login; it still
	// expects Basic credentials.
	GetMe = Descriptor[NoQuery, NoBody, Me, AuthError]{
		Name: "me", Method: http.MethodGet, Path: "/user/me", Auth: AuthBasic, BadStatus: http.StatusUnauthorized,
	}
	ChangeAccessLevel = Descriptor[NoQuery, LevelChange, Me, Rejected]{
		Name: "change_access_level", Method: http.MethodPost, Path: "/user/access_level", Auth: AuthBearer,
	}
	LoadAccessLevels = Descriptor[NoQuery, NoBody, AccessLevels, Empty]{
		Name: "load_access_levels", Method: http.MethodGet, Path: "/access_levels", Auth: AuthBearer,
	}
)

var (
	LoadEvents = Descriptor[NoQuery, NoBody, Events, Empty]{
		Name: "load_events", Method: http.MethodGet, Path: "/events", Auth: AuthBearer,
	}
	LoadEvent = Descriptor[IDQuery, NoBody, EventRecord, NotFound]{
		Name: "load_event", Method: http.MethodGet, Path: "/event", Auth: AuthBearer,
	}
	InsertEvent = Descriptor[NoQuery, model.NewEvent, EventRecord, Rejected]{
		Name: "insert_event", Method: http.MethodPost, Path: "/event", Auth: AuthBearer,
	}
	UpdateEvent = Descriptor[NoQuery, model.Event, EventRecord, NotFound]{
		Name: "update_event", Method: http.MethodPut, Path: "/event", Auth: AuthBearer,
	}
	DeleteEvent = Descriptor[IDQuery, NoBody, Deleted, NotFound]{
		Name: "delete_event", Method: http.MethodDelete, Path: "/event", Auth: AuthBearer,
	}
	AcceptScheduledEvent = Descriptor[NoQuery, Acceptance, EventRecord, Rejected]{
		Name: "accept_scheduled_event", Method: http.MethodPost, Path: "/schedule/accept", Auth: AuthBearer,
	}
)

var (
	LoadSchedules = Descriptor[NoQuery, NoBody, Schedules, Empty]{
		Name: "load_schedules", Method: http.MethodGet, Path: "/schedules", Auth: AuthBearer,
	}
	InsertSchedule = Descriptor[NoQuery, model.NewSchedule, ScheduleRecord, Rejected]{
		Name: "insert_schedule", Method: http.MethodPost, Path: "/schedule", Auth: AuthBearer,
	}
	UpdateSchedule = Descriptor[NoQuery, model.Schedule, ScheduleRecord, NotFound]{
		Name: "update_schedule", Method: http.MethodPut, Path: "/schedule", Auth: AuthBearer,
	}
	DeleteSchedule = Descriptor[IDQuery, NoBody, Deleted, NotFound]{
		Name: "delete_schedule", Method: http.MethodDelete, Path: "/schedule", Auth: AuthBearer,
	}
)

var (
	LoadTemplates = Descriptor[NoQuery, NoBody, Templates, Empty]{
		Name: "load_event_templates", Method: http.MethodGet, Path: "/event_templates", Auth: AuthBearer,
	}
	InsertTemplate = Descriptor[NoQuery, model.NewEventTemplate, TemplateRecord, Rejected]{
		Name: "insert_event_template", Method: http.MethodPost, Path: "/event_template", Auth: AuthBearer,
	}
	UpdateTemplate = Descriptor[NoQuery, model.EventTemplate, TemplateRecord, NotFound]{
		Name: "update_event_template", Method: http.MethodPut, Path: "/event_template", Auth: AuthBearer,
	}
	DeleteTemplate = Descriptor[IDQuery, NoBody, Deleted, NotFound]{
		Name: "delete_event_template", Method: http.MethodDelete, Path: "/event_template", Auth: AuthBearer,
	}
)
