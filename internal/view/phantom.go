package view

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "calclient/internal/log"
	"calclient/internal/model"
)

const secondsPerDay = 24 * 60 * 60

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Redact applies an event's visibility mode for a caller at level caller.
// It reports false if the event must be dropped.
func Redact(e model.Event, caller int32) (model.Event, bool) {
	if e.AccessLevel <= caller {
		return e, true
	}
	switch e.Visibility {
	case model.HideAll:
		return model.Event{}, false
	case model.HideName:
		e.Name = ""
		e.Description = ""
	case model.HideDescription:
		e.Description = ""
	}
	return e, true
}

// planStart returns when plan occurs on date in loc, if it does. The plan is
// treated as a weekly rule and evaluated over that single day.
func planStart(plan model.EventPlan, date model.Date, loc *time.Location) (time.Time, bool) {
	if plan.Weekday < time.Sunday || plan.Weekday > time.Saturday {
		return time.Time{}, false
	}
	if plan.TimeOfDay < 0 || plan.TimeOfDay >= secondsPerDay {
		return time.Time{}, false
	}
	if plan.Weekday != date.Weekday() {
		return time.Time{}, false
	}

	secs := int(plan.TimeOfDay)
	dayStart := date.Start(loc)
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   dayStart,
		Byweekday: []rrule.Weekday{rruleWeekdays[plan.Weekday]},
		Byhour:    []int{secs / 3600},
		Byminute:  []int{secs % 3600 / 60},
		Bysecond:  []int{secs % 60},
	})
	if err != nil {
		appLog.Error("phantom: invalid plan rule", err, "plan_id", plan.ID)
		return time.Time{}, false
	}

	for _, t := range r.Between(dayStart, date.AddDays(1).Start(loc), true) {
		if model.DateOf(t, loc) == date {
			return t, true
		}
	}
	return time.Time{}, false
}

// Phantoms synthesizes the schedule events for date that the caller may see.
// taken holds plan ids already filled by a real event on that date.
func Phantoms(date model.Date, loc *time.Location, schedules []model.Schedule, template func(int64) (model.EventTemplate, bool), caller int32, taken map[int64]bool) []model.Event {
	var out []model.Event
	for _, s := range schedules {
		if s.AccessLevel > caller {
			continue
		}
		tpl, ok := template(s.TemplateID)
		if !ok {
			appLog.Debug("phantom: schedule template not loaded", "schedule_id", s.ID, "template_id", s.TemplateID)
			continue
		}
		for _, plan := range s.Plans {
			if taken[plan.ID] {
				continue
			}
			start, ok := planStart(plan, date, loc)
			if !ok {
				continue
			}
			planID := plan.ID
			out = append(out, model.Event{
				ID:          model.PhantomID,
				Name:        tpl.Name,
				Description: tpl.Description,
				Start:       start,
				End:         start.Add(tpl.Duration()),
				AccessLevel: s.AccessLevel,
				Visibility:  model.HideAll,
				PlanID:      &planID,
			})
		}
	}
	return out
}
