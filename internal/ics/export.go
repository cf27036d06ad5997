// Package ics converts between the calendar's events and iCalendar feeds:
// Export renders a day range as a subscribable feed and Import expands an
// external feed into events to insert.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"calclient/internal/model"
)

// PhantomProperty marks exported events synthesized from a schedule.
const PhantomProperty = "X-CALCLIENT-PHANTOM"

const busySummary = "Busy"

type ExportOptions struct {
	// Name is shown by subscribing clients.
	Name string
	// Stamp is written as DTSTAMP on every event.
	Stamp time.Time
}

// Export renders events as an iCalendar document. Redacted events keep their
// timing; an empty name is exported as "Busy".
func Export(events []model.Event, opts ExportOptions) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//calclient//EN")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	for _, e := range events {
		ve := cal.AddEvent(uid(e))
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(e.Start.UTC())
		ve.SetEndAt(e.End.UTC())

		summary := e.Name
		if summary == "" {
			summary = busySummary
		}
		ve.SetSummary(summary)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.IsPhantom() {
			ve.SetProperty(ical.ComponentProperty(PhantomProperty), "TRUE")
		}
	}
	return cal.Serialize()
}

// uid is stable per stored event, and per plan and day for phantoms.
func uid(e model.Event) string {
	if e.IsPhantom() && e.PlanID != nil {
		return fmt.Sprintf("plan-%d-%s@calclient", *e.PlanID, e.Start.UTC().Format("20060102"))
	}
	return fmt.Sprintf("event-%d@calclient", e.ID)
}
