package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calclient/internal/log"
	"calclient/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// ImportOptions controls how a feed is turned into events to insert.
type ImportOptions struct {
	// From and To bound the occurrences produced; recurring events are
	// expanded only inside this window.
	From time.Time
	To   time.Time
	// Location interprets floating and all-day values. Nil means time.Local.
	Location *time.Location

	AccessLevel int32
	Visibility  model.Visibility

	// MaxOccurrencesPerEvent caps one recurring event. Zero uses 500.
	MaxOccurrencesPerEvent int
}

// ImportResult lists the events ready to insert and the UIDs whose
// expansion was cut at the cap.
type ImportResult struct {
	Events    []model.NewEvent
	Truncated []string
}

// Import parses an ICS payload and expands it into concrete events within
// [From, To). RRULE, EXDATE and RECURRENCE-ID overrides are honored.
func Import(body []byte, opts ImportOptions) (ImportResult, error) {
	var result ImportResult
	if !opts.To.After(opts.From) {
		return result, errors.New("ics: import window is empty")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxOccurrencesPerEvent <= 0 {
		opts.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	entries, err := parseCalendar(body, opts.Location)
	if err != nil {
		return result, err
	}

	overrides := make(map[string][]entry)
	var masters []entry
	for _, e := range entries {
		if e.Recurrence != nil {
			overrides[e.UID] = append(overrides[e.UID], e)
			continue
		}
		masters = append(masters, e)
	}

	for _, e := range masters {
		occ, truncated := expand(e, overrides[e.UID], opts)
		if truncated {
			result.Truncated = append(result.Truncated, e.UID)
		}
		for _, o := range occ {
			result.Events = append(result.Events, model.NewEvent{
				Name:        o.Summary,
				Description: o.Description,
				Start:       o.Start.In(opts.Location),
				End:         o.End.In(opts.Location),
				AccessLevel: opts.AccessLevel,
				Visibility:  opts.Visibility,
			})
		}
	}

	slices.SortStableFunc(result.Events, func(a, b model.NewEvent) int {
		return a.Start.Compare(b.Start)
	})
	appLog.Info("ics import expanded", "vevents", len(entries), "events", len(result.Events), "truncated", len(result.Truncated))
	return result, nil
}

func expand(e entry, overrides []entry, opts ImportOptions) ([]entry, bool) {
	if e.RawRRule == "" {
		if o, ok := findOverride(overrides, e.Start); ok {
			e = o
		}
		if overlaps(e, opts) {
			return []entry{e}, false
		}
		return nil, false
	}

	r, err := rrule.StrToRRule(e.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", e.UID, "rrule", e.RawRRule)
		return nil, false
	}
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	starts := set.Between(opts.From.In(e.Start.Location()), opts.To.In(e.Start.Location()), true)
	truncated := false
	if len(starts) > opts.MaxOccurrencesPerEvent {
		starts = starts[:opts.MaxOccurrencesPerEvent]
		truncated = true
	}

	dur := e.End.Sub(e.Start)
	out := make([]entry, 0, len(starts))
	for _, s := range starts {
		occ := e
		occ.RawRRule = ""
		occ.Start = s
		occ.End = s.Add(dur)
		if o, ok := findOverride(overrides, s); ok {
			occ = o
		}
		if overlaps(occ, opts) {
			out = append(out, occ)
		}
	}
	return out, truncated
}

// findOverride returns the override whose RECURRENCE-ID is start.
func findOverride(overrides []entry, start time.Time) (entry, bool) {
	for _, o := range overrides {
		if o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return entry{}, false
}

func overlaps(e entry, opts ImportOptions) bool {
	return e.Start.Before(opts.To) && !e.End.Before(opts.From)
}
