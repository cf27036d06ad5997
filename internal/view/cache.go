// Package view materializes the per-day calendar the UI reads: real events
// redacted for the caller's access level, merged with phantom events
// synthesized from schedules, sorted by start time.
//
// Buckets are computed lazily on first read and are only ever removed, never
// patched; any change to the underlying tables must invalidate them.
package view

import (
	"slices"
	"time"

	appLog "calclient/internal/log"
	"calclient/internal/metrics"
	"calclient/internal/model"
)

// Source supplies the table state a bucket is computed from.
type Source interface {
	RealEvents() []model.Event
	ScheduleList() []model.Schedule
	Template(id int64) (model.EventTemplate, bool)
	CallerLevel() int32
}

type Cache struct {
	src     Source
	loc     *time.Location
	metrics *metrics.Metrics

	days map[model.Date][]model.Event
}

func New(src Source, loc *time.Location, m *metrics.Metrics) *Cache {
	if loc == nil {
		loc = time.Local
	}
	return &Cache{
		src:     src,
		loc:     loc,
		metrics: m,
		days:    make(map[model.Date][]model.Event),
	}
}

// Location is the zone dates are bucketed in.
func (c *Cache) Location() *time.Location {
	return c.loc
}

// Prepare materializes the bucket for date if it is absent.
func (c *Cache) Prepare(date model.Date) {
	if _, ok := c.days[date]; ok {
		return
	}
	c.days[date] = c.materialize(date)
	c.metrics.BucketMaterialized()
}

// Events returns the bucket for date, materializing it if needed. The slice
// belongs to the cache and must not be modified.
func (c *Cache) Events(date model.Date) []model.Event {
	c.Prepare(date)
	return c.days[date]
}

// Materialized reports whether date currently has a bucket.
func (c *Cache) Materialized(date model.Date) bool {
	_, ok := c.days[date]
	return ok
}

func (c *Cache) Invalidate(date model.Date) {
	delete(c.days, date)
}

func (c *Cache) InvalidateAll() {
	if len(c.days) > 0 {
		appLog.Debug("view: all day buckets invalidated", "count", len(c.days))
	}
	c.days = make(map[model.Date][]model.Event)
}

// InvalidateEvent drops the bucket holding e's start date.
func (c *Cache) InvalidateEvent(e model.Event) {
	c.Invalidate(model.DateOf(e.Start, c.loc))
}

func (c *Cache) materialize(date model.Date) []model.Event {
	caller := c.src.CallerLevel()

	// Never nil: an empty bucket is still a materialized bucket.
	out := make([]model.Event, 0)
	taken := make(map[int64]bool)
	for _, e := range c.src.RealEvents() {
		if model.DateOf(e.Start, c.loc) != date {
			continue
		}
		if e.PlanID != nil {
			taken[*e.PlanID] = true
		}
		if visible, ok := Redact(e, caller); ok {
			out = append(out, visible)
		}
	}

	out = append(out, Phantoms(date, c.loc, c.src.ScheduleList(), c.src.Template, caller, taken)...)

	slices.SortStableFunc(out, func(a, b model.Event) int {
		return a.Start.Compare(b.Start)
	})
	return out
}

// Range returns the events of n consecutive days starting at from, in day
// order.
func (c *Cache) Range(from model.Date, n int) []model.Event {
	var out []model.Event
	for i := 0; i < n; i++ {
		out = append(out, c.Events(from.AddDays(i))...)
	}
	return out
}
