// Package tracker implements two-phase completion of dispatched requests.
//
// A tracked request is Pending until its result is observed in the
// registry. It is then converted and Staged as a Mutation. Staged mutations
// are applied at the start of the following tick, never in the tick that
// observed them, so a reader iterating state during a tick never sees that
// state change underneath it.
package tracker

import (
	"calclient/internal/api"
	appLog "calclient/internal/log"
	"calclient/internal/metrics"
)

// Source is the registry surface the tracker probes.
type Source interface {
	IsCompleted(id api.RequestID) bool
	Convert(id api.RequestID, decode api.Decoder) bool
	Take(id api.RequestID) (api.Outcome, bool)
}

// Mutation is a finished request ready to be applied to local state.
type Mutation struct {
	ID      api.RequestID
	Info    api.Info
	Outcome api.Outcome
}

// Applier consumes staged mutations. Apply runs on the owning goroutine.
type Applier interface {
	Apply(m Mutation)
}

type entry struct {
	id     api.RequestID
	info   api.Info
	decode api.Decoder
}

type Tracker struct {
	src     Source
	metrics *metrics.Metrics

	pending []entry
	staged  []Mutation
}

func New(src Source, m *metrics.Metrics) *Tracker {
	return &Tracker{src: src, metrics: m}
}

// Track registers a dispatched request. decode must be the descriptor's
// decoder for that request.
func (t *Tracker) Track(id api.RequestID, info api.Info, decode api.Decoder) {
	if info == nil {
		info = api.NoInfo{}
	}
	t.pending = append(t.pending, entry{id: id, info: info, decode: decode})
	t.metrics.SetPending(len(t.pending))
}

// Tick runs one scheduling cycle: it applies the mutations staged by the
// previous tick, then stages mutations for every pending request that has
// completed since. It returns the number of mutations applied.
func (t *Tracker) Tick(a Applier) int {
	ready := t.staged
	t.staged = nil
	for _, m := range ready {
		a.Apply(m)
		t.metrics.RequestCompleted(m.Outcome.Kind().String())
	}

	kept := t.pending[:0]
	for _, e := range t.pending {
		if !t.src.IsCompleted(e.id) {
			kept = append(kept, e)
			continue
		}
		t.src.Convert(e.id, e.decode)
		out, ok := t.src.Take(e.id)
		if !ok {
			// Completed but not convertible; keep probing rather than lose it.
			appLog.Warn("completed request had no outcome", "request_id", e.id)
			kept = append(kept, e)
			continue
		}
		t.staged = append(t.staged, Mutation{ID: e.id, Info: e.info, Outcome: out})
	}
	// Release references held past the new length.
	for i := len(kept); i < len(t.pending); i++ {
		t.pending[i] = entry{}
	}
	t.pending = kept
	t.metrics.SetPending(len(t.pending))

	return len(ready)
}

// Pending reports requests not yet observed complete.
func (t *Tracker) Pending() int {
	return len(t.pending)
}

// Staged reports mutations waiting for the next tick.
func (t *Tracker) Staged() int {
	return len(t.staged)
}
