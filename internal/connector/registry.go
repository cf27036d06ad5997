package connector

import (
	"fmt"

	"calclient/internal/api"
	appLog "calclient/internal/log"
)

// TransportError is a failure below HTTP: connection refused, timeout, reset.
type TransportError struct {
	ID            api.RequestID
	Path          string
	CorrelationID string
	Err           error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connector: request %d %s: %v", e.ID, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Registry holds completed results keyed by RequestID. Raw results are
// converted to Outcomes on demand with the descriptor's Decoder. It must only
// be used from the goroutine that owns the client state.
type Registry struct {
	in      <-chan PendingResult
	raw     map[api.RequestID]PendingResult
	typed   map[api.RequestID]api.Outcome
	onError func(error)
}

// NewRegistry reads results from in. onError receives transport failures as
// they are drained; nil logs them.
func NewRegistry(in <-chan PendingResult, onError func(error)) *Registry {
	if onError == nil {
		onError = func(err error) {
			appLog.Error("request failed", err)
		}
	}
	return &Registry{
		in:      in,
		raw:     make(map[api.RequestID]PendingResult),
		typed:   make(map[api.RequestID]api.Outcome),
		onError: onError,
	}
}

// Drain moves every result currently in the channel into the raw pool and
// returns how many it moved. It never blocks.
func (r *Registry) Drain() int {
	n := 0
	for {
		select {
		case res := <-r.in:
			r.store(res)
			n++
		default:
			return n
		}
	}
}

func (r *Registry) store(res PendingResult) {
	if _, dup := r.raw[res.ID]; dup {
		appLog.Warn("duplicate result ignored", "request_id", res.ID, "path", res.Path)
		return
	}
	if _, dup := r.typed[res.ID]; dup {
		appLog.Warn("duplicate result ignored", "request_id", res.ID, "path", res.Path)
		return
	}
	r.raw[res.ID] = res
	if res.Err != nil {
		r.onError(&TransportError{ID: res.ID, Path: res.Path, CorrelationID: res.CorrelationID, Err: res.Err})
	}
}

// IsCompleted reports whether a result for id has arrived.
func (r *Registry) IsCompleted(id api.RequestID) bool {
	if _, ok := r.raw[id]; ok {
		return true
	}
	_, ok := r.typed[id]
	return ok
}

// Convert decodes the raw result for id into the typed pool. It reports
// false if nothing has arrived for id. Converting twice is a no-op.
func (r *Registry) Convert(id api.RequestID, decode api.Decoder) bool {
	if _, ok := r.typed[id]; ok {
		return true
	}
	res, ok := r.raw[id]
	if !ok {
		return false
	}
	delete(r.raw, id)

	var out api.Outcome
	if res.Err != nil {
		out = api.Outcome{Err: &TransportError{ID: res.ID, Path: res.Path, CorrelationID: res.CorrelationID, Err: res.Err}}
	} else {
		out = decode(res.Status, res.Body)
	}
	r.typed[id] = out
	return true
}

// Peek returns the converted outcome for id without removing it.
func (r *Registry) Peek(id api.RequestID) (api.Outcome, bool) {
	o, ok := r.typed[id]
	return o, ok
}

// Take removes and returns the converted outcome for id.
func (r *Registry) Take(id api.RequestID) (api.Outcome, bool) {
	o, ok := r.typed[id]
	if ok {
		delete(r.typed, id)
	}
	return o, ok
}

// Len reports how many results (raw or converted) are held.
func (r *Registry) Len() int {
	return len(r.raw) + len(r.typed)
}
