// Package api declares the typed network operations the client can issue.
//
// Every operation is a Descriptor value binding a path, method and auth mode
// to four shapes: query (Q), body (B), success response (R) and bad response
// (E). R and E are members of the closed Response set, so a completed request
// decodes straight into a concrete variant and callers switch on it instead
// of asserting arbitrary types.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// RequestID correlates a dispatched request with its completion. IDs are
// assigned sequentially from 1 and never reused within a process.
type RequestID uint64

// AuthMode selects the Authorization header attached to a request.
type AuthMode int

const (
	AuthNone AuthMode = iota
	// AuthBearer sends the session key as a bearer token.
	AuthBearer
	// AuthBasic sends user id and key as HTTP Basic credentials. Only the
	// legacy re-login path uses it.
	AuthBasic
)

func (m AuthMode) String() string {
	switch m {
	case AuthNone:
		return "none"
	case AuthBearer:
		return "bearer"
	case AuthBasic:
		return "basic"
	default:
		return fmt.Sprintf("auth(%d)", int(m))
	}
}

// Query is implemented by every query shape.
type Query interface {
	Values() url.Values
}

// NoQuery is the empty query.
type NoQuery struct{}

func (NoQuery) Values() url.Values { return nil }

// IDQuery carries a single entity id as ?id=.
type IDQuery struct {
	ID int64
}

func (q IDQuery) Values() url.Values {
	return url.Values{"id": []string{fmt.Sprint(q.ID)}}
}

// NoBody marks descriptors that send no request body.
type NoBody struct{}

// Decoder turns a raw status and body into an Outcome.
type Decoder func(status int, body []byte) Outcome

// Sender is the untyped dispatch surface Call drives.
type Sender interface {
	Send(method, path string, auth AuthMode, query url.Values, body []byte) RequestID
}

// Descriptor is the static contract of one network operation.
type Descriptor[Q Query, B any, R, E Response] struct {
	Name   string
	Method string
	Path   string
	Auth   AuthMode
	// BadStatus is the status whose body decodes as E. Zero means 400.
	BadStatus int
}

func (d Descriptor[Q, B, R, E]) badStatus() int {
	if d.BadStatus == 0 {
		return http.StatusBadRequest
	}
	return d.BadStatus
}

// Decode classifies a completed exchange: 200 decodes as R, the declared bad
// status decodes as E, anything else becomes a StatusError carrying the body
// verbatim. Malformed bodies yield a DecodeError.
func (d Descriptor[Q, B, R, E]) Decode(status int, body []byte) Outcome {
	switch status {
	case http.StatusOK:
		var r R
		if err := unmarshal(body, &r); err != nil {
			return Outcome{Status: status, Err: &DecodeError{Op: d.Name, Status: status, Err: err}}
		}
		return Outcome{Status: status, Value: r}
	case d.badStatus():
		var e E
		if err := unmarshal(body, &e); err != nil {
			return Outcome{Status: status, Err: &DecodeError{Op: d.Name, Status: status, Err: err}}
		}
		return Outcome{Status: status, Value: e, Bad: true}
	default:
		return Outcome{Status: status, Err: &StatusError{Op: d.Name, Status: status, Body: string(body)}}
	}
}

// Call encodes q and b and hands the request to s. The returned Decoder is
// the one the completion tracker must use for this request.
func Call[Q Query, B any, R, E Response](s Sender, d Descriptor[Q, B, R, E], q Q, b B) (RequestID, Decoder, error) {
	var body []byte
	if _, none := any(b).(NoBody); !none {
		encoded, err := json.Marshal(b)
		if err != nil {
			return 0, nil, fmt.Errorf("api: encode %s body: %w", d.Name, err)
		}
		body = encoded
	}
	id := s.Send(d.Method, d.Path, d.Auth, q.Values(), body)
	return id, d.Decode, nil
}

func unmarshal(body []byte, v any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("null")
	}
	return json.Unmarshal(body, v)
}
