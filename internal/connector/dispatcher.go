// Package connector moves requests onto the network and their results back
// to the owning goroutine.
//
// The Dispatcher starts one goroutine per request and never blocks its
// caller. Finished exchanges travel through a single buffered channel as
// PendingResults; the Registry drains that channel on the owning goroutine,
// so nothing past the channel needs locking.
package connector

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"calclient/internal/api"
	appLog "calclient/internal/log"
	"calclient/internal/metrics"
	"calclient/internal/model"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultBuffer      = 256
	defaultMaxInFlight = 8

	// CorrelationHeader carries a per-request id the server can log.
	CorrelationHeader = "X-Correlation-Id"
)

// ErrUnauthenticated is the panic value raised when a request that needs a
// credential is sent without one. Callers must check before sending.
var ErrUnauthenticated = errors.New("connector: authorized request sent without credential")

// PendingResult is one finished network exchange.
type PendingResult struct {
	ID            api.RequestID
	Path          string
	CorrelationID string
	Status        int
	Body          []byte
	// Err is set when the exchange failed below HTTP.
	Err error
}

// Options configures a Dispatcher.
type Options struct {
	BaseURL string
	// Timeout bounds one HTTP exchange. Zero uses 15s.
	Timeout time.Duration
	// MaxInFlight bounds concurrent exchanges; extra requests wait in their
	// own goroutine. Zero uses 8.
	MaxInFlight int64
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	// Buffer is the completion channel capacity. Zero uses 256.
	Buffer int
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

type Dispatcher struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	metrics *metrics.Metrics

	// last is the most recently issued id. Only the owning goroutine
	// sends, so it is a plain counter.
	last api.RequestID
	cred *model.Credential

	results chan PendingResult
	wg      sync.WaitGroup

	// ctx is cancelled by Close; workers then abort and drop their results.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewDispatcher(opts Options) (*Dispatcher, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, err
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("connector: base URL needs scheme and host")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	inFlight := opts.MaxInFlight
	if inFlight <= 0 {
		inFlight = defaultMaxInFlight
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		ctx:     ctx,
		cancel:  cancel,
		base:    base,
		client:  client,
		sem:     semaphore.NewWeighted(inFlight),
		metrics: opts.Metrics,
		results: make(chan PendingResult, buffer),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return d, nil
}

// SetCredential installs the credential used for authorized requests.
func (d *Dispatcher) SetCredential(c *model.Credential) {
	d.cred = c
}

func (d *Dispatcher) ClearCredential() {
	d.cred = nil
}

func (d *Dispatcher) Credential() *model.Credential {
	return d.cred
}

// HasCredential reports whether authorized requests may be sent.
func (d *Dispatcher) HasCredential() bool {
	return d.cred.Valid()
}

// LastID returns the most recently issued RequestID, or 0.
func (d *Dispatcher) LastID() api.RequestID {
	return d.last
}

// Results is the completion channel drained by the Registry.
func (d *Dispatcher) Results() <-chan PendingResult {
	return d.results
}

// Buffered reports how many results are waiting in the channel.
func (d *Dispatcher) Buffered() int {
	return len(d.results)
}

// Wait blocks until every started exchange has delivered its result. Someone
// must keep draining Results, or the dispatcher must be closed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close aborts in-flight exchanges and waits for their workers to exit.
// Results not yet delivered are dropped. Close is idempotent.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(d.cancel)
	d.wg.Wait()
}

// Send allocates the next RequestID, builds the request and starts the
// exchange in a new goroutine. Exactly one PendingResult is delivered for the
// returned id. It panics with ErrUnauthenticated if auth is required and no
// credential is held.
func (d *Dispatcher) Send(method, path string, auth api.AuthMode, query url.Values, body []byte) api.RequestID {
	if auth != api.AuthNone && !d.HasCredential() {
		panic(ErrUnauthenticated)
	}

	d.last++
	id := d.last
	correlationID := uuid.NewString()

	u := *d.base
	u.Path = d.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	header := http.Header{}
	header.Set(CorrelationHeader, correlationID)
	header.Set("Accept", "application/json")
	if body != nil {
		header.Set("Content-Type", "application/json")
	}
	switch auth {
	case api.AuthBearer:
		header.Set("Authorization", "Bearer "+base64.StdEncoding.EncodeToString(d.cred.Key))
	case api.AuthBasic:
		user := strconv.FormatInt(d.cred.UserID, 10)
		pass := base64.StdEncoding.EncodeToString(d.cred.Key)
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	}

	d.metrics.RequestDispatched(path)
	appLog.Debug("request dispatched", "request_id", id, "method", method, "path", path, "correlation_id", correlationID)

	d.wg.Add(1)
	go d.exchange(id, method, u.String(), path, correlationID, header, body)
	return id
}

func (d *Dispatcher) exchange(id api.RequestID, method, target, path, correlationID string, header http.Header, body []byte) {
	defer d.wg.Done()

	res := PendingResult{ID: id, Path: path, CorrelationID: correlationID}
	res.Status, res.Body, res.Err = d.do(method, target, header, body)
	if res.Err != nil && d.ctx.Err() != nil {
		appLog.Debug("request aborted by close", "request_id", id, "path", path)
	} else if res.Err != nil {
		appLog.Error("request transport failure", res.Err, "request_id", id, "path", path, "correlation_id", correlationID)
	} else {
		appLog.Debug("request finished", "request_id", id, "path", path, "status", res.Status)
	}

	select {
	case d.results <- res:
	case <-d.ctx.Done():
		appLog.Debug("result dropped after close", "request_id", id, "path", path)
	}
}

func (d *Dispatcher) do(method, target string, header http.Header, body []byte) (int, []byte, error) {
	ctx := d.ctx

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return 0, nil, err
	}
	defer d.sem.Release(1)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header = header

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}
