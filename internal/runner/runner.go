// Package runner drives a client.Client from a single goroutine.
//
// The client is not safe for concurrent use. Everything that touches it,
// whether the tick loop, HTTP handlers or cron jobs, goes through the
// runner's job queue and executes on the loop goroutine.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"calclient/internal/client"
	appLog "calclient/internal/log"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("runner: stopped")

const jobQueue = 64

type job func(*client.Client)

type Runner struct {
	client   *client.Client
	interval time.Duration
	jobs     chan job
	done     chan struct{}
	cron     *cron.Cron
}

func New(c *client.Client, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Runner{
		client:   c,
		interval: interval,
		jobs:     make(chan job, jobQueue),
		done:     make(chan struct{}),
		cron:     cron.New(cron.WithLocation(c.Location())),
	}
}

// ScheduleRefresh posts a Refresh signal on every firing of spec. Firings
// while logged out are skipped.
func (r *Runner) ScheduleRefresh(spec string) error {
	if spec == "" {
		return nil
	}
	_, err := r.cron.AddFunc(spec, func() {
		r.Post(func(c *client.Client) {
			if !c.LoggedIn() {
				return
			}
			if err := c.Handle(client.Refresh{}); err != nil {
				appLog.Error("scheduled refresh failed", err)
				return
			}
			appLog.Info("scheduled refresh")
		})
	})
	return err
}

// Run ticks the client every interval and executes queued jobs until ctx is
// done. It must be called once.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	r.cron.Start()
	defer func() {
		<-r.cron.Stop().Done()
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	appLog.Info("runner started", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			appLog.Info("runner stopping", "pending", r.client.Pending())
			return ctx.Err()
		case <-ticker.C:
			r.client.Tick()
		case fn := <-r.jobs:
			fn(r.client)
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
func (r *Runner) Do(ctx context.Context, fn func(*client.Client)) error {
	finished := make(chan struct{})
	wrapped := func(c *client.Client) {
		defer close(finished)
		fn(c)
	}
	select {
	case r.jobs <- wrapped:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		// The loop may have exited right after running the job.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn without waiting. It reports false if the queue is full or
// the loop has exited.
func (r *Runner) Post(fn func(*client.Client)) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.jobs <- fn:
		return true
	default:
		appLog.Warn("runner queue full, dropping job")
		return false
	}
}
