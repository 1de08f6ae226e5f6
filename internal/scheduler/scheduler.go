// Package scheduler triggers jobs on a cron schedule or a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is the work run on every trigger.
type Job func(ctx context.Context)

// Handle controls one running schedule. It is owned by whoever started it.
type Handle struct {
	mu      sync.Mutex
	quit    chan struct{}
	halt    func()
	next    func() time.Time
	running sync.WaitGroup
}

func newHandle() *Handle {
	return &Handle{quit: make(chan struct{})}
}

// Stop prevents future triggers. A job already running is not interrupted.
// Stop may be called more than once.
func (h *Handle) Stop() {
	h.mu.Lock()
	select {
	case <-h.quit:
		h.mu.Unlock()
		return
	default:
	}
	close(h.quit)
	h.mu.Unlock()

	if h.halt != nil {
		h.halt()
	}
}

// Stopped reports whether the handle no longer triggers jobs.
func (h *Handle) Stopped() bool {
	select {
	case <-h.quit:
		return true
	default:
		return false
	}
}

// Wait blocks until the handle is stopped and the job it was running, if
// any, has returned.
func (h *Handle) Wait() {
	<-h.quit
	h.running.Wait()
}

// Next returns the time of the next trigger, or the zero time once stopped.
func (h *Handle) Next() time.Time {
	if h.Stopped() {
		return time.Time{}
	}
	return h.next()
}

func (h *Handle) run(ctx context.Context, job Job) {
	h.mu.Lock()
	if h.Stopped() {
		h.mu.Unlock()
		return
	}
	h.running.Add(1)
	h.mu.Unlock()

	defer h.running.Done()
	job(ctx)
}

// stopOnDone stops h when ctx ends.
func (h *Handle) stopOnDone(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			h.Stop()
		case <-h.quit:
		}
	}()
}

// StartCron runs job on the standard five-field cron expression expr. A
// trigger that fires while the previous run is still going is skipped.
// Jobs receive ctx; the schedule stops when ctx is done.
func StartCron(ctx context.Context, expr string, job Job, log *slog.Logger) (*Handle, error) {
	l := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)

	h := newHandle()
	id, err := c.AddFunc(expr, func() { h.run(ctx, job) })
	if err != nil {
		return nil, fmt.Errorf("add cron job: %w", err)
	}
	h.halt = func() { c.Stop() }
	h.next = func() time.Time { return c.Entry(id).Next }

	c.Start()
	h.stopOnDone(ctx)
	log.Info("cron schedule started", "schedule", expr, "next", c.Entry(id).Next)
	return h, nil
}

// StartEvery runs job immediately and then every interval until stopped or
// until ctx is done. Runs never overlap; ticks missed during a long run are
// dropped.
func StartEvery(ctx context.Context, interval time.Duration, job Job, log *slog.Logger) (*Handle, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}

	h := newHandle()
	var (
		mu   sync.Mutex
		next = time.Now()
	)
	setNext := func(t time.Time) {
		mu.Lock()
		next = t
		mu.Unlock()
	}
	h.next = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return next
	}

	ticker := time.NewTicker(interval)
	h.halt = ticker.Stop

	go func() {
		setNext(time.Now().Add(interval))
		h.run(ctx, job)

		for {
			select {
			case <-ctx.Done():
				h.Stop()
				return
			case <-h.quit:
				return
			case t := <-ticker.C:
				setNext(t.Add(interval))
				h.run(ctx, job)
			}
		}
	}()

	log.Info("interval schedule started", "interval", interval)
	return h, nil
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
