// Package dispatch runs units of work on a fixed pool of worker goroutines.
//
// Every native engine call goes through a Dispatcher so the number of
// goroutines touching the engine at once is bounded by the pool size,
// regardless of how many callers use the SDK. Submit blocks the caller until
// its task has run. Shutdown stops admission; tasks already admitted drain
// before the workers exit.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/telemetry"
	"github.com/google/uuid"
)

// Task outcomes recorded in metrics.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomePanic     = "panic"
	OutcomeAbandoned = "abandoned"
)

type result struct {
	value any
	err   error
}

type job struct {
	id       string
	ctx      context.Context
	run      func(ctx context.Context) (any, error)
	done     chan result
	queuedAt time.Time
}

// Dispatcher owns the worker pool.
type Dispatcher struct {
	workers int
	tasks   chan *job

	// mu guards closed. Submitters hold the read lock while enqueueing so
	// Shutdown can close the queue safely.
	mu     sync.RWMutex
	closed bool

	wg   sync.WaitGroup
	done chan struct{}

	queued   atomic.Int64
	inFlight atomic.Int64

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	name    string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithName labels the pool in logs and metrics.
func WithName(name string) Option {
	return func(d *Dispatcher) {
		d.name = name
	}
}

// New starts a pool of workers goroutines. workers must be at least 1.
func New(workers int, opts ...Option) (*Dispatcher, error) {
	if workers < 1 {
		return nil, failure.InvalidArgument(fmt.Sprintf("worker count must be at least 1, got %d", workers), nil)
	}

	d := &Dispatcher{
		workers: workers,
		tasks:   make(chan *job, workers),
		done:    make(chan struct{}),
		logger:  telemetry.NewNopLogger(),
		name:    "default",
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.NewComponentLogger("dispatch").WithField("pool", d.name)

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker(i)
	}
	go func() {
		d.wg.Wait()
		close(d.done)
	}()

	d.logger.Debugf("started %d workers", workers)
	return d, nil
}

// Submit runs task on the pool and blocks until it completes. The context
// passed to task carries the values of ctx but is never cancelled, since
// native calls cannot be interrupted.
//
// It fails with an illegal-state failure once the dispatcher is shut down,
// without touching the pool. A failure returned by the task is passed
// through unchanged. A panic inside the task, or ctx ending before the task
// finishes, is reported as an internal failure.
func Submit[T any](ctx context.Context, d *Dispatcher, task func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := d.submit(ctx, func(ctx context.Context) (any, error) {
		return task(ctx)
	})
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, failure.Internal(fmt.Sprintf("dispatched task returned %T", v), nil)
	}
	return out, nil
}

// Do runs a task that produces no value.
func Do(ctx context.Context, d *Dispatcher, task func(ctx context.Context) error) error {
	_, err := Submit(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task(ctx)
	})
	return err
}

func (d *Dispatcher) submit(ctx context.Context, run func(ctx context.Context) (any, error)) (any, error) {
	j := &job{
		id:       uuid.New().String(),
		ctx:      ctx,
		run:      run,
		done:     make(chan result, 1),
		queuedAt: time.Now(),
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, failure.IllegalState("dispatcher is shut down")
	}
	d.metrics.SetDispatchQueueDepth(d.name, d.queued.Add(1))
	select {
	case d.tasks <- j:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		d.metrics.SetDispatchQueueDepth(d.name, d.queued.Add(-1))
		d.metrics.RecordDispatchTask(d.name, OutcomeAbandoned, 0)
		return nil, failure.Internal("submission abandoned before admission", ctx.Err())
	}

	select {
	case res := <-j.done:
		return res.value, res.err
	case <-ctx.Done():
		d.logger.WithField("task_id", j.id).Warn("caller stopped waiting for dispatched task")
		return nil, failure.Internal("wait for dispatched task abandoned", ctx.Err())
	}
}

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()
	for j := range d.tasks {
		d.metrics.SetDispatchQueueDepth(d.name, d.queued.Add(-1))
		d.execute(j)
	}
	d.logger.Tracef("worker %d exiting", n)
}

func (d *Dispatcher) execute(j *job) {
	log := d.logger.WithField("task_id", j.id)

	if j.ctx.Err() != nil {
		j.done <- result{err: failure.Internal("dispatched task abandoned before start", j.ctx.Err())}
		d.metrics.RecordDispatchTask(d.name, OutcomeAbandoned, 0)
		return
	}

	d.metrics.SetDispatchInFlight(d.name, d.inFlight.Add(1))
	start := time.Now()
	outcome := OutcomeOK

	var res result
	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome = OutcomePanic
				res = result{err: failure.Internal("dispatched task panicked", fmt.Errorf("panic: %v", r))}
				log.Errorf("dispatched task panicked: %v", r)
			}
		}()
		v, err := j.run(context.WithoutCancel(j.ctx))
		res = result{value: v, err: err}
		if err != nil {
			outcome = OutcomeFailed
		}
	}()

	elapsed := time.Since(start)
	d.metrics.SetDispatchInFlight(d.name, d.inFlight.Add(-1))
	d.metrics.RecordDispatchTask(d.name, outcome, elapsed)
	log.Tracef("task finished outcome=%s wait=%s run=%s", outcome, start.Sub(j.queuedAt), elapsed)

	j.done <- res
}

// Shutdown stops accepting submissions. Tasks already admitted still run.
// It is safe to call more than once.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.tasks)
	d.logger.Debug("dispatcher shut down, draining admitted tasks")
}

// Wait blocks until every worker has exited or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return failure.Internal("waiting for dispatcher to drain", ctx.Err())
	}
}

// Closed reports whether Shutdown has been called.
func (d *Dispatcher) Closed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Workers returns the pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Queued returns the number of tasks submitted but not yet picked up.
func (d *Dispatcher) Queued() int64 {
	return d.queued.Load()
}

// InFlight returns the number of tasks currently running.
func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}
