// Package jobs runs background work for the daemon: named periodic jobs that
// are kept unique, and unnamed one-shot jobs. Jobs may require a network
// transport before they run, and jobs that report [Retry] are rescheduled
// with exponential backoff. The Runner is the only component that retries
// whole sync passes.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	otelScope  = "plannersync/jobs"
	spanRun    = "jobs.run"
	metricRuns = "plannersync.jobs.runs"
)

// ErrStopped is returned when work is enqueued on a Runner that is not
// running.
var ErrStopped = errors.New("job runner is not running")

// Func is the unit of work. It must honour ctx cancellation.
type Func func(ctx context.Context) Result

// Constraints gate when a job may run.
type Constraints struct {
	// RequiresNetwork holds the job until a network transport is available.
	RequiresNetwork bool
}

// ExistingPolicy decides what happens when a named job is enqueued while one
// with the same name is still active.
type ExistingPolicy int

const (
	// KeepExisting leaves the active job alone; the new request is dropped.
	KeepExisting ExistingPolicy = iota
	// Replace cancels the active job. The new one starts once the old one
	// has returned.
	Replace
)

// NetworkMonitor reports whether a network transport is available.
// Implemented by [connectivity.Prober].
type NetworkMonitor interface {
	HasNetworkTransport() bool
}

// Config holds Runner settings. Zero values get defaults.
type Config struct {
	Network NetworkMonitor // required when jobs use RequiresNetwork
	Logger  *slog.Logger

	InitialBackoff  time.Duration // default: 30s
	MaxBackoff      time.Duration // default: 5h
	ConstraintCheck time.Duration // how often unmet constraints are re-checked (default: 30s)
}

// Runner executes jobs on background goroutines. Create one with
// [NewRunner], then [Runner.Start] it.
type Runner struct {
	network         NetworkMonitor
	log             *slog.Logger
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	constraintCheck time.Duration

	tracer  trace.Tracer
	cntRuns metric.Int64Counter

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	named   map[string]*Handle
	wg      sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Hour
	}
	if cfg.ConstraintCheck <= 0 {
		cfg.ConstraintCheck = 30 * time.Second
	}

	cnt, err := otel.Meter(otelScope).Int64Counter(metricRuns,
		metric.WithDescription("Number of background job runs by outcome"))
	if err != nil {
		logger.Error("creating OTel counter", "name", metricRuns, "error", err)
		cnt = noop.Int64Counter{}
	}

	return &Runner{
		network:         cfg.Network,
		log:             logger,
		initialBackoff:  cfg.InitialBackoff,
		maxBackoff:      cfg.MaxBackoff,
		constraintCheck: cfg.ConstraintCheck,
		tracer:          otel.Tracer(otelScope),
		cntRuns:         cnt,
		named:           make(map[string]*Handle),
	}
}

// Start lets the Runner accept jobs. Jobs run until Stop is called or ctx is
// cancelled. Starting a running Runner is a no-op.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.log.Info("job runner started")
	return nil
}

// Stop cancels every job and waits for their goroutines to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("job runner stopped")
}

// EnqueueUniquePeriodic registers fn to run every interval under name. The
// first run is immediate. Runs of the same name never overlap. It reports
// whether a new job was scheduled; with [KeepExisting] an active job of the
// same name is returned instead.
func (r *Runner) EnqueueUniquePeriodic(name string, interval time.Duration, c Constraints, policy ExistingPolicy, fn Func) (*Handle, bool, error) {
	if name == "" {
		return nil, false, errors.New("periodic job needs a name")
	}
	if interval <= 0 {
		return nil, false, fmt.Errorf("periodic job %q: interval must be positive", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil, false, ErrStopped
	}

	prev := r.named[name]
	if prev != nil && policy == KeepExisting {
		r.log.Debug("periodic job already scheduled", "job", name, "id", prev.ID)
		return prev, false, nil
	}
	if prev != nil {
		prev.cancel()
	}

	h := r.newHandle(name)
	r.named[name] = h
	r.wg.Add(1)
	go r.run(h, prev, interval, c, fn)

	r.log.Info("periodic job scheduled", "job", name, "id", h.ID, "interval", interval)
	return h, true, nil
}

// EnqueueOnce schedules fn to run once as soon as its constraints are met.
// It runs independently of any periodic job.
func (r *Runner) EnqueueOnce(c Constraints, fn Func) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil, ErrStopped
	}

	h := r.newHandle("")
	r.wg.Add(1)
	go r.run(h, nil, 0, c, fn)

	r.log.Debug("one-shot job enqueued", "id", h.ID)
	return h, nil
}

// Cancel stops the named periodic job. It reports whether one was active.
func (r *Runner) Cancel(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.named[name]
	if ok {
		h.cancel()
		delete(r.named, name)
	}
	return ok
}

func (r *Runner) newHandle(name string) *Handle {
	ctx, cancel := context.WithCancel(r.ctx)
	return &Handle{
		ID:     uuid.NewString(),
		Name:   name,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// run drives one job until it finishes or is cancelled. interval is zero for
// one-shot jobs.
func (r *Runner) run(h *Handle, prev *Handle, interval time.Duration, c Constraints, fn Func) {
	defer r.wg.Done()
	defer close(h.done)
	defer r.forget(h)
	defer h.cancel()

	ctx := h.ctx
	log := r.log.With("job", h.label(), "id", h.ID)

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			return
		}
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.initialBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          2,
		MaxInterval:         r.maxBackoff,
	}
	b.Reset()

	for {
		if !r.awaitConstraints(ctx, c, log) {
			return
		}

		res := r.execute(ctx, h, fn)

		var wait time.Duration
		switch res := res.(type) {
		case Success:
			b.Reset()
			wait = interval
		case Failure:
			log.Warn("job failed", "error", res.Err)
			b.Reset()
			wait = interval
		case Retry:
			wait = b.NextBackOff()
			log.Info("job will retry", "in", wait.Round(time.Millisecond), "error", res.Err)
		}

		if wait == 0 {
			return // one-shot finished
		}
		if !sleep(ctx, wait) {
			return
		}
	}
}

// execute runs fn once, converting a panic into a Failure.
func (r *Runner) execute(ctx context.Context, h *Handle, fn Func) (res Result) {
	ctx, span := r.tracer.Start(ctx, spanRun, trace.WithAttributes(
		attribute.String("job.name", h.label()),
		attribute.String("job.id", h.ID),
	))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			res = Failure{Err: fmt.Errorf("job panicked: %v", p)}
		}
		if res == nil {
			res = Failure{Err: errors.New("job returned no result")}
		}
		label := outcome(res)
		span.SetAttributes(attribute.String("job.outcome", label))
		r.cntRuns.Add(ctx, 1, metric.WithAttributes(
			attribute.String("job", h.label()),
			attribute.String("outcome", label),
		))
		h.record(res)
	}()

	return fn(ctx)
}

// awaitConstraints blocks until c is satisfied. It returns false when ctx is
// cancelled first.
func (r *Runner) awaitConstraints(ctx context.Context, c Constraints, log *slog.Logger) bool {
	if !c.RequiresNetwork || r.network == nil {
		return ctx.Err() == nil
	}
	waiting := false
	for {
		if ctx.Err() != nil {
			return false
		}
		if r.network.HasNetworkTransport() {
			return true
		}
		if !waiting {
			log.Debug("waiting for network")
			waiting = true
		}
		if !sleep(ctx, r.constraintCheck) {
			return false
		}
	}
}

func (r *Runner) forget(h *Handle) {
	if h.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.named[h.Name] == h {
		delete(r.named, h.Name)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
