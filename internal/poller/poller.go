// Package poller keeps the latest tracking snapshot fresh.
//
// Scheduling is fixed-rate: a fetch starts on every tick regardless of how the
// previous one ended. A tick that fires while a fetch (including its retries)
// is still running is skipped, so requests never overlap.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gpstrack/internal/domain"
)

const (
	DefaultInterval   = 2 * time.Second
	MinInterval       = 500 * time.Millisecond
	MaxInterval       = 30 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
)

// Source fetches one snapshot; endpoint is the optional upstream override
type Source interface {
	Fetch(ctx context.Context, endpoint string) (*domain.Snapshot, error)
}

// Observer receives poll outcomes. Calls are made from the fetch goroutine,
// one at a time, and never after Stop returns.
type Observer interface {
	OnSnapshot(snap *domain.Snapshot)
	OnPollError(err error)
}

type Options struct {
	Interval   time.Duration
	Endpoint   string
	Retries    int
	RetryDelay time.Duration
}

type Poller struct {
	source     Source
	logger     *slog.Logger
	retries    int
	retryDelay time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	state     domain.PollState
	observers []Observer

	refetch    chan struct{}
	reschedule chan struct{}
	inFlight   atomic.Bool
	ready      atomic.Bool

	lifeMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(source Source, opts Options, logger *slog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	return &Poller{
		source:     source,
		logger:     logger.With("component", "poller"),
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		now:        time.Now,
		state: domain.PollState{
			Interval: opts.Interval,
			Endpoint: opts.Endpoint,
		},
		refetch:    make(chan struct{}, 1),
		reschedule: make(chan struct{}, 1),
	}
}

// Subscribe registers an observer; it must be called before Start
func (p *Poller) Subscribe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// Start fetches immediately and then on every interval until ctx is done or
// Stop is called. Starting an already started or stopped poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop cancels the schedule and any in-flight fetch and waits for them to
// exit. It is safe to call more than once, or without Start.
func (p *Poller) Stop() {
	p.lifeMu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.lifeMu.Unlock()

	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	p.trigger(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.trigger(ctx)
		case <-p.refetch:
			p.trigger(ctx)
		case <-p.reschedule:
			interval := p.Interval()
			ticker.Reset(interval)
			p.logger.Info("poll interval changed", "interval", interval)
		}
	}
}

func (p *Poller) trigger(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("fetch still in flight, skipping tick")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		p.poll(ctx)
	}()
}

func (p *Poller) poll(ctx context.Context) {
	p.setFetching(true)
	defer p.setFetching(false)

	var err error
	for attempt := 0; ; attempt++ {
		start := time.Now()

		var snap *domain.Snapshot
		snap, err = p.source.Fetch(ctx, p.Endpoint())
		if err == nil {
			p.onSuccess(ctx, snap, time.Since(start))
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempt >= p.retries {
			break
		}

		p.logger.Debug("fetch failed, retrying", "attempt", attempt+1, "retry_in", p.retryDelay, "error", err)

		timer := time.NewTimer(p.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	p.onFailure(ctx, fmt.Errorf("fetch failed after %d attempts: %w", p.retries+1, err))
}

func (p *Poller) onSuccess(ctx context.Context, snap *domain.Snapshot, took time.Duration) {
	p.mu.Lock()
	p.state.Snapshot = snap
	p.state.Err = nil
	p.state.ErrDismissed = false
	p.state.LastUpdate = p.now()
	p.state.UsingMockData = snap.Synthetic
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()

	if !p.ready.Swap(true) {
		p.logger.Info("poller ready", "features", len(snap.Features), "synthetic", snap.Synthetic)
	}
	p.logger.Debug("poll completed", "features", len(snap.Features), "duration_ms", took.Milliseconds())

	if ctx.Err() != nil {
		return
	}
	for _, o := range observers {
		o.OnSnapshot(snap)
	}
}

func (p *Poller) onFailure(ctx context.Context, err error) {
	p.mu.Lock()
	p.state.Err = err
	p.state.ErrDismissed = false
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()

	p.logger.Error("failed to fetch tracking data", "error", err)

	if ctx.Err() != nil {
		return
	}
	for _, o := range observers {
		o.OnPollError(err)
	}
}

// RefetchNow requests an immediate fetch outside the regular schedule
func (p *Poller) RefetchNow() {
	select {
	case p.refetch <- struct{}{}:
	default:
	}
}

// SetInterval changes the poll interval; the running schedule picks it up
// on its next cycle.
func (p *Poller) SetInterval(d time.Duration) error {
	if d < MinInterval || d > MaxInterval {
		return fmt.Errorf("poll interval %s outside [%s, %s]", d, MinInterval, MaxInterval)
	}

	p.mu.Lock()
	p.state.Interval = d
	p.mu.Unlock()

	select {
	case p.reschedule <- struct{}{}:
	default:
	}
	return nil
}

// SetEndpoint changes the upstream override used from the next fetch on
func (p *Poller) SetEndpoint(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Endpoint = endpoint
}

// DismissError hides the current error until the next failure
func (p *Poller) DismissError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ErrDismissed = true
}

// State returns a copy of the current poll state
func (p *Poller) State() domain.PollState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Poller) Interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Interval
}

func (p *Poller) Endpoint() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Endpoint
}

// IsReady reports whether at least one fetch has succeeded
func (p *Poller) IsReady() bool {
	return p.ready.Load()
}

func (p *Poller) setFetching(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Fetching = v
}
