// Package geocode turns the vehicle's current position into a display address.
//
// Resolver debounces position changes and keeps at most one lookup in flight.
// Every change bumps a token; a lookup may only publish its result while its
// token is still current, so a slow superseded request can never overwrite a
// newer address.
package geocode

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gpstrack/internal/cache"
	"gpstrack/internal/domain"
)

const (
	AddressLoading     = "Loading address..."
	AddressNoLocation  = "No location data"
	AddressInvalid     = "Invalid coordinates"
	AddressNotFound    = "Address not found"
	AddressUnavailable = "Unable to fetch address"

	DefaultDebounce = time.Second
)

// Geocoder resolves coordinates into a place name
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// AddressCache stores resolved addresses by cache.KeyAddress
type AddressCache interface {
	GetAddress(ctx context.Context, key string) (string, bool, error)
	SetAddress(ctx context.Context, key, address string) error
}

type CacheMetrics interface {
	IncCacheHits()
	IncCacheMisses()
}

type Resolver struct {
	geocoder Geocoder
	cache    AddressCache
	metrics  CacheMetrics
	debounce time.Duration
	timeout  time.Duration
	onChange func(address string)
	logger   *slog.Logger

	mu       sync.Mutex
	notifyMu sync.Mutex
	token    uint64
	seen     bool
	last     *domain.LatLon
	address  string
	loading  bool
	timer    *time.Timer
	cancelFn context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
}

type Option func(*Resolver)

func WithDebounce(d time.Duration) Option {
	return func(r *Resolver) { r.debounce = d }
}

func WithCache(c AddressCache) Option {
	return func(r *Resolver) { r.cache = c }
}

func WithCacheMetrics(m CacheMetrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithOnChange registers a callback fired whenever the visible address changes.
// Callbacks are serialized and never run after Close returns.
func WithOnChange(fn func(address string)) Option {
	return func(r *Resolver) { r.onChange = fn }
}

func NewResolver(g Geocoder, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		geocoder: g,
		debounce: DefaultDebounce,
		timeout:  10 * time.Second,
		address:  AddressLoading,
		logger:   logger.With("component", "address_resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve performs one fail-open lookup. It never returns an error; failures
// map to fixed placeholder strings.
func (r *Resolver) Resolve(ctx context.Context, pos *domain.LatLon) string {
	if pos == nil {
		return AddressNoLocation
	}
	if pos.IsZero() {
		return AddressInvalid
	}

	key := cache.KeyAddress(pos.Lat, pos.Lon)
	if r.cache != nil {
		if addr, ok, err := r.cache.GetAddress(ctx, key); err == nil && ok {
			r.countCache(true)
			return addr
		}
		r.countCache(false)
	}

	addr, err := r.geocoder.Reverse(ctx, pos.Lat, pos.Lon)
	switch {
	case errors.Is(err, ErrAddressNotFound):
		return AddressNotFound
	case err != nil:
		if ctx.Err() == nil {
			r.logger.Warn("address lookup failed", "lat", pos.Lat, "lon", pos.Lon, "error", err)
		}
		return AddressUnavailable
	}

	if r.cache != nil {
		if err := r.cache.SetAddress(ctx, key, addr); err != nil {
			r.logger.Debug("failed to cache address", "key", key, "error", err)
		}
	}
	return addr
}

func (r *Resolver) countCache(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.IncCacheHits()
	} else {
		r.metrics.IncCacheMisses()
	}
}

// Update schedules a lookup for pos after the debounce delay. Calls with the
// same position as the previous call are ignored.
func (r *Resolver) Update(pos *domain.LatLon) {
	r.mu.Lock()
	if r.closed || (r.seen && samePosition(r.last, pos)) {
		r.mu.Unlock()
		return
	}
	r.seen = true
	r.last = clonePos(pos)
	r.supersedeLocked()

	var changed bool
	switch {
	case pos == nil:
		changed = r.setLocked(AddressNoLocation)
	case pos.IsZero():
		changed = r.setLocked(AddressInvalid)
	default:
		token := r.token
		target := *pos
		r.loading = true
		r.timer = time.AfterFunc(r.debounce, func() { r.lookup(token, target) })
	}
	r.mu.Unlock()

	if changed {
		r.notify()
	}
}

func (r *Resolver) lookup(token uint64, pos domain.LatLon) {
	r.mu.Lock()
	if r.closed || token != r.token {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	r.cancelFn = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	defer r.wg.Done()
	defer cancel()

	addr := r.Resolve(ctx, &pos)

	r.mu.Lock()
	if r.closed || token != r.token {
		r.mu.Unlock()
		r.logger.Debug("discarding superseded address lookup", "lat", pos.Lat, "lon", pos.Lon)
		return
	}
	r.cancelFn = nil
	r.loading = false
	changed := r.setLocked(addr)
	r.mu.Unlock()

	if changed {
		r.notify()
	}
}

// supersedeLocked invalidates the pending timer and any in-flight lookup
func (r *Resolver) supersedeLocked() {
	r.token++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.cancelFn != nil {
		r.cancelFn()
		r.cancelFn = nil
	}
	r.loading = false
}

func (r *Resolver) setLocked(addr string) bool {
	if addr == r.address {
		return false
	}
	r.address = addr
	return true
}

// notify publishes the latest visible address rather than the value that
// triggered it, so callbacks racing each other still end on the newest one.
func (r *Resolver) notify() {
	if r.onChange == nil {
		return
	}
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	closed, addr := r.closed, r.address
	r.mu.Unlock()
	if closed {
		return
	}
	r.onChange(addr)
}

// Address returns the currently visible address
func (r *Resolver) Address() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.address
}

func (r *Resolver) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Close cancels the pending timer and in-flight lookup. It is safe to call
// more than once.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.supersedeLocked()
	r.mu.Unlock()

	r.wg.Wait()
	// wait out a callback that passed its closed check before we got here
	r.notifyMu.Lock()
	r.notifyMu.Unlock()
}

func samePosition(a, b *domain.LatLon) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func clonePos(p *domain.LatLon) *domain.LatLon {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
