// Package stats derives trip statistics from a tracking snapshot.
//
// The upstream feed carries positions only, so the speed reported here is a
// heuristic: repeated identical paths ramp the value down to zero, a changed
// path yields a synthetic value in a bounded band. Callers that must not show
// fabricated numbers build the engine with WithSyntheticSpeed(false).
package stats

import (
	"math"
	"math/rand/v2"
	"time"

	"gpstrack/internal/domain"
)

const (
	// StationaryAfter is how long an unchanged path may repeat before the
	// vehicle is reported as stopped.
	StationaryAfter = 10 * time.Second

	decayStartKMH = 15.0

	syntheticBaseKMH      = 35.0
	syntheticAmplitudeKMH = 20.0
	syntheticPeriodMS     = 15000.0
	syntheticJitterKMH    = 10.0
	SyntheticMinKMH       = 5.0
	SyntheticMaxKMH       = 70.0
)

type Engine struct {
	now       func() time.Time
	jitter    func() float64
	synthetic bool
}

type Option func(*Engine)

// WithClock overrides the wall clock used for memo ages and the synthetic band
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithJitter overrides the random source; fn must return values in [0, 1)
func WithJitter(fn func() float64) Option {
	return func(e *Engine) { e.jitter = fn }
}

// WithSyntheticSpeed toggles fabricated speed values. When disabled, moving
// and decaying states report SpeedUnavailable instead.
func WithSyntheticSpeed(enabled bool) Option {
	return func(e *Engine) { e.synthetic = enabled }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		now:       time.Now,
		jitter:    rand.Float64,
		synthetic: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute derives statistics for snap and returns the updated revisit memo.
// It never fails: missing or unusable data yields zeroed stats and leaves rs
// untouched.
func (e *Engine) Compute(snap *domain.Snapshot, rs domain.RevisitState) (domain.DerivedStats, domain.RevisitState) {
	now := e.now()

	if snap == nil || len(snap.Features) == 0 {
		return zeroStats(now, domain.StatusNoGPSData), rs
	}

	feature, ok := snap.LineString()
	if !ok {
		return zeroStats(now, domain.StatusNoRouteData), rs
	}

	path := domain.Normalize(feature.Coordinates)
	out := domain.DerivedStats{
		TotalPoints: len(path),
		DistanceKM:  PathLengthKM(path),
		ComputedAt:  now,
	}
	if last, ok := path.Last(); ok {
		out.CurrentLocation = &last
	}

	serialized := path.Serialize()
	if rs.LastPath == serialized && !rs.ChangedAt.IsZero() {
		out.SpeedKMH, out.Speed = e.repeatSpeed(now.Sub(rs.ChangedAt))
		return out, rs
	}

	out.SpeedKMH, out.Speed = e.movingSpeed(now, len(path))
	return out, domain.RevisitState{LastPath: serialized, ChangedAt: now}
}

func (e *Engine) repeatSpeed(age time.Duration) (float64, domain.SpeedSource) {
	if age > StationaryAfter {
		return 0, domain.SpeedStationary
	}
	if !e.synthetic {
		return 0, domain.SpeedUnavailable
	}
	return math.Max(0, decayStartKMH-age.Seconds()), domain.SpeedDecaying
}

func (e *Engine) movingSpeed(now time.Time, points int) (float64, domain.SpeedSource) {
	if points < 2 {
		return 0, domain.SpeedNone
	}
	if !e.synthetic {
		return 0, domain.SpeedUnavailable
	}
	ms := float64(now.UnixMilli())
	base := syntheticBaseKMH + math.Sin(ms/syntheticPeriodMS)*syntheticAmplitudeKMH
	variation := (e.jitter() - 0.5) * syntheticJitterKMH
	return clamp(base+variation, SyntheticMinKMH, SyntheticMaxKMH), domain.SpeedSynthetic
}

func zeroStats(now time.Time, status string) domain.DerivedStats {
	return domain.DerivedStats{
		ComputedAt: now,
		Speed:      domain.SpeedNone,
		Status:     status,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
