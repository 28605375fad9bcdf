package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpstrack/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 13, 13, 0, 0, 0, time.UTC)}
}

func lineSnapshot(coords ...[2]float64) *domain.Snapshot {
	return &domain.Snapshot{Features: []domain.Feature{{
		GeometryType: domain.GeometryLineString,
		Coordinates:  coords,
	}}}
}

// sfRoute is the built-in demo route, [lon, lat]
var sfRoute = [][2]float64{
	{-122.4194, 37.7749}, {-122.4180, 37.7750}, {-122.4170, 37.7755},
	{-122.4160, 37.7760}, {-122.4150, 37.7765}, {-122.4140, 37.7770},
	{-122.4130, 37.7775}, {-122.4120, 37.7780}, {-122.4110, 37.7785},
	{-122.4100, 37.7790},
}

func referenceHaversine(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return r * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func TestCompute_EmptyInputs(t *testing.T) {
	clock := newClock()
	e := New(WithClock(clock.Now))
	memo := domain.RevisitState{LastPath: "[[1,2]]", ChangedAt: clock.t}

	cases := []struct {
		name   string
		snap   *domain.Snapshot
		status string
	}{
		{"nil snapshot", nil, domain.StatusNoGPSData},
		{"no features", &domain.Snapshot{}, domain.StatusNoGPSData},
		{"no line string", &domain.Snapshot{Features: []domain.Feature{{GeometryType: "Point", Coordinates: [][2]float64{{1, 2}}}}}, domain.StatusNoRouteData},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, rs := e.Compute(tc.snap, memo)
			assert.Equal(t, 0, got.TotalPoints)
			assert.Equal(t, "0 km", got.DistanceText())
			assert.Nil(t, got.CurrentLocation)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, clock.t, got.ComputedAt)
			assert.Equal(t, memo, rs)
		})
	}
}

func TestCompute_DistanceMatchesReference(t *testing.T) {
	e := New(WithClock(newClock().Now))
	got, _ := e.Compute(lineSnapshot(sfRoute...), domain.RevisitState{})

	var want float64
	for i := 1; i < len(sfRoute); i++ {
		want += referenceHaversine(sfRoute[i-1][1], sfRoute[i-1][0], sfRoute[i][1], sfRoute[i][0])
	}

	require.Equal(t, 10, got.TotalPoints)
	assert.InEpsilon(t, want, got.DistanceKM, 1e-6)
	require.NotNil(t, got.CurrentLocation)
	assert.Equal(t, domain.LatLon{Lat: 37.7790, Lon: -122.4100}, *got.CurrentLocation)
}

func TestCompute_SingleAndEmptyPathHaveNoDistance(t *testing.T) {
	e := New(WithClock(newClock().Now))

	single, _ := e.Compute(lineSnapshot([2]float64{10, 20}), domain.RevisitState{})
	assert.Equal(t, 1, single.TotalPoints)
	assert.Zero(t, single.DistanceKM)
	assert.Equal(t, domain.SpeedNone, single.Speed)

	empty, _ := e.Compute(lineSnapshot(), domain.RevisitState{})
	assert.Equal(t, 0, empty.TotalPoints)
	assert.Zero(t, empty.DistanceKM)
	assert.Nil(t, empty.CurrentLocation)
}

func TestCompute_StraightLineDistance(t *testing.T) {
	// ten points along the equator, 0.01 degrees apart
	coords := make([][2]float64, 10)
	for i := range coords {
		coords[i] = [2]float64{float64(i) * 0.01, 0}
	}
	wantKM := 0.09 * math.Pi / 180 * EarthRadiusKM

	got, _ := New(WithClock(newClock().Now)).Compute(lineSnapshot(coords...), domain.RevisitState{})

	assert.InEpsilon(t, wantKM, got.DistanceKM, 0.005)
	require.NotNil(t, got.CurrentLocation)
	assert.Equal(t, domain.LatLon{Lat: 0, Lon: 0.09}, *got.CurrentLocation)
}

func TestCompute_ChangedPathIsSyntheticAndUpdatesMemo(t *testing.T) {
	clock := newClock()
	e := New(WithClock(clock.Now), WithJitter(func() float64 { return 0.5 }))

	got, rs := e.Compute(lineSnapshot(sfRoute...), domain.RevisitState{})

	assert.Equal(t, domain.SpeedSynthetic, got.Speed)
	assert.GreaterOrEqual(t, got.SpeedKMH, SyntheticMinKMH)
	assert.LessOrEqual(t, got.SpeedKMH, SyntheticMaxKMH)
	assert.Equal(t, clock.t, rs.ChangedAt)
	assert.Equal(t, domain.Normalize(sfRoute).Serialize(), rs.LastPath)
}

func TestCompute_SyntheticSpeedStaysInBand(t *testing.T) {
	clock := newClock()
	for _, jitter := range []float64{0, 0.25, 0.5, 0.999} {
		e := New(WithClock(clock.Now), WithJitter(func() float64 { return jitter }))
		for i := 0; i < 40; i++ {
			clock.Advance(1700 * time.Millisecond)
			got, _ := e.Compute(lineSnapshot(sfRoute...), domain.RevisitState{})
			assert.GreaterOrEqual(t, got.SpeedKMH, SyntheticMinKMH)
			assert.LessOrEqual(t, got.SpeedKMH, SyntheticMaxKMH)
		}
	}
}

func TestCompute_RepeatedPathDecaysToZero(t *testing.T) {
	clock := newClock()
	e := New(WithClock(clock.Now))
	snap := lineSnapshot(sfRoute...)

	_, rs := e.Compute(snap, domain.RevisitState{})
	memo := rs

	prev := math.Inf(1)
	for i := 0; i < 5; i++ {
		clock.Advance(2 * time.Second)
		got, next := e.Compute(snap, rs)
		assert.Equal(t, memo, next, "memo must not move while the path repeats")
		assert.Equal(t, domain.SpeedDecaying, got.Speed)
		assert.LessOrEqual(t, got.SpeedKMH, prev)
		assert.InDelta(t, 15-float64(2*(i+1)), got.SpeedKMH, 1e-9)
		prev = got.SpeedKMH
		rs = next
	}

	clock.Advance(1 * time.Second)
	got, _ := e.Compute(snap, rs)
	assert.Equal(t, domain.SpeedStationary, got.Speed)
	assert.Equal(t, 0.0, got.SpeedKMH)
	assert.Equal(t, "0 km/h", got.SpeedText())
}

func TestCompute_HonestModeNeverFabricates(t *testing.T) {
	clock := newClock()
	e := New(WithClock(clock.Now), WithSyntheticSpeed(false))
	snap := lineSnapshot(sfRoute...)

	got, rs := e.Compute(snap, domain.RevisitState{})
	assert.Equal(t, domain.SpeedUnavailable, got.Speed)
	assert.Equal(t, "n/a", got.SpeedText())

	clock.Advance(3 * time.Second)
	got, rs = e.Compute(snap, rs)
	assert.Equal(t, domain.SpeedUnavailable, got.Speed)

	clock.Advance(11 * time.Second)
	got, _ = e.Compute(snap, rs)
	assert.Equal(t, domain.SpeedStationary, got.Speed)
}

func TestDistanceText(t *testing.T) {
	assert.Equal(t, "0 km", domain.DerivedStats{}.DistanceText())
	assert.Equal(t, "0.0 km", domain.DerivedStats{TotalPoints: 1}.DistanceText())
	assert.Equal(t, "1.2 km", domain.DerivedStats{TotalPoints: 3, DistanceKM: 1.234}.DistanceText())
}
