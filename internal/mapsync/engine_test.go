package mapsync

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpstrack/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSurface struct {
	next      int
	polylines map[LayerID]domain.Path
	markers   map[LayerID]MarkerStyle
	fits      int
	destroyed bool
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		polylines: map[LayerID]domain.Path{},
		markers:   map[LayerID]MarkerStyle{},
	}
}

func (s *fakeSurface) id() LayerID {
	s.next++
	return LayerID(fmt.Sprintf("layer-%d", s.next))
}

func (s *fakeSurface) AddPolyline(path domain.Path, _ PathStyle) (LayerID, error) {
	id := s.id()
	s.polylines[id] = path
	return id, nil
}

func (s *fakeSurface) AddCircleMarker(_ domain.LatLon, style MarkerStyle) (LayerID, error) {
	id := s.id()
	s.markers[id] = style
	return id, nil
}

func (s *fakeSurface) RemoveLayer(id LayerID) {
	delete(s.polylines, id)
	delete(s.markers, id)
}

func (s *fakeSurface) FitBounds(domain.BoundingBox, Padding) error {
	s.fits++
	return nil
}

func (s *fakeSurface) Destroy() { s.destroyed = true }

type fakeFactory struct {
	failures int
	created  []*fakeSurface
}

func (f *fakeFactory) Create(string, View) (Surface, error) {
	if f.failures > 0 {
		f.failures--
		return nil, ErrSurfaceUnavailable
	}
	s := newFakeSurface()
	f.created = append(f.created, s)
	return s, nil
}

func snapshotOf(coords ...[2]float64) *domain.Snapshot {
	return &domain.Snapshot{Features: []domain.Feature{{
		GeometryType: domain.GeometryLineString,
		Coordinates:  coords,
	}}}
}

func TestEngine_ReplacesLayersOnEverySync(t *testing.T) {
	f := &fakeFactory{}
	e := New(f, "map", discard)

	e.Sync(snapshotOf([2]float64{-122.41, 37.77}, [2]float64{-122.42, 37.78}))
	e.Sync(snapshotOf([2]float64{-122.41, 37.77}, [2]float64{-122.42, 37.78}, [2]float64{-122.43, 37.79}))

	require.Len(t, f.created, 1)
	s := f.created[0]
	require.Len(t, s.polylines, 1)
	assert.LessOrEqual(t, len(s.markers), 2)
	for _, p := range s.polylines {
		assert.Len(t, p, 3)
	}
}

func TestEngine_FitsViewOnlyOnce(t *testing.T) {
	f := &fakeFactory{}
	e := New(f, "map", discard)

	for i := 0; i < 5; i++ {
		e.Sync(snapshotOf([2]float64{-122.41, 37.77}, [2]float64{-122.42 - float64(i)*0.01, 37.78}))
	}

	assert.Equal(t, 1, f.created[0].fits)
	assert.True(t, e.Framed())
}

func TestEngine_SinglePointHasNoLiveMarker(t *testing.T) {
	f := &fakeFactory{}
	e := New(f, "map", discard)

	e.Sync(snapshotOf([2]float64{-122.41, 37.77}))

	s := f.created[0]
	require.Len(t, s.markers, 1)
	for _, style := range s.markers {
		assert.Equal(t, StartMarkerStyle, style)
	}
}

func TestEngine_EmptySnapshotClearsSurface(t *testing.T) {
	f := &fakeFactory{}
	e := New(f, "map", discard)

	e.Sync(snapshotOf([2]float64{-122.41, 37.77}, [2]float64{-122.42, 37.78}))
	e.Sync(&domain.Snapshot{})
	e.Sync(nil)

	s := f.created[0]
	assert.Empty(t, s.polylines)
	assert.Empty(t, s.markers)
	assert.Equal(t, 1, s.fits)
}

func TestEngine_RetriesInitWithoutDuplicateSurface(t *testing.T) {
	f := &fakeFactory{failures: 2}
	e := New(f, "map", discard)

	assert.False(t, e.Init())
	e.Sync(snapshotOf([2]float64{-122.41, 37.77}))
	assert.False(t, e.Ready())

	e.Sync(snapshotOf([2]float64{-122.41, 37.77}))
	assert.True(t, e.Ready())
	assert.True(t, e.Init())
	e.Sync(snapshotOf([2]float64{-122.41, 37.77}))

	assert.Len(t, f.created, 1)
}

func TestEngine_CloseWithoutInit(t *testing.T) {
	f := &fakeFactory{}
	e := New(f, "map", discard)

	assert.NotPanics(t, func() {
		e.Close()
		e.Close()
	})
	e.Sync(snapshotOf([2]float64{-122.41, 37.77}))
	assert.Empty(t, f.created)
}

func TestEngine_CloseDestroysSurface(t *testing.T) {
	f := &fakeFactory{}
	e := New(f, "map", discard)
	e.Sync(snapshotOf([2]float64{-122.41, 37.77}, [2]float64{-122.42, 37.78}))

	e.Close()

	s := f.created[0]
	assert.True(t, s.destroyed)
	assert.Empty(t, s.polylines)
	assert.False(t, e.Ready())
}
