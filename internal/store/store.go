package store

import (
	"sort"
	"sync"
	"time"

	"gpstrack/internal/domain"
)

type LayerKind string

const (
	LayerTile         LayerKind = "tile"
	LayerPolyline     LayerKind = "polyline"
	LayerCircleMarker LayerKind = "circleMarker"
)

// Layer is one drawable object on the map surface
type Layer struct {
	ID        string          `json:"id"`
	Kind      LayerKind       `json:"kind"`
	Seq       uint64          `json:"seq"`
	Points    []domain.LatLon `json:"points,omitempty"`
	URL       string          `json:"url,omitempty"`
	Style     any             `json:"style,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// View is the camera state of the surface
type View struct {
	Center  domain.LatLon       `json:"center"`
	Zoom    int                 `json:"zoom"`
	MaxZoom int                 `json:"maxZoom"`
	Bounds  *domain.BoundingBox `json:"bounds,omitempty"`
}

// Snapshot is everything a freshly connected browser needs to rebuild the map
type Snapshot struct {
	SurfaceID string  `json:"surfaceId"`
	Layers    []Layer `json:"layers"`
	View      View    `json:"view"`
}

// LayerStore is the registry of layers currently on the surface
type LayerStore struct {
	mu        sync.RWMutex
	surfaceID string
	layers    map[string]*Layer
	byKind    map[LayerKind]map[string]struct{}
	view      View
	seq       uint64
}

func New() *LayerStore {
	return &LayerStore{
		layers: make(map[string]*Layer),
		byKind: make(map[LayerKind]map[string]struct{}),
	}
}

// Reset drops every layer and binds the store to a new surface
func (s *LayerStore) Reset(surfaceID string, view View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.surfaceID = surfaceID
	s.layers = make(map[string]*Layer)
	s.byKind = make(map[LayerKind]map[string]struct{})
	s.view = view
}

// Add stores l, stamping its sequence number and creation time
func (s *LayerStore) Add(l Layer) Layer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	l.Seq = s.seq
	l.CreatedAt = time.Now()

	stored := l
	s.layers[l.ID] = &stored
	if s.byKind[l.Kind] == nil {
		s.byKind[l.Kind] = make(map[string]struct{})
	}
	s.byKind[l.Kind][l.ID] = struct{}{}
	return l
}

// Remove deletes the layer and reports whether it existed
func (s *LayerStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.layers[id]
	if !ok {
		return false
	}
	delete(s.layers, id)
	if s.byKind[l.Kind] != nil {
		delete(s.byKind[l.Kind], id)
		if len(s.byKind[l.Kind]) == 0 {
			delete(s.byKind, l.Kind)
		}
	}
	return true
}

func (s *LayerStore) Get(id string) (Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	if !ok {
		return Layer{}, false
	}
	return *l, true
}

func (s *LayerStore) SetView(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
}

func (s *LayerStore) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Snapshot returns the layers in creation order plus the current view
func (s *LayerStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layers := make([]Layer, 0, len(s.layers))
	for _, l := range s.layers {
		layers = append(layers, *l)
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i].Seq < layers[j].Seq })

	return Snapshot{SurfaceID: s.surfaceID, Layers: layers, View: s.view}
}

func (s *LayerStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers)
}

func (s *LayerStore) CountByKind(kind LayerKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKind[kind])
}
