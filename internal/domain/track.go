package domain

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"
)

// GeometryLineString is the only geometry kind the pipeline draws or measures.
const GeometryLineString = "LineString"

// LatLon is a position in (latitude, longitude) order
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports the degenerate (0,0) position upstream sends when it has no fix
func (p LatLon) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// Path is a normalized, chronologically ordered sequence of positions
type Path []LatLon

// First returns the oldest position of the path
func (p Path) First() (LatLon, bool) {
	if len(p) == 0 {
		return LatLon{}, false
	}
	return p[0], true
}

// Last returns the most recent position of the path
func (p Path) Last() (LatLon, bool) {
	if len(p) == 0 {
		return LatLon{}, false
	}
	return p[len(p)-1], true
}

// Serialize renders the path as [[lat,lon],...] for change detection
func (p Path) Serialize() string {
	pairs := make([][2]float64, len(p))
	for i, pt := range p {
		pairs[i] = [2]float64{pt.Lat, pt.Lon}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return ""
	}
	return string(data)
}

// LineString converts the path back to an orb line in [lon, lat] order
func (p Path) LineString() orb.LineString {
	ls := make(orb.LineString, len(p))
	for i, pt := range p {
		ls[i] = orb.Point{pt.Lon, pt.Lat}
	}
	return ls
}

// Bounds returns the bounding box covering every point of the path
func (p Path) Bounds() (BoundingBox, bool) {
	if len(p) == 0 {
		return BoundingBox{}, false
	}
	b := p.LineString().Bound()
	return BoundingBox{
		MinLat: b.Min.Lat(), MaxLat: b.Max.Lat(),
		MinLon: b.Min.Lon(), MaxLon: b.Max.Lon(),
	}, true
}

// Feature is one geographic feature of a tracking payload.
// Coordinates keep the upstream [longitude, latitude] order.
type Feature struct {
	GeometryType string         `json:"geometryType"`
	Coordinates  [][2]float64   `json:"coordinates"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// Snapshot is one fetched tracking payload. It is never modified after
// construction; the next fetch replaces it.
type Snapshot struct {
	Features  []Feature `json:"features"`
	FetchedAt time.Time `json:"fetchedAt"`
	Synthetic bool      `json:"synthetic"`
}

// LineString returns the first LineString feature of the snapshot
func (s *Snapshot) LineString() (*Feature, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Features {
		if s.Features[i].GeometryType == GeometryLineString {
			return &s.Features[i], true
		}
	}
	return nil, false
}

// Path returns the normalized path of the snapshot's LineString, or nil
func (s *Snapshot) Path() Path {
	f, ok := s.LineString()
	if !ok {
		return nil
	}
	return Normalize(f.Coordinates)
}

// Normalize swaps [lon, lat] pairs into (lat, lon) order
func Normalize(coords [][2]float64) Path {
	path := make(Path, len(coords))
	for i, c := range coords {
		path[i] = LatLon{Lat: c[1], Lon: c[0]}
	}
	return path
}

// BoundingBox represents a geographic rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Center returns the midpoint of the box
func (bb BoundingBox) Center() LatLon {
	return LatLon{Lat: (bb.MinLat + bb.MaxLat) / 2, Lon: (bb.MinLon + bb.MaxLon) / 2}
}

// Contains checks if a point is within the bounding box
func (bb BoundingBox) Contains(lat, lon float64) bool {
	return lat >= bb.MinLat && lat <= bb.MaxLat &&
		lon >= bb.MinLon && lon <= bb.MaxLon
}
