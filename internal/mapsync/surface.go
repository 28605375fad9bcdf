package mapsync

import (
	"errors"

	"gpstrack/internal/domain"
)

// ErrSurfaceUnavailable is returned while the surface's container is not ready.
// The engine treats it as transient and retries on the next sync.
var ErrSurfaceUnavailable = errors.New("render surface unavailable")

// LayerID is an opaque handle to something drawn on a surface
type LayerID string

type Padding struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// View is the initial camera and base layer of a surface
type View struct {
	Center      domain.LatLon
	Zoom        int
	MaxZoom     int
	TileURL     string
	Attribution string
}

type PathStyle struct {
	Color   string  `json:"color"`
	Weight  int     `json:"weight"`
	Opacity float64 `json:"opacity"`
}

type MarkerStyle struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
	Weight      int     `json:"weight"`
	Radius      int     `json:"radius"`
	Interactive bool    `json:"interactive"`
	ClassName   string  `json:"className,omitempty"`
}

// Surface is an imperative drawing target. Handles returned by the Add
// methods stay valid until passed to RemoveLayer or the surface is destroyed.
type Surface interface {
	AddPolyline(path domain.Path, style PathStyle) (LayerID, error)
	AddCircleMarker(at domain.LatLon, style MarkerStyle) (LayerID, error)
	// RemoveLayer is a no-op for unknown or already removed handles
	RemoveLayer(id LayerID)
	FitBounds(bounds domain.BoundingBox, padding Padding) error
	Destroy()
}

type SurfaceFactory interface {
	Create(container string, view View) (Surface, error)
}

var (
	DefaultView = View{
		Center:      domain.LatLon{Lat: 37.7749, Lon: -122.4194},
		Zoom:        13,
		MaxZoom:     19,
		TileURL:     "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "© OpenStreetMap contributors",
	}

	DefaultPadding = Padding{X: 20, Y: 20}

	TrackStyle = PathStyle{Color: "#2563EB", Weight: 4, Opacity: 0.8}

	StartMarkerStyle = MarkerStyle{
		Color:       "white",
		FillColor:   "#10B981",
		FillOpacity: 1,
		Weight:      3,
		Radius:      8,
		Interactive: true,
	}

	// LiveMarkerStyle must not capture pointer events meant for the map
	LiveMarkerStyle = MarkerStyle{
		Color:       "white",
		FillColor:   "#2563EB",
		FillOpacity: 1,
		Weight:      3,
		Radius:      10,
		Interactive: false,
		ClassName:   "animate-pulse",
	}
)
