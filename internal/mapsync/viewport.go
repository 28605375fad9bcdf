package mapsync

import (
	"math"

	"gpstrack/internal/domain"
)

const (
	tileSize = 256
	// Web Mercator is undefined at the poles
	maxMercatorLat = 85.05112878
)

// Viewport is the on-screen size of the map in pixels
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// project converts a position to world pixel coordinates at zoom
func project(p domain.LatLon, zoom int) (x, y float64) {
	scale := tileSize * math.Pow(2, float64(zoom))
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Lat))
	latRad := lat * math.Pi / 180.0

	x = (p.Lon + 180.0) / 360.0 * scale
	y = (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * scale
	return x, y
}

func unproject(x, y float64, zoom int) domain.LatLon {
	scale := tileSize * math.Pow(2, float64(zoom))
	lon := x/scale*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/scale)))
	return domain.LatLon{Lat: latRad * 180.0 / math.Pi, Lon: lon}
}

// FitView returns the center and the largest zoom, capped at maxZoom, at
// which bounds fit inside vp minus padding on every side.
func FitView(bounds domain.BoundingBox, vp Viewport, pad Padding, maxZoom int) (domain.LatLon, int) {
	availW := float64(vp.Width - 2*pad.X)
	availH := float64(vp.Height - 2*pad.Y)

	zoom := 0
	for z := maxZoom; z >= 0; z-- {
		if fits(bounds, z, availW, availH) {
			zoom = z
			break
		}
	}

	x1, y1 := project(domain.LatLon{Lat: bounds.MaxLat, Lon: bounds.MinLon}, zoom)
	x2, y2 := project(domain.LatLon{Lat: bounds.MinLat, Lon: bounds.MaxLon}, zoom)
	return unproject((x1+x2)/2, (y1+y2)/2, zoom), zoom
}

func fits(bounds domain.BoundingBox, zoom int, w, h float64) bool {
	x1, y1 := project(domain.LatLon{Lat: bounds.MaxLat, Lon: bounds.MinLon}, zoom)
	x2, y2 := project(domain.LatLon{Lat: bounds.MinLat, Lon: bounds.MaxLon}, zoom)
	return math.Abs(x2-x1) <= w && math.Abs(y2-y1) <= h
}
