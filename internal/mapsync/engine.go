// Package mapsync keeps a persistent map surface in step with the latest
// tracking snapshot.
//
// The surface is created once and owned exclusively by the Engine. Every
// sync removes the previous path and markers before drawing new ones, and the
// camera is fitted to the path only on the first successful draw so later
// updates never fight a user's pan or zoom.
package mapsync

import (
	"errors"
	"log/slog"
	"sync"

	"gpstrack/internal/domain"
)

type Engine struct {
	factory   SurfaceFactory
	container string
	view      View
	padding   Padding
	logger    *slog.Logger

	mu      sync.Mutex
	surface Surface
	path    LayerID
	markers []LayerID
	framed  bool
	closed  bool
}

func New(factory SurfaceFactory, container string, logger *slog.Logger) *Engine {
	return &Engine{
		factory:   factory,
		container: container,
		view:      DefaultView,
		padding:   DefaultPadding,
		logger:    logger.With("component", "map_sync"),
	}
}

// Init creates the surface if it does not exist yet and reports whether the
// engine is ready. Failures are logged and retried by the next Sync.
func (e *Engine) Init() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureSurfaceLocked()
}

// Sync reconciles the surface with snap
func (e *Engine) Sync(snap *domain.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || !e.ensureSurfaceLocked() {
		return
	}

	e.clearLocked()

	path := snap.Path()
	if len(path) == 0 {
		return
	}

	pathID, err := e.surface.AddPolyline(path, TrackStyle)
	if err != nil {
		e.logger.Warn("failed to draw path", "points", len(path), "error", err)
		return
	}
	e.path = pathID

	start, _ := path.First()
	if id, err := e.surface.AddCircleMarker(start, StartMarkerStyle); err == nil {
		e.markers = append(e.markers, id)
	} else {
		e.logger.Warn("failed to draw start marker", "error", err)
	}

	if len(path) > 1 {
		live, _ := path.Last()
		if id, err := e.surface.AddCircleMarker(live, LiveMarkerStyle); err == nil {
			e.markers = append(e.markers, id)
		} else {
			e.logger.Warn("failed to draw live marker", "error", err)
		}
	}

	if e.framed {
		return
	}
	bounds, _ := path.Bounds()
	if err := e.surface.FitBounds(bounds, e.padding); err != nil {
		e.logger.Warn("failed to fit view", "error", err)
		return
	}
	e.framed = true
	e.logger.Debug("view fitted to path", "points", len(path))
}

// Close destroys the surface and releases every handle. It is safe to call
// on an engine that never initialized, and more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	if e.surface == nil {
		return
	}
	e.clearLocked()
	e.surface.Destroy()
	e.surface = nil
}

func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface != nil
}

// Framed reports whether the automatic camera fit already happened
func (e *Engine) Framed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.framed
}

func (e *Engine) ensureSurfaceLocked() bool {
	if e.closed {
		return false
	}
	if e.surface != nil {
		return true
	}

	s, err := e.factory.Create(e.container, e.view)
	if err != nil {
		if errors.Is(err, ErrSurfaceUnavailable) {
			e.logger.Debug("surface not ready, retrying on next update", "container", e.container)
		} else {
			e.logger.Warn("failed to create surface", "container", e.container, "error", err)
		}
		return false
	}

	e.surface = s
	e.logger.Info("map surface initialized", "container", e.container)
	return true
}

func (e *Engine) clearLocked() {
	if e.path != "" {
		e.surface.RemoveLayer(e.path)
		e.path = ""
	}
	for _, id := range e.markers {
		e.surface.RemoveLayer(id)
	}
	e.markers = e.markers[:0]
}
