package mapsync

import (
	"sync/atomic"

	"github.com/google/uuid"

	"gpstrack/internal/domain"
	"gpstrack/internal/hub"
	"gpstrack/internal/store"
)

// Message types published on the map topic
const (
	MsgSurfaceReset = "surface.reset"
	MsgLayerAdd     = "layer.add"
	MsgLayerRemove  = "layer.remove"
	MsgViewFit      = "view.fit"
)

// Broadcaster is the part of the hub a remote surface needs
type Broadcaster interface {
	Publish(topic, msgType string, payload any)
	Running() bool
}

// RemoteFactory creates surfaces that are rendered by connected browsers.
// Layer state is kept in a LayerStore so late joiners can rebuild the map.
type RemoteFactory struct {
	hub      Broadcaster
	layers   *store.LayerStore
	viewport Viewport
}

func NewRemoteFactory(h Broadcaster, layers *store.LayerStore, vp Viewport) *RemoteFactory {
	return &RemoteFactory{hub: h, layers: layers, viewport: vp}
}

// Create fails with ErrSurfaceUnavailable until the hub is running
func (f *RemoteFactory) Create(container string, view View) (Surface, error) {
	if container == "" || !f.hub.Running() {
		return nil, ErrSurfaceUnavailable
	}

	s := &RemoteSurface{
		id:       uuid.NewString(),
		hub:      f.hub,
		layers:   f.layers,
		viewport: f.viewport,
		maxZoom:  view.MaxZoom,
	}

	f.layers.Reset(s.id, store.View{Center: view.Center, Zoom: view.Zoom, MaxZoom: view.MaxZoom})
	if view.TileURL != "" {
		f.layers.Add(store.Layer{
			ID:    uuid.NewString(),
			Kind:  store.LayerTile,
			URL:   view.TileURL,
			Style: map[string]any{"attribution": view.Attribution, "maxZoom": view.MaxZoom},
		})
	}
	f.hub.Publish(hub.TopicMap, MsgSurfaceReset, f.layers.Snapshot())
	return s, nil
}

type RemoteSurface struct {
	id        string
	hub       Broadcaster
	layers    *store.LayerStore
	viewport  Viewport
	maxZoom   int
	destroyed atomic.Bool
}

func (s *RemoteSurface) ID() string {
	return s.id
}

func (s *RemoteSurface) AddPolyline(path domain.Path, style PathStyle) (LayerID, error) {
	return s.add(store.Layer{Kind: store.LayerPolyline, Points: append([]domain.LatLon(nil), path...), Style: style})
}

func (s *RemoteSurface) AddCircleMarker(at domain.LatLon, style MarkerStyle) (LayerID, error) {
	return s.add(store.Layer{Kind: store.LayerCircleMarker, Points: []domain.LatLon{at}, Style: style})
}

func (s *RemoteSurface) add(l store.Layer) (LayerID, error) {
	if s.destroyed.Load() {
		return "", ErrSurfaceUnavailable
	}
	l.ID = uuid.NewString()
	stored := s.layers.Add(l)
	s.hub.Publish(hub.TopicMap, MsgLayerAdd, stored)
	return LayerID(stored.ID), nil
}

func (s *RemoteSurface) RemoveLayer(id LayerID) {
	if s.destroyed.Load() || id == "" {
		return
	}
	if s.layers.Remove(string(id)) {
		s.hub.Publish(hub.TopicMap, MsgLayerRemove, map[string]string{"id": string(id)})
	}
}

func (s *RemoteSurface) FitBounds(bounds domain.BoundingBox, padding Padding) error {
	if s.destroyed.Load() {
		return ErrSurfaceUnavailable
	}

	center, zoom := FitView(bounds, s.viewport, padding, s.maxZoom)
	v := s.layers.View()
	v.Center = center
	v.Zoom = zoom
	v.Bounds = &bounds
	s.layers.SetView(v)

	s.hub.Publish(hub.TopicMap, MsgViewFit, map[string]any{
		"bounds":  bounds,
		"padding": padding,
		"center":  center,
		"zoom":    zoom,
	})
	return nil
}

func (s *RemoteSurface) Destroy() {
	if !s.destroyed.CompareAndSwap(false, true) {
		return
	}
	s.layers.Reset("", store.View{})
	s.hub.Publish(hub.TopicMap, MsgSurfaceReset, store.Snapshot{Layers: []store.Layer{}})
}
