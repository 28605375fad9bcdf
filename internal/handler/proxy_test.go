package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpstrack/internal/domain"
	"gpstrack/pkg/trackapi"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func serveTrack(h *ProxyHandler, query string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/track?"+query, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.Track(rec, req)
	return rec
}

func TestProxy_ForwardsQueryToUpstream(t *testing.T) {
	var gotPath, gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer upstream.Close()

	h := NewProxyHandler(upstream.URL+"/", FallbackMock, time.Second, discard)
	rec := serveTrack(h, "device_id=car01&format=geojson", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/gps/track", gotPath)
	assert.Equal(t, "device_id=car01&format=geojson", gotQuery)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get(trackapi.HeaderDataSource))
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, rec.Body.String())
}

func TestProxy_HeaderOverridesBase(t *testing.T) {
	hits := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer upstream.Close()

	h := NewProxyHandler("http://127.0.0.1:1", FallbackMock, time.Second, discard)
	rec := serveTrack(h, "", map[string]string{trackapi.HeaderUpstreamBase: upstream.URL})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, hits)
	assert.Empty(t, rec.Header().Get(trackapi.HeaderDataSource))
}

func TestProxy_DemoBaseServesMock(t *testing.T) {
	h := NewProxyHandler("http://127.0.0.1:1", FallbackStrict, time.Second, discard)

	for _, base := range []string{"http://mock.local", "https://DEMO.example.com"} {
		rec := serveTrack(h, "", map[string]string{trackapi.HeaderUpstreamBase: base})
		assert.Equal(t, http.StatusOK, rec.Code, base)
		assert.Equal(t, trackapi.DataSourceMock, rec.Header().Get(trackapi.HeaderDataSource), base)
	}
}

func TestProxy_UpstreamFailureFallsBackToMock(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	h := NewProxyHandler(upstream.URL, FallbackMock, time.Second, discard)
	rec := serveTrack(h, "device_id=car01", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, trackapi.DataSourceMock, rec.Header().Get(trackapi.HeaderDataSource))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, "LineString", f.Geometry.GeoJSONType())
	assert.Equal(t, mockDeviceID, f.Properties.MustString("device_id"))
	assert.Len(t, f.Geometry, 10)

	snap, err := trackapi.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	path := snap.Path()
	require.Len(t, path, 10)
	assert.Equal(t, domain.LatLon{Lat: 37.7749, Lon: -122.4194}, path[0])
	assert.Equal(t, domain.LatLon{Lat: 37.7750, Lon: -122.4180}, path[1])
	assert.Equal(t, domain.LatLon{Lat: 37.7790, Lon: -122.4100}, path[9])

	timestamps, ok := f.Properties["timestamps"].([]any)
	require.True(t, ok)
	require.Len(t, timestamps, 10)
	assert.Equal(t, "2025-01-13T13:00:00Z", timestamps[0])
	assert.Equal(t, "2025-01-13T13:09:00Z", timestamps[9])
}

func TestProxy_InvalidJSONFallsBack(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway</html>`))
	}))
	defer upstream.Close()

	h := NewProxyHandler(upstream.URL, FallbackMock, time.Second, discard)
	rec := serveTrack(h, "", nil)

	assert.Equal(t, trackapi.DataSourceMock, rec.Header().Get(trackapi.HeaderDataSource))
}

func TestProxy_StrictModeReturnsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	h := NewProxyHandler(upstream.URL, FallbackStrict, time.Second, discard)
	rec := serveTrack(h, "", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, rec.Header().Get(trackapi.HeaderDataSource))

	var body proxyErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Failed to fetch tracking data", body.Error)
	assert.Contains(t, body.Message, "500")
}
