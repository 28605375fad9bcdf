package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"gpstrack/internal/domain"
	"gpstrack/internal/store"
)

// Stats tracks server-wide metrics
type Stats struct {
	startTime        time.Time
	requestCount     atomic.Int64
	proxyRequests    atomic.Int64
	proxyFailures    atomic.Int64
	mockResponses    atomic.Int64
	wsConnections    atomic.Int64
	wsMessagesIn     atomic.Int64
	wsMessagesOut    atomic.Int64
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	rateLimitBlocked atomic.Int64
}

var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()         { s.requestCount.Add(1) }
func (s *Stats) IncProxyRequests()    { s.proxyRequests.Add(1) }
func (s *Stats) IncProxyFailures()    { s.proxyFailures.Add(1) }
func (s *Stats) IncMockResponses()    { s.mockResponses.Add(1) }
func (s *Stats) IncWSConnections()    { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections()    { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()     { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut()    { s.wsMessagesOut.Add(1) }
func (s *Stats) IncCacheHits()        { s.cacheHits.Add(1) }
func (s *Stats) IncCacheMisses()      { s.cacheMisses.Add(1) }
func (s *Stats) IncRateLimitBlocked() { s.rateLimitBlocked.Add(1) }

type PollStateSource interface {
	State() domain.PollState
	IsReady() bool
}

type StatsHandler struct {
	poller PollStateSource
	layers *store.LayerStore
	hub    interface{ ClientCount() int }
}

func NewStatsHandler(p PollStateSource, layers *store.LayerStore, h interface{ ClientCount() int }) *StatsHandler {
	return &StatsHandler{poller: p, layers: layers, hub: h}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Proxy     ProxyStatsResponse     `json:"proxy"`
	Poller    PollerStatsResponse    `json:"poller"`
	Map       MapStatsResponse       `json:"map"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	Cache     CacheStatsResponse     `json:"cache"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
	Version       string    `json:"version"`
}

type ProxyStatsResponse struct {
	Requests      int64 `json:"requests"`
	Failures      int64 `json:"upstream_failures"`
	MockResponses int64 `json:"mock_responses"`
}

type PollerStatsResponse struct {
	Ready         bool      `json:"ready"`
	IntervalMs    int64     `json:"interval_ms"`
	LastUpdate    time.Time `json:"last_update"`
	UsingMockData bool      `json:"using_mock_data"`
	Failing       bool      `json:"failing"`
}

type MapStatsResponse struct {
	SurfaceID     string `json:"surface_id"`
	Layers        int    `json:"layers"`
	Polylines     int    `json:"polylines"`
	CircleMarkers int    `json:"circle_markers"`
}

type WebSocketStatsResponse struct {
	Clients     int   `json:"clients"`
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type CacheStatsResponse struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Ratio  float64 `json:"hit_ratio"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	uptime := time.Since(ServerStats.startTime)
	ps := h.poller.State()
	layers := h.layers.Snapshot()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hits := ServerStats.cacheHits.Load()
	misses := ServerStats.cacheMisses.Load()
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			RateLimited:   ServerStats.rateLimitBlocked.Load(),
			Version:       "1.0.0",
		},
		Proxy: ProxyStatsResponse{
			Requests:      ServerStats.proxyRequests.Load(),
			Failures:      ServerStats.proxyFailures.Load(),
			MockResponses: ServerStats.mockResponses.Load(),
		},
		Poller: PollerStatsResponse{
			Ready:         h.poller.IsReady(),
			IntervalMs:    ps.Interval.Milliseconds(),
			LastUpdate:    ps.LastUpdate,
			UsingMockData: ps.UsingMockData,
			Failing:       ps.Err != nil,
		},
		Map: MapStatsResponse{
			SurfaceID:     layers.SurfaceID,
			Layers:        len(layers.Layers),
			Polylines:     h.layers.CountByKind(store.LayerPolyline),
			CircleMarkers: h.layers.CountByKind(store.LayerCircleMarker),
		},
		WebSocket: WebSocketStatsResponse{
			Clients:     h.hub.ClientCount(),
			Connections: ServerStats.wsConnections.Load(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Cache: CacheStatsResponse{
			Hits:   hits,
			Misses: misses,
			Ratio:  ratio,
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
