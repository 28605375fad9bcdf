package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gpstrack/pkg/trackapi"
)

const (
	FallbackMock   = "mock"
	FallbackStrict = "strict"

	maxUpstreamBody = 10 << 20
)

// ProxyHandler forwards tracking requests to the upstream GPS service
type ProxyHandler struct {
	defaultBase string
	strict      bool
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewProxyHandler(defaultBase, fallbackMode string, timeout time.Duration, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		defaultBase: strings.TrimRight(defaultBase, "/"),
		strict:      fallbackMode == FallbackStrict,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.With("component", "track_proxy"),
	}
}

type proxyErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Track proxies GET /api/track to {base}/gps/track with the same query.
// Upstream failures are answered with built-in demo data tagged as mock,
// unless strict fallback mode is configured.
func (h *ProxyHandler) Track(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	ServerStats.IncProxyRequests()

	base := h.defaultBase
	if override := strings.TrimSpace(r.Header.Get(trackapi.HeaderUpstreamBase)); override != "" {
		base = strings.TrimRight(override, "/")
	}

	if isDemoBase(base) {
		h.logger.Debug("serving demo data", "base", base)
		h.serveMock(w)
		return
	}

	target := fmt.Sprintf("%s/gps/track?%s", base, r.URL.RawQuery)
	body, contentType, err := h.fetch(r, target)
	if err != nil {
		ServerStats.IncProxyFailures()
		h.logger.Warn("upstream request failed", "url", target, "error", err)
		if h.strict {
			w.Header().Set("Cache-Control", "no-store")
			respondJSON(w, http.StatusBadGateway, proxyErrorResponse{
				Error:   "Failed to fetch tracking data",
				Message: err.Error(),
			})
			return
		}
		h.serveMock(w)
		return
	}

	h.logger.Debug("proxied tracking request", "url", target, "bytes", len(body))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *ProxyHandler) fetch(r *http.Request, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("upstream responded with %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if !json.Valid(body) {
		return nil, "", fmt.Errorf("upstream returned invalid JSON")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return body, contentType, nil
}

func (h *ProxyHandler) serveMock(w http.ResponseWriter) {
	ServerStats.IncMockResponses()
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(trackapi.HeaderDataSource, trackapi.DataSourceMock)
	w.WriteHeader(http.StatusOK)
	w.Write(mockPayload)
}

func isDemoBase(base string) bool {
	b := strings.ToLower(base)
	return strings.Contains(b, "mock") || strings.Contains(b, "demo")
}
