package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

// Readiness is implemented by the poller
type Readiness interface {
	IsReady() bool
}

type HealthHandler struct {
	poller  Readiness
	mapSync interface{ Ready() bool }
}

func NewHealthHandler(p Readiness, mapSync interface{ Ready() bool }) *HealthHandler {
	return &HealthHandler{poller: p, mapSync: mapSync}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	MapReady   bool      `json:"mapReady"`
	ServerTime time.Time `json:"serverTime"`
}

// Readyz reports ready once the first snapshot was fetched
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.poller.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:      ready,
		MapReady:   h.mapSync.Ready(),
		ServerTime: time.Now(),
	})
}
