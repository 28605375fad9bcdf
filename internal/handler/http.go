package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"gpstrack/internal/dashboard"
)

const maxConfigBody = 64 << 10

// Dashboard is the part of the dashboard pipeline exposed over HTTP
type Dashboard interface {
	State() dashboard.State
	Configure(u dashboard.ConfigUpdate) error
	Refetch()
	DismissError()
}

type HTTPHandler struct {
	dashboard Dashboard
}

func NewHTTPHandler(d Dashboard) *HTTPHandler {
	return &HTTPHandler{dashboard: d}
}

type StateResponse struct {
	dashboard.State
	ServerTime time.Time `json:"serverTime"`
}

func (h *HTTPHandler) GetState(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, StateResponse{
		State:      h.dashboard.State(),
		ServerTime: time.Now(),
	})
}

func (h *HTTPHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	var u dashboard.ConfigUpdate
	dec := json.NewDecoder(io.LimitReader(r.Body, maxConfigBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if err := h.dashboard.Configure(u); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			respondError(w, http.StatusBadRequest, validationMessage(verrs))
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, h.dashboard.State().Config)
}

func (h *HTTPHandler) Refetch(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	h.dashboard.Refetch()
	w.WriteHeader(http.StatusAccepted)
}

func (h *HTTPHandler) DismissError(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	h.dashboard.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

func validationMessage(verrs validator.ValidationErrors) string {
	fe := verrs[0]
	switch fe.Tag() {
	case "url", "url_or_empty":
		return fe.Field() + " must be a valid URL"
	case "gte", "lte":
		return fe.Field() + " must be between 500 and 30000"
	default:
		return fe.Field() + " is invalid"
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
