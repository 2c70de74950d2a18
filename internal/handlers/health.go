package handlers

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ReadyResponse is the body for GET /ready.
type ReadyResponse struct {
	Status string `json:"status"`
}

// HealthHandler answers liveness and readiness probes. Liveness is
// unconditional; readiness is toggled off during shutdown so load
// balancers drain the instance first.
type HealthHandler struct {
	started time.Time
	ready   atomic.Bool
}

// NewHealthHandler creates a HealthHandler that reports ready.
func NewHealthHandler() *HealthHandler {
	h := &HealthHandler{started: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state.
func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Ready handles GET /ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready"})
}

// writeJSON is the shared response helper for the handlers package.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
