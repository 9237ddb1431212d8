package handlers

import (
	"net/http"

	"github.com/marmos91/dittomds/pkg/mds"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Can the authority place new blocks?
type HealthHandler struct {
	authority *mds.Authority
}

// NewHealthHandler creates a new health handler. authority may be nil, in
// which case readiness always fails.
func NewHealthHandler(authority *mds.Authority) *HealthHandler {
	return &HealthHandler{authority: authority}
}

// Liveness handles GET /health - simple liveness probe.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "dittomds",
	}))
}

// Readiness handles GET /health/ready.
//
// Returns 200 OK once at least one storage node is registered, 503 Service
// Unavailable otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.authority == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("authority not initialized"))
		return
	}

	nodes := h.authority.Nodes()
	if len(nodes) == 0 {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("no storage nodes registered"))
		return
	}

	WriteJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"storage_nodes": len(nodes),
		"recoveries":    len(h.authority.RecoveryStatus()),
	}))
}
