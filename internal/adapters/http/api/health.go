package api

import (
	"context"
	"net/http"

	service "github.com/okian/talentlens/internal/app"
)

// HealthProvider reports service health.
type HealthProvider interface {
	Health(ctx context.Context) service.HealthReport
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	provider HealthProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(p HealthProvider) *HealthHandler {
	return &HealthHandler{provider: p}
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.Health(r.Context()))
}
