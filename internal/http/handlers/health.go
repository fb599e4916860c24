package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/wolfman30/physioflow/pkg/logging"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// HealthHandler reports liveness and, when checks are registered, the
// state of each backing store.
type HealthHandler struct {
	checks  map[string]CheckFunc
	timeout time.Duration
	logger  *logging.Logger
}

func NewHealthHandler(logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{checks: map[string]CheckFunc{}, timeout: 2 * time.Second, logger: logger}
}

// Register adds a named dependency check.
func (h *HealthHandler) Register(name string, check CheckFunc) *HealthHandler {
	h.checks[name] = check
	return h
}

// ServeHTTP handles GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	resp := map[string]any{"status": "ok"}
	deps := map[string]string{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", "dependency", name, "error", err)
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
			resp["status"] = "degraded"
			continue
		}
		deps[name] = "ok"
	}
	if len(deps) > 0 {
		resp["dependencies"] = deps
	}
	writeJSON(w, status, resp)
}
