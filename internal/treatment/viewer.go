package treatment

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/physioflow/pkg/logging"
)

// PageRenderer renders a plan's public page.
type PageRenderer interface {
	RenderPage(ctx context.Context, planID string) (string, error)
}

// ViewerHandler serves the read-only patient plan page.
type ViewerHandler struct {
	renderer PageRenderer
	logger   *logging.Logger
}

func NewViewerHandler(renderer PageRenderer, logger *logging.Logger) *ViewerHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ViewerHandler{renderer: renderer, logger: logger}
}

// Show handles GET /plans/{planID}.
func (h *ViewerHandler) Show(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	if planID == "" {
		http.Error(w, "plan not found", http.StatusNotFound)
		return
	}

	page, err := h.renderer.RenderPage(r.Context(), planID)
	if errors.Is(err, ErrPlanNotFound) {
		http.Error(w, "plan not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to render plan page", "plan_id", planID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(page))
}
