package treatment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type stubRenderer struct {
	page string
	err  error
}

func (s stubRenderer) RenderPage(ctx context.Context, planID string) (string, error) {
	return s.page, s.err
}

func serveViewer(r PageRenderer, path string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Get("/plans/{planID}", NewViewerHandler(r, nil).Show)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestViewerServesHTML(t *testing.T) {
	rec := serveViewer(stubRenderer{page: "<h1>Your treatment plan</h1>"}, "/plans/plan-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Your treatment plan")
}

func TestViewerNotFound(t *testing.T) {
	rec := serveViewer(stubRenderer{err: ErrPlanNotFound}, "/plans/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewerInternalError(t *testing.T) {
	rec := serveViewer(stubRenderer{err: errors.New("db down")}, "/plans/plan-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
