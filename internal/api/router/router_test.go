package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/physioflow/internal/exercises"
	"github.com/wolfman30/physioflow/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/physioflow/internal/http/middleware"
	"github.com/wolfman30/physioflow/internal/notes"
	"github.com/wolfman30/physioflow/internal/notify"
	"github.com/wolfman30/physioflow/internal/observability/metrics"
	"github.com/wolfman30/physioflow/internal/sessions"
	"github.com/wolfman30/physioflow/internal/soap"
	"github.com/wolfman30/physioflow/internal/treatment"
	"github.com/wolfman30/physioflow/internal/workflow"
	"github.com/wolfman30/physioflow/pkg/logging"
)

type echoGenerator struct{}

func (echoGenerator) GenerateSOAP(ctx context.Context, req soap.Request) (soap.Summary, error) {
	return soap.Summary{Subjective: "neck stiffness", Plan: "chin tucks"}, nil
}

type nopSender struct{}

func (nopSender) Send(ctx context.Context, msg notify.EmailMessage) error { return nil }

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) http.Handler {
	t.Helper()
	logger := logging.Default()
	reg := prometheus.NewRegistry()
	m := metrics.NewWorkflowMetrics(reg)

	sessionSvc := sessions.NewService(sessions.NewMemoryRepository(), logger)
	store := notes.NewStore(notes.NewMemoryRepository(), echoGenerator{}, logger, notes.WithMetrics(m))
	finalizer := treatment.NewFinalizer(treatment.Deps{
		Repository: treatment.NewMemoryRepository(),
		Notes:      store,
		Sessions:   sessionSvc,
		Sender:     nopSender{},
		Composer:   treatment.NewComposer("https://plans.example.com"),
		Metrics:    m,
		Logger:     logger,
	})
	svc := workflow.NewService(workflow.Deps{
		Sessions: sessionSvc,
		Notes:    store,
		Library:  exercises.NewLibrary(exercises.NewMemoryRepository(), logger),
		Plans:    finalizer,
		Metrics:  m,
		Logger:   logger,
	})

	return New(&Config{
		Logger:             logger,
		Workflow:           handlers.NewWorkflowHandler(svc, logger),
		Dictation:          handlers.NewDictationHandler(svc, logger),
		PlanViewer:         treatment.NewViewerHandler(finalizer, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"https://clinic.example.com"},
		AILimiter:          limiter,
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRouterSessionFlowAndMetrics(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"patient_id":"pat-1"}`))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	id, _ := view["session_id"].(string)
	require.NotEmpty(t, id)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/notes/generate", nil))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ai_generated")
}

func TestRouterPlanViewerNotFound(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/plans/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "https://clinic.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://clinic.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterThrottlesGeneration(t *testing.T) {
	limiter := httpmiddleware.NewRateLimiter(0.001, 1)
	defer limiter.Close()
	router := newTestRouter(t, limiter)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"patient_id":"pat-2"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)
	var view map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	path := "/api/sessions/" + view["session_id"].(string) + "/notes/generate"

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}
