package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/physioflow/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/physioflow/internal/http/middleware"
	"github.com/wolfman30/physioflow/internal/treatment"
	"github.com/wolfman30/physioflow/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Workflow           *handlers.WorkflowHandler
	Dictation          *handlers.DictationHandler
	PlanViewer         *treatment.ViewerHandler
	Health             http.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// AILimiter throttles model-backed endpoints per session (optional).
	AILimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(cfg.Logger)
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Handle("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.PlanViewer != nil {
			public.Get("/plans/{planID}", cfg.PlanViewer.Show)
		}
	})

	var aiLimits []func(http.Handler) http.Handler
	if cfg.AILimiter != nil {
		aiLimits = append(aiLimits, httpmiddleware.RateLimit(cfg.AILimiter, httpmiddleware.BySession))
	}

	r.Route("/api", func(api chi.Router) {
		// Outside Compress: the upgrade needs http.Hijacker.
		if cfg.Dictation != nil {
			api.Get("/sessions/{sessionID}/dictation", cfg.Dictation.Stream)
		}
		api.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5, "application/json"))
			if cfg.Workflow != nil {
				cfg.Workflow.Routes(r, aiLimits...)
			}
		})
	})

	return r
}
