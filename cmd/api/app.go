package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/physioflow/cmd/mainconfig"
	"github.com/wolfman30/physioflow/internal/api/router"
	"github.com/wolfman30/physioflow/internal/app/bootstrap"
	"github.com/wolfman30/physioflow/internal/compliance"
	appconfig "github.com/wolfman30/physioflow/internal/config"
	"github.com/wolfman30/physioflow/internal/exercises"
	"github.com/wolfman30/physioflow/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/physioflow/internal/http/middleware"
	"github.com/wolfman30/physioflow/internal/notes"
	"github.com/wolfman30/physioflow/internal/observability/metrics"
	"github.com/wolfman30/physioflow/internal/sessions"
	"github.com/wolfman30/physioflow/internal/soap"
	"github.com/wolfman30/physioflow/internal/treatment"
	"github.com/wolfman30/physioflow/internal/workflow"
	"github.com/wolfman30/physioflow/pkg/logging"
)

type app struct {
	Handler  http.Handler
	Workflow *workflow.Service

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type repositories struct {
	sessions  sessions.Repository
	notes     notes.Repository
	exercises exercises.Repository
	plans     treatment.Repository
}

func memoryRepositories() repositories {
	return repositories{
		sessions:  sessions.NewMemoryRepository(),
		notes:     notes.NewMemoryRepository(),
		exercises: exercises.NewMemoryRepository(exercises.StarterCatalog()...),
		plans:     treatment.NewMemoryRepository(),
	}
}

func postgresRepositories(pool *pgxpool.Pool) repositories {
	return repositories{
		sessions:  sessions.NewPostgresRepository(pool),
		notes:     notes.NewPostgresRepository(pool),
		exercises: exercises.NewPostgresRepository(pool),
		plans:     treatment.NewPostgresRepository(pool),
	}
}

func connectPostgresPool(ctx context.Context, dbURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(dbURL) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func openAuditDB(dbURL string, logger *logging.Logger) *sql.DB {
	if strings.TrimSpace(dbURL) == "" {
		return nil
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Warn("audit log disabled", "error", err)
		return nil
	}
	db.SetMaxOpenConns(4)
	return db
}

func setupMetrics() (http.Handler, *metrics.WorkflowMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWorkflowMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	health := handlers.NewHealthHandler(logger)
	metricsHandler, workflowMetrics := setupMetrics()

	repos := memoryRepositories()
	var auditor *compliance.AuditService
	if pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger); pool != nil {
		a.closers = append(a.closers, pool.Close)
		repos = postgresRepositories(pool)
		health.Register("postgres", pool.Ping)
		if db := openAuditDB(cfg.DatabaseURL, logger); db != nil {
			a.closers = append(a.closers, func() { _ = db.Close() })
			auditor = compliance.NewAuditService(db)
		}
	} else {
		logger.Warn("DATABASE_URL not set or unreachable; using in-memory repositories")
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		health.Register("redis", redisPing(redisClient))
	}
	states := bootstrap.BuildStateStore(redisClient, cfg, logger)

	llm, closeLLM, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLLM)
	summarizer := soap.NewSummarizer(llm, logger, soap.WithMetrics(workflowMetrics), soap.WithTimeout(cfg.LLMTimeout))

	noteOpts := []notes.StoreOption{notes.WithMetrics(workflowMetrics)}
	if auditor != nil {
		noteOpts = append(noteOpts, notes.WithAuditor(auditor))
	}
	noteStore := notes.NewStore(repos.notes, summarizer, logger, noteOpts...)
	sessionService := sessions.NewService(repos.sessions, logger)
	library := exercises.NewLibrary(repos.exercises, logger)

	sender, provider := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	logger.Info("plan delivery configured", "provider", provider)

	finalizer := treatment.NewFinalizer(treatment.Deps{
		Repository:  repos.plans,
		Notes:       noteStore,
		Narrator:    summarizer,
		Sessions:    sessionService,
		Sender:      sender,
		Composer:    treatment.NewComposer(cfg.PublicBaseURL),
		Artifacts:   buildArtifactStore(awsCfg, cfg, logger),
		Audit:       auditorOrNil(auditor),
		Metrics:     workflowMetrics,
		Logger:      logger,
		MaxParallel: cfg.EmailMaxParallel,
	})

	a.Workflow = workflow.NewService(workflow.Deps{
		Sessions: sessionService,
		Notes:    noteStore,
		Library:  library,
		Plans:    finalizer,
		States:   states,
		Metrics:  workflowMetrics,
		Logger:   logger,
	})

	var aiLimiter *httpmiddleware.RateLimiter
	if cfg.AIRequestsPerMinute > 0 {
		aiLimiter = httpmiddleware.NewRateLimiter(float64(cfg.AIRequestsPerMinute)/60, cfg.AIBurst)
		a.closers = append(a.closers, aiLimiter.Close)
	}

	a.Handler = router.New(&router.Config{
		Logger:             logger,
		Workflow:           handlers.NewWorkflowHandler(a.Workflow, logger),
		Dictation:          handlers.NewDictationHandler(a.Workflow, logger),
		PlanViewer:         treatment.NewViewerHandler(finalizer, logger),
		Health:             health,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AILimiter:          aiLimiter,
	})
	return a, nil
}

func buildArtifactStore(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) *treatment.ArtifactStore {
	if strings.TrimSpace(cfg.PlanArtifactBucket) == "" {
		return nil
	}
	return treatment.NewArtifactStore(mainconfig.NewS3Client(awsCfg, cfg), cfg.PlanArtifactBucket, logger)
}

// auditorOrNil keeps a nil *AuditService from becoming a non-nil interface.
func auditorOrNil(a *compliance.AuditService) treatment.Auditor {
	if a == nil {
		return nil
	}
	return a
}

func redisPing(client *redis.Client) handlers.CheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
