package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/physioflow/internal/exercises"
	"github.com/wolfman30/physioflow/internal/notes"
	"github.com/wolfman30/physioflow/internal/notify"
	"github.com/wolfman30/physioflow/internal/sessions"
	"github.com/wolfman30/physioflow/internal/soap"
	"github.com/wolfman30/physioflow/internal/treatment"
	"github.com/wolfman30/physioflow/internal/workflow"
	"github.com/wolfman30/physioflow/pkg/logging"
)

type stubGenerator struct {
	err error
}

func (g *stubGenerator) GenerateSOAP(ctx context.Context, req soap.Request) (soap.Summary, error) {
	if g.err != nil {
		return soap.Summary{}, g.err
	}
	return soap.Summary{Subjective: "sore shoulder", Assessment: "rotator cuff strain", Plan: "band rows"}, nil
}

type stubSender struct {
	mu     sync.Mutex
	failOn map[string]bool
	sent   int
}

func (s *stubSender) Send(ctx context.Context, msg notify.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	if s.failOn[msg.To] {
		return context.DeadlineExceeded
	}
	return nil
}

type apiFixture struct {
	router    chi.Router
	svc       *workflow.Service
	generator *stubGenerator
	sender    *stubSender
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := logging.Default()

	sessionRepo := sessions.NewMemoryRepository()
	sessionRepo.AddAppointment("appt-9", "booked")
	sessionSvc := sessions.NewService(sessionRepo, logger)
	gen := &stubGenerator{}
	store := notes.NewStore(notes.NewMemoryRepository(), gen, logger)
	library := exercises.NewLibrary(exercises.NewMemoryRepository(
		exercises.Exercise{ID: "ex-row", Name: "Band Row", BodyArea: "shoulder", Goal: "strength"},
		exercises.Exercise{ID: "ex-pend", Name: "Pendulum", BodyArea: "shoulder", Goal: "mobility"},
	), logger)
	sender := &stubSender{failOn: map[string]bool{}}
	finalizer := treatment.NewFinalizer(treatment.Deps{
		Repository: treatment.NewMemoryRepository(),
		Notes:      store,
		Sessions:   sessionSvc,
		Sender:     sender,
		Composer:   treatment.NewComposer("https://plans.example.com"),
		Logger:     logger,
	})
	svc := workflow.NewService(workflow.Deps{
		Sessions: sessionSvc,
		Notes:    store,
		Library:  library,
		Plans:    finalizer,
		Logger:   logger,
	})

	r := chi.NewRouter()
	h := NewWorkflowHandler(svc, logger)
	r.Route("/api", func(r chi.Router) {
		h.Routes(r)
		r.Get("/sessions/{sessionID}/dictation", NewDictationHandler(svc, logger).Stream)
	})
	return &apiFixture{router: r, svc: svc, generator: gen, sender: sender}
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}
