package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/physioflow/internal/capture"
	"github.com/wolfman30/physioflow/internal/exercises"
	"github.com/wolfman30/physioflow/internal/notes"
	"github.com/wolfman30/physioflow/internal/sessions"
	"github.com/wolfman30/physioflow/internal/soap"
	"github.com/wolfman30/physioflow/internal/treatment"
	"github.com/wolfman30/physioflow/internal/workflow"
	"github.com/wolfman30/physioflow/pkg/logging"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("invalid request body")

// WorkflowService is the session workflow the API exposes.
type WorkflowService interface {
	Start(ctx context.Context, req sessions.StartRequest) (*workflow.View, error)
	View(ctx context.Context, sessionID string) (*workflow.View, error)
	Advance(ctx context.Context, sessionID string) (*workflow.View, error)
	Retreat(ctx context.Context, sessionID string) (*workflow.View, error)
	UpdateData(ctx context.Context, sessionID string, u workflow.DataUpdate) (*workflow.View, error)

	StartCapture(ctx context.Context, sessionID string) (*workflow.View, error)
	StopCapture(ctx context.Context, sessionID string) (*workflow.View, error)
	AppendFragment(ctx context.Context, sessionID, text string, final bool) (*workflow.View, error)
	CaptureFailed(ctx context.Context, sessionID string, cause error) (*workflow.View, error)
	SetTranscript(ctx context.Context, sessionID, text string) (*workflow.View, error)
	SetNotes(ctx context.Context, sessionID, text string) (*workflow.View, error)

	LoadNotes(ctx context.Context, sessionID string) (notes.Snapshot, error)
	Generate(ctx context.Context, sessionID, instruction string) (*notes.Version, error)
	SaveOnBlur(ctx context.Context, sessionID string, current soap.Summary) (*notes.Version, error)
	RestoreNote(ctx context.Context, sessionID, versionID string) (*notes.Version, error)

	SearchExercises(ctx context.Context, filter exercises.Filter) ([]exercises.Exercise, error)
	AddExercise(ctx context.Context, sessionID, exerciseID string) (*workflow.View, error)
	RemoveExercise(ctx context.Context, sessionID, exerciseID string) (*workflow.View, error)
	ReorderExercise(ctx context.Context, sessionID string, from, to int) (*workflow.View, error)
	UpdateExercise(ctx context.Context, sessionID string, index int, update exercises.ParameterUpdate) (*workflow.View, error)
	CreateCustomExercise(ctx context.Context, sessionID string, fields exercises.CustomExercise) (*exercises.Exercise, *workflow.View, error)

	AddRecipient(ctx context.Context, sessionID, addr string) (*workflow.View, error)
	RemoveRecipient(ctx context.Context, sessionID, addr string) (*workflow.View, error)
	SendPlan(ctx context.Context, sessionID string, msg treatment.Message) (*treatment.DeliveryReport, error)
	Complete(ctx context.Context, sessionID string) (*treatment.CompletionResult, error)
}

// WorkflowHandler serves the clinician-facing session API.
type WorkflowHandler struct {
	svc    WorkflowService
	logger *logging.Logger
}

func NewWorkflowHandler(svc WorkflowService, logger *logging.Logger) *WorkflowHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WorkflowHandler{svc: svc, logger: logger}
}

// Routes mounts the API under the caller's prefix. aiLimits wrap the
// endpoints that call the language model.
func (h *WorkflowHandler) Routes(r chi.Router, aiLimits ...func(http.Handler) http.Handler) {
	r.Post("/sessions", h.StartSession)
	r.Get("/exercises", h.SearchExercises)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/workflow", h.GetWorkflow)
		r.Post("/workflow/advance", h.Advance)
		r.Post("/workflow/retreat", h.Retreat)
		r.Patch("/workflow/data", h.UpdateData)

		r.Post("/capture/start", h.StartCapture)
		r.Post("/capture/stop", h.StopCapture)
		r.Post("/capture/fragments", h.AppendFragment)
		r.Put("/capture/transcript", h.SetTranscript)
		r.Put("/capture/notes", h.SetNotes)

		r.Get("/notes", h.ListNotes)
		r.With(aiLimits...).Post("/notes/generate", h.GenerateNote)
		r.Post("/notes/blur", h.SaveOnBlur)
		r.Post("/notes/{versionID}/restore", h.RestoreNote)

		r.Post("/exercises", h.AddExercise)
		r.Post("/exercises/custom", h.CreateCustomExercise)
		r.Post("/exercises/reorder", h.ReorderExercises)
		r.Delete("/exercises/{exerciseID}", h.RemoveExercise)
		r.Patch("/exercises/{index}", h.UpdateExercise)

		r.Post("/recipients", h.AddRecipient)
		r.Delete("/recipients/{email}", h.RemoveRecipient)
		r.Post("/plan/send", h.SendPlan)
		r.With(aiLimits...).Post("/complete", h.Complete)
	})
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, sessions.ErrPatientRequired),
		errors.Is(err, notes.ErrSessionRequired),
		errors.Is(err, exercises.ErrNameRequired),
		errors.Is(err, exercises.ErrInvalidFrequency),
		errors.Is(err, exercises.ErrInvalidDosage),
		errors.Is(err, exercises.ErrIndexOutOfRange),
		errors.Is(err, exercises.ErrDuplicateExercise),
		errors.Is(err, exercises.ErrUnknownField),
		errors.Is(err, treatment.ErrInvalidEmail),
		errors.Is(err, treatment.ErrDuplicateRecipient),
		errors.Is(err, treatment.ErrNoRecipients),
		errors.Is(err, treatment.ErrSessionRequired),
		errors.Is(err, treatment.ErrPatientRequired),
		errors.Is(err, workflow.ErrGateNotSatisfied),
		errors.Is(err, soap.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, sessions.ErrSessionNotFound),
		errors.Is(err, sessions.ErrAppointmentNotFound),
		errors.Is(err, notes.ErrVersionNotFound),
		errors.Is(err, exercises.ErrExerciseNotFound),
		errors.Is(err, treatment.ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, notes.ErrBusy),
		errors.Is(err, workflow.ErrSessionClosed),
		errors.Is(err, capture.ErrCaptureActive),
		errors.Is(err, capture.ErrNotCapturing):
		return http.StatusConflict
	case errors.Is(err, soap.ErrRateLimited), errors.Is(err, soap.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, capture.ErrDictationUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, soap.ErrMalformedResponse), errors.Is(err, treatment.ErrDeliveryFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *WorkflowHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("workflow request failed", "path", r.URL.Path, "session_id", sessionID(r), "error", err)
	} else {
		h.logger.Debug("workflow request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *WorkflowHandler) respondView(w http.ResponseWriter, r *http.Request, view *workflow.View, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// StartSession handles POST /api/sessions
func (h *WorkflowHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req sessions.StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.Start(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// GetWorkflow handles GET /api/sessions/{sessionID}/workflow
func (h *WorkflowHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.View(r.Context(), sessionID(r))
	h.respondView(w, r, view, err)
}

func (h *WorkflowHandler) Advance(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Advance(r.Context(), sessionID(r))
	h.respondView(w, r, view, err)
}

func (h *WorkflowHandler) Retreat(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Retreat(r.Context(), sessionID(r))
	h.respondView(w, r, view, err)
}

// UpdateData handles PATCH /api/sessions/{sessionID}/workflow/data
func (h *WorkflowHandler) UpdateData(w http.ResponseWriter, r *http.Request) {
	var u workflow.DataUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.UpdateData(r.Context(), sessionID(r), u)
	h.respondView(w, r, view, err)
}

func (h *WorkflowHandler) StartCapture(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.StartCapture(r.Context(), sessionID(r))
	h.respondView(w, r, view, err)
}

func (h *WorkflowHandler) StopCapture(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.StopCapture(r.Context(), sessionID(r))
	h.respondView(w, r, view, err)
}

// Fragment is one dictation result.
type Fragment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

func (h *WorkflowHandler) AppendFragment(w http.ResponseWriter, r *http.Request) {
	var f Fragment
	if err := decodeJSON(w, r, &f); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.AppendFragment(r.Context(), sessionID(r), f.Text, f.Final)
	h.respondView(w, r, view, err)
}

type textBody struct {
	Text string `json:"text"`
}

func (h *WorkflowHandler) SetTranscript(w http.ResponseWriter, r *http.Request) {
	var body textBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.SetTranscript(r.Context(), sessionID(r), body.Text)
	h.respondView(w, r, view, err)
}

func (h *WorkflowHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	var body textBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.SetNotes(r.Context(), sessionID(r), body.Text)
	h.respondView(w, r, view, err)
}

// ListNotes handles GET /api/sessions/{sessionID}/notes
func (h *WorkflowHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.LoadNotes(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GenerateNote handles POST /api/sessions/{sessionID}/notes/generate. An
// empty body or blank instruction asks for a fresh note.
func (h *WorkflowHandler) GenerateNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Instruction string `json:"instruction"`
	}
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.svc.Generate(r.Context(), sessionID(r), body.Instruction)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// SaveOnBlur handles POST /api/sessions/{sessionID}/notes/blur. 204 means
// the note was unchanged.
func (h *WorkflowHandler) SaveOnBlur(w http.ResponseWriter, r *http.Request) {
	var current soap.Summary
	if err := decodeJSON(w, r, &current); err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.svc.SaveOnBlur(r.Context(), sessionID(r), current)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *WorkflowHandler) RestoreNote(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.RestoreNote(r.Context(), sessionID(r), chi.URLParam(r, "versionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SearchExercises handles GET /api/exercises?body_area=&goal=&difficulty=&q=&limit=
func (h *WorkflowHandler) SearchExercises(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := exercises.Filter{
		BodyArea:   q.Get("body_area"),
		Goal:       q.Get("goal"),
		Difficulty: q.Get("difficulty"),
		Query:      q.Get("q"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: limit must be a number", errBadRequest))
			return
		}
		filter.Limit = limit
	}
	found, err := h.svc.SearchExercises(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if found == nil {
		found = []exercises.Exercise{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exercises": found})
}

func (h *WorkflowHandler) AddExercise(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExerciseID string `json:"exercise_id"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.AddExercise(r.Context(), sessionID(r), strings.TrimSpace(body.ExerciseID))
	h.respondView(w, r, view, err)
}

func (h *WorkflowHandler) RemoveExercise(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.RemoveExercise(r.Context(), sessionID(r), chi.URLParam(r, "exerciseID"))
	h.respondView(w, r, view, err)
}

func (h *WorkflowHandler) ReorderExercises(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.ReorderExercise(r.Context(), sessionID(r), body.From, body.To)
	h.respondView(w, r, view, err)
}

// UpdateExercise handles PATCH /api/sessions/{sessionID}/exercises/{index}
func (h *WorkflowHandler) UpdateExercise(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: index must be a number", errBadRequest))
		return
	}
	var update exercises.ParameterUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.UpdateExercise(r.Context(), sessionID(r), index, update)
	h.respondView(w, r, view, err)
}

func (h *WorkflowHandler) CreateCustomExercise(w http.ResponseWriter, r *http.Request) {
	var fields exercises.CustomExercise
	if err := decodeJSON(w, r, &fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	ex, view, err := h.svc.CreateCustomExercise(r.Context(), sessionID(r), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"exercise": ex, "workflow": view})
}

func (h *WorkflowHandler) AddRecipient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.AddRecipient(r.Context(), sessionID(r), body.Email)
	h.respondView(w, r, view, err)
}

func (h *WorkflowHandler) RemoveRecipient(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.RemoveRecipient(r.Context(), sessionID(r), chi.URLParam(r, "email"))
	h.respondView(w, r, view, err)
}

// SendPlan handles POST /api/sessions/{sessionID}/plan/send. A partial
// delivery is a 200 whose report lists the failures; total failure is a 502
// carrying the same report.
func (h *WorkflowHandler) SendPlan(w http.ResponseWriter, r *http.Request) {
	var msg treatment.Message
	if err := decodeOptionalJSON(w, r, &msg); err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.svc.SendPlan(r.Context(), sessionID(r), msg)
	if err != nil {
		if report == nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Complete handles POST /api/sessions/{sessionID}/complete. When some close-out
// step fails the partial result is returned with the error so the client can retry.
func (h *WorkflowHandler) Complete(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Complete(r.Context(), sessionID(r))
	if err != nil {
		if res == nil {
			h.writeError(w, r, err)
			return
		}
		h.logger.Error("session completion incomplete", "session_id", sessionID(r), "error", err)
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
