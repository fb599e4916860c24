package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/physioflow/internal/capture"
	"github.com/wolfman30/physioflow/internal/exercises"
	"github.com/wolfman30/physioflow/internal/notes"
	"github.com/wolfman30/physioflow/internal/observability/metrics"
	"github.com/wolfman30/physioflow/internal/sessions"
	"github.com/wolfman30/physioflow/internal/soap"
	"github.com/wolfman30/physioflow/internal/treatment"
	"github.com/wolfman30/physioflow/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var workflowTracer = otel.Tracer("physio.internal.workflow")

// ErrSessionClosed is returned for sessions that were already completed.
var ErrSessionClosed = errors.New("workflow: session already completed")

// SessionStarter opens and looks up clinical sessions.
type SessionStarter interface {
	StartFromAppointment(ctx context.Context, req sessions.StartRequest) (*sessions.Session, error)
	Get(ctx context.Context, id string) (*sessions.Session, error)
}

// NoteEditor is the versioned SOAP note store.
type NoteEditor interface {
	LoadVersions(ctx context.Context, sessionID string) (notes.Snapshot, error)
	Generate(ctx context.Context, sessionID string, req soap.Request) (*notes.Version, error)
	SaveOnBlur(ctx context.Context, sessionID string, current soap.Summary) (*notes.Version, error)
	Restore(ctx context.Context, sessionID, versionID string) (*notes.Version, error)
	Forget(sessionID string)
}

// ExerciseCatalog is the exercise library.
type ExerciseCatalog interface {
	Search(ctx context.Context, filter exercises.Filter) ([]exercises.Exercise, error)
	Get(ctx context.Context, id string) (*exercises.Exercise, error)
	CreateCustom(ctx context.Context, plan *exercises.Plan, fields exercises.CustomExercise) (*exercises.Exercise, error)
}

// PlanFinalizer owns treatment plans, delivery and session close-out.
type PlanFinalizer interface {
	EnsurePlan(ctx context.Context, sessionID, patientID string) (*treatment.Plan, error)
	SavePrescriptions(ctx context.Context, planID string, items exercises.Plan) error
	Send(ctx context.Context, planID string, recipients *treatment.RecipientList, msg treatment.Message) (*treatment.DeliveryReport, error)
	Complete(ctx context.Context, req treatment.CompleteRequest) (*treatment.CompletionResult, error)
}

// Deps wires a Service. States, Metrics and Logger are optional.
type Deps struct {
	Sessions          SessionStarter
	Notes             NoteEditor
	Library           ExerciseCatalog
	Plans             PlanFinalizer
	States            StateStore
	Metrics           *metrics.WorkflowMetrics
	Logger            *logging.Logger
	DictationDisabled bool
}

// View is what a client renders for the current session.
type View struct {
	SessionID     string        `json:"session_id"`
	PatientID     string        `json:"patient_id"`
	AppointmentID string        `json:"appointment_id,omitempty"`
	Step          Step          `json:"step"`
	CanAdvance    bool          `json:"can_advance"`
	Data          SessionData   `json:"data"`
	Capture       capture.State `json:"capture"`
	PlanID        string        `json:"plan_id,omitempty"`
	Recipients    []string      `json:"recipients"`
}

type liveSession struct {
	mu            sync.Mutex
	sessionID     string
	patientID     string
	appointmentID string
	planID        string
	ctrl          *Controller
	capture       *capture.Transcript
	recipients    *treatment.RecipientList
	activeVersion string
}

// syncCapture copies the capture buffer into the aggregate.
func (l *liveSession) syncCapture() {
	st := l.capture.Snapshot()
	l.ctrl.Update(DataUpdate{Transcript: &st.Transcript, ClinicianNotes: &st.ClinicianNotes})
}

func (l *liveSession) view() *View {
	recipients := l.recipients.Addresses()
	if recipients == nil {
		recipients = []string{}
	}
	return &View{
		SessionID:     l.sessionID,
		PatientID:     l.patientID,
		AppointmentID: l.appointmentID,
		Step:          l.ctrl.Step(),
		CanAdvance:    l.ctrl.CanAdvance() == nil,
		Data:          l.ctrl.Data(),
		Capture:       l.capture.Snapshot(),
		PlanID:        l.planID,
		Recipients:    recipients,
	}
}

func (l *liveSession) state() *State {
	return &State{
		SessionID:       l.sessionID,
		PatientID:       l.patientID,
		AppointmentID:   l.appointmentID,
		Step:            l.ctrl.Step(),
		Data:            l.ctrl.Data(),
		PlanID:          l.planID,
		Recipients:      l.recipients.Addresses(),
		ActiveVersionID: l.activeVersion,
		UpdatedAt:       time.Now().UTC(),
	}
}

// Service drives every open session through the workflow.
type Service struct {
	sessions  SessionStarter
	notes     NoteEditor
	library   ExerciseCatalog
	plans     PlanFinalizer
	states    StateStore
	metrics   *metrics.WorkflowMetrics
	logger    *logging.Logger
	dictation bool

	mu   sync.Mutex
	live map[string]*liveSession
}

func NewService(d Deps) *Service {
	if d.Sessions == nil || d.Notes == nil || d.Library == nil || d.Plans == nil {
		panic("workflow: sessions, notes, library and plans are required")
	}
	if d.States == nil {
		d.States = NewMemoryStateStore()
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	return &Service{
		sessions:  d.Sessions,
		notes:     d.Notes,
		library:   d.Library,
		plans:     d.Plans,
		states:    d.States,
		metrics:   d.Metrics,
		logger:    d.Logger,
		dictation: !d.DictationDisabled,
		live:      make(map[string]*liveSession),
	}
}

// Start opens (or resumes) the session for an appointment.
func (s *Service) Start(ctx context.Context, req sessions.StartRequest) (*View, error) {
	ctx, span := workflowTracer.Start(ctx, "workflow.start")
	defer span.End()

	sess, err := s.sessions.StartFromAppointment(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("physio.session_id", sess.ID))
	if sess.Status == sessions.StatusCompleted {
		return nil, ErrSessionClosed
	}

	live, err := s.session(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	s.persist(ctx, live)
	s.logger.ForSession(sess.ID).Info("workflow: session started", "patient_id", sess.PatientID, "step", live.ctrl.Step())
	return live.view(), nil
}

// session returns the live session, resuming saved state or creating a
// fresh workflow for a known session.
func (s *Service) session(ctx context.Context, sessionID string) (*liveSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, notes.ErrSessionRequired
	}
	s.mu.Lock()
	live, ok := s.live[sessionID]
	s.mu.Unlock()
	if ok {
		return live, nil
	}

	live, err := s.resume(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.live[sessionID]; ok {
		return existing, nil
	}
	s.live[sessionID] = live
	return live, nil
}

func (s *Service) resume(ctx context.Context, sessionID string) (*liveSession, error) {
	saved, err := s.states.Load(ctx, sessionID)
	switch {
	case err == nil:
		live := &liveSession{
			sessionID:     saved.SessionID,
			patientID:     saved.PatientID,
			appointmentID: saved.AppointmentID,
			planID:        saved.PlanID,
			ctrl:          RestoreController(saved.Step, saved.Data),
			capture:       capture.New(saved.Data.Transcript, saved.Data.ClinicianNotes, s.dictation),
			recipients:    treatment.NewRecipientList(saved.Recipients...),
			activeVersion: saved.ActiveVersionID,
		}
		// The blur baseline is the active version, not necessarily the newest.
		if live.activeVersion != "" {
			if _, err := s.notes.Restore(ctx, live.sessionID, live.activeVersion); err != nil {
				s.logger.Warn("workflow: active note version not restored", "session_id", live.sessionID, "version_id", live.activeVersion, "error", err)
				live.activeVersion = ""
			}
		}
		return live, nil
	case !errors.Is(err, ErrStateNotFound):
		s.logger.Warn("workflow: state load failed, starting fresh", "session_id", sessionID, "error", err)
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == sessions.StatusCompleted {
		return nil, ErrSessionClosed
	}
	return &liveSession{
		sessionID:     sess.ID,
		patientID:     sess.PatientID,
		appointmentID: sess.AppointmentID,
		ctrl:          NewController(),
		capture:       capture.New("", "", s.dictation),
		recipients:    treatment.NewRecipientList(),
	}, nil
}

// persist saves the live state. Callers hold live.mu. Failures only cost
// resumability, so they are logged.
func (s *Service) persist(ctx context.Context, live *liveSession) {
	if err := s.states.Save(ctx, live.state()); err != nil {
		s.logger.Warn("workflow: state save failed", "session_id", live.sessionID, "error", err)
	}
}

// with runs fn under the session lock and persists afterwards when fn succeeds.
func (s *Service) with(ctx context.Context, sessionID string, fn func(live *liveSession) error) (*View, error) {
	live, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	if err := fn(live); err != nil {
		return nil, err
	}
	s.persist(ctx, live)
	return live.view(), nil
}

// View returns the current step and aggregate.
func (s *Service) View(ctx context.Context, sessionID string) (*View, error) {
	live, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	return live.view(), nil
}

// Advance moves to the next step when the current gate allows it. Entering
// finalize ensures the treatment plan exists and saves the prescriptions;
// if that fails the step is not changed.
func (s *Service) Advance(ctx context.Context, sessionID string) (*View, error) {
	ctx, span := workflowTracer.Start(ctx, "workflow.advance", trace.WithAttributes(attribute.String("physio.session_id", sessionID)))
	defer span.End()

	return s.with(ctx, sessionID, func(live *liveSession) error {
		live.syncCapture()
		from := live.ctrl.Step()
		to, err := live.ctrl.Advance()
		if err != nil {
			return err
		}
		if from == to {
			return nil
		}
		if from == StepConsultation {
			live.capture.Stop()
		}
		if to == StepFinalize {
			if err := s.preparePlan(ctx, live); err != nil {
				live.ctrl.Retreat()
				span.RecordError(err)
				return err
			}
		}
		s.metrics.ObserveStepTransition(from.String(), to.String())
		s.logger.ForSession(live.sessionID).Info("workflow: advanced", "from", from, "to", to)
		return nil
	})
}

func (s *Service) preparePlan(ctx context.Context, live *liveSession) error {
	plan, err := s.plans.EnsurePlan(ctx, live.sessionID, live.patientID)
	if err != nil {
		return fmt.Errorf("workflow: ensure plan: %w", err)
	}
	if err := s.plans.SavePrescriptions(ctx, plan.ID, live.ctrl.Data().SelectedExercises); err != nil {
		return fmt.Errorf("workflow: save prescriptions: %w", err)
	}
	live.planID = plan.ID
	return nil
}

// Retreat moves back one step. Data is never discarded.
func (s *Service) Retreat(ctx context.Context, sessionID string) (*View, error) {
	return s.with(ctx, sessionID, func(live *liveSession) error {
		from := live.ctrl.Step()
		to := live.ctrl.Retreat()
		if from != to {
			s.metrics.ObserveStepTransition(from.String(), to.String())
		}
		return nil
	})
}

// UpdateData shallow-merges u into the aggregate. A transcript edit is
// rejected while capture is running. A replacement exercise list must pass
// plan validation and reference library exercises only.
func (s *Service) UpdateData(ctx context.Context, sessionID string, u DataUpdate) (*View, error) {
	if u.SelectedExercises != nil {
		resolved, err := s.resolvePlan(ctx, *u.SelectedExercises)
		if err != nil {
			return nil, err
		}
		u.SelectedExercises = &resolved
	}
	return s.with(ctx, sessionID, func(live *liveSession) error {
		if u.Transcript != nil {
			if err := live.capture.SetTranscript(*u.Transcript); err != nil {
				return err
			}
		}
		if u.ClinicianNotes != nil {
			live.capture.SetNotes(*u.ClinicianNotes)
		}
		live.ctrl.Update(u)
		return nil
	})
}

// resolvePlan validates a client-supplied plan and replaces each exercise
// with the library record it names.
func (s *Service) resolvePlan(ctx context.Context, plan exercises.Plan) (exercises.Plan, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	out := plan.Clone()
	if out == nil {
		out = exercises.Plan{}
	}
	for i := range out {
		ex, err := s.library.Get(ctx, out[i].Exercise.ID)
		if err != nil {
			return nil, fmt.Errorf("workflow: selected exercise %s: %w", out[i].Exercise.ID, err)
		}
		out[i].Exercise = *ex
	}
	return out, nil
}
