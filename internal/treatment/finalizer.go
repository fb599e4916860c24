package treatment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/physioflow/internal/exercises"
	"github.com/wolfman30/physioflow/internal/notes"
	"github.com/wolfman30/physioflow/internal/notify"
	"github.com/wolfman30/physioflow/internal/observability/metrics"
	"github.com/wolfman30/physioflow/internal/soap"
	"github.com/wolfman30/physioflow/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var treatmentTracer = otel.Tracer("physio.internal.treatment")

const defaultMaxParallel = 8

// NoteSource is the part of the note store the finalizer needs.
type NoteSource interface {
	Current(ctx context.Context, sessionID string) (*notes.Version, error)
	Finalize(ctx context.Context, sessionID string) (*notes.Version, error)
	AttachNarrative(ctx context.Context, versionID, narrative string) error
}

// Narrator writes the short patient-facing overview.
type Narrator interface {
	NarrativeSummary(ctx context.Context, summary soap.Summary, items []soap.NarrativeExercise) (string, error)
}

// SessionCloser moves the session and its appointment to completed.
type SessionCloser interface {
	MarkCompleted(ctx context.Context, sessionID string) error
	CompleteAppointment(ctx context.Context, appointmentID string) error
}

// Auditor records clinical events. Failures are logged, never returned.
type Auditor interface {
	LogNoteFinalized(ctx context.Context, sessionID, versionID string, version int) error
	LogPlanSent(ctx context.Context, sessionID, patientID, planID string, recipients []string, delivered, failed int, outcome string) error
	LogSessionCompleted(ctx context.Context, sessionID, planID string, stepErrors []string) error
}

// Finalizer owns the treatment plan lifecycle.
type Finalizer struct {
	repo      Repository
	notes     NoteSource
	narrator  Narrator
	sessions  SessionCloser
	sender    notify.EmailSender
	composer  *Composer
	artifacts *ArtifactStore
	audit     Auditor
	metrics   *metrics.WorkflowMetrics
	logger    *logging.Logger

	maxParallel int
	now         func() time.Time

	flight singleflight.Group
	mu     sync.Mutex
	memo   map[string]string
}

// Deps wires a Finalizer. Artifacts, Audit and Metrics are optional.
type Deps struct {
	Repository  Repository
	Notes       NoteSource
	Narrator    Narrator
	Sessions    SessionCloser
	Sender      notify.EmailSender
	Composer    *Composer
	Artifacts   *ArtifactStore
	Audit       Auditor
	Metrics     *metrics.WorkflowMetrics
	Logger      *logging.Logger
	MaxParallel int
}

func NewFinalizer(d Deps) *Finalizer {
	if d.Repository == nil {
		panic("treatment: repository required")
	}
	if d.Notes == nil || d.Sessions == nil || d.Sender == nil || d.Composer == nil {
		panic("treatment: notes, sessions, sender and composer are required")
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.MaxParallel <= 0 {
		d.MaxParallel = defaultMaxParallel
	}
	return &Finalizer{
		repo:        d.Repository,
		notes:       d.Notes,
		narrator:    d.Narrator,
		sessions:    d.Sessions,
		sender:      d.Sender,
		composer:    d.Composer,
		artifacts:   d.Artifacts,
		audit:       d.Audit,
		metrics:     d.Metrics,
		logger:      d.Logger,
		maxParallel: d.MaxParallel,
		now:         func() time.Time { return time.Now().UTC() },
		memo:        make(map[string]string),
	}
}

func planKey(sessionID, patientID string) string {
	return sessionID + "|" + patientID
}

// EnsurePlan returns the session's plan, creating it on first use. Lookups
// for the same (session, patient) pair are memoized and concurrent callers
// share one lookup-or-insert.
func (f *Finalizer) EnsurePlan(ctx context.Context, sessionID, patientID string) (*Plan, error) {
	sessionID, patientID = strings.TrimSpace(sessionID), strings.TrimSpace(patientID)
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	if patientID == "" {
		return nil, ErrPatientRequired
	}
	key := planKey(sessionID, patientID)

	f.mu.Lock()
	planID, ok := f.memo[key]
	f.mu.Unlock()
	if ok {
		return f.repo.Get(ctx, planID)
	}

	v, err, _ := f.flight.Do(key, func() (any, error) {
		plan, err := f.repo.FindBySessionPatient(ctx, sessionID, patientID)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			if plan, err = f.repo.Create(ctx, sessionID, patientID); err != nil {
				return nil, err
			}
			f.logger.Info("treatment: plan created", "session_id", sessionID, "plan_id", plan.ID)
		}
		f.mu.Lock()
		f.memo[key] = plan.ID
		f.mu.Unlock()
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Plan).clone(), nil
}

// SavePrescriptions persists the ordered exercise list against the plan.
func (f *Finalizer) SavePrescriptions(ctx context.Context, planID string, items exercises.Plan) error {
	if err := f.repo.ReplaceExercises(ctx, planID, items); err != nil {
		return err
	}
	f.logger.Debug("treatment: prescriptions saved", "plan_id", planID, "count", len(items))
	return nil
}

func (f *Finalizer) Get(ctx context.Context, planID string) (*Plan, error) {
	return f.repo.Get(ctx, planID)
}

func (f *Finalizer) loadForRender(ctx context.Context, planID string) (*Plan, soap.Summary, string, error) {
	plan, err := f.repo.Get(ctx, planID)
	if err != nil {
		return nil, soap.Summary{}, "", err
	}
	current, err := f.notes.Current(ctx, plan.SessionID)
	if err != nil {
		return nil, soap.Summary{}, "", err
	}
	if current == nil {
		return plan, soap.Summary{}, "", nil
	}
	return plan, current.Content, current.FullSummary, nil
}

// ComposeEmail renders the email for a plan from its current note.
func (f *Finalizer) ComposeEmail(ctx context.Context, planID string, msg Message) (*Email, error) {
	plan, note, narrative, err := f.loadForRender(ctx, planID)
	if err != nil {
		return nil, err
	}
	return f.composer.ComposeEmail(plan, note, narrative, msg)
}

// RenderPage renders the public viewer page for a plan.
func (f *Finalizer) RenderPage(ctx context.Context, planID string) (string, error) {
	plan, note, narrative, err := f.loadForRender(ctx, planID)
	if err != nil {
		return "", err
	}
	return f.composer.RenderPage(plan, note, narrative)
}

// MarkDispatched records the plan as sent. It runs as soon as delivery
// starts, before any per-recipient result is known.
func (f *Finalizer) MarkDispatched(ctx context.Context, planID string) (time.Time, error) {
	at := f.now()
	if err := f.repo.MarkSent(ctx, planID, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// ConfirmDelivered records per-recipient results. It never changes plan status.
func (f *Finalizer) ConfirmDelivered(ctx context.Context, plan *Plan, report *DeliveryReport) {
	delivered, failed := report.Delivered(), report.Failed()
	for range delivered {
		f.metrics.ObserveEmailDelivery(true)
	}
	for range failed {
		f.metrics.ObserveEmailDelivery(false)
	}
	outcome := report.Outcome()
	f.metrics.ObservePlanSend(string(outcome))
	f.logger.Info("treatment: plan delivery finished",
		"plan_id", plan.ID,
		"session_id", plan.SessionID,
		"outcome", outcome,
		"delivered", len(delivered),
		"failed", len(failed),
	)
	if f.audit != nil {
		if err := f.audit.LogPlanSent(ctx, plan.SessionID, plan.PatientID, plan.ID, report.Recipients(), len(delivered), len(failed), string(outcome)); err != nil {
			f.logger.Warn("treatment: audit plan sent failed", "plan_id", plan.ID, "error", err)
		}
	}
}

// Send delivers the plan to every recipient in parallel. The plan is marked
// sent once dispatch starts. A report is returned whenever dispatch was
// attempted; ErrDeliveryFailed accompanies it when nobody received the plan.
func (f *Finalizer) Send(ctx context.Context, planID string, recipients *RecipientList, msg Message) (*DeliveryReport, error) {
	ctx, span := treatmentTracer.Start(ctx, "treatment.send", trace.WithAttributes(attribute.String("physio.plan_id", planID)))
	defer span.End()

	to := recipients.Addresses()
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}

	email, err := f.ComposeEmail(ctx, planID, msg)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	plan, err := f.repo.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("physio.session_id", plan.SessionID), attribute.Int("physio.recipients", len(to)))

	dispatchedAt, err := f.MarkDispatched(ctx, planID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("treatment: mark dispatched: %w", err)
	}

	if _, err := f.artifacts.Put(ctx, planID, email.HTML); err != nil {
		f.logger.Warn("treatment: plan artifact upload failed", "plan_id", planID, "error", err)
	}

	results := make([]DeliveryResult, len(to))
	var g errgroup.Group
	g.SetLimit(f.maxParallel)
	for i, addr := range to {
		g.Go(func() error {
			err := f.sender.Send(ctx, notify.EmailMessage{
				To:      addr,
				Subject: email.Subject,
				Body:    "View your treatment plan: " + email.Link,
				HTML:    email.HTML,
			})
			results[i] = DeliveryResult{Recipient: addr, Err: err}
			if err != nil {
				f.logger.Warn("treatment: delivery failed", "plan_id", planID, "recipient", addr, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &DeliveryReport{PlanID: planID, DispatchedAt: dispatchedAt, Results: results}
	f.ConfirmDelivered(ctx, plan, report)
	if report.Outcome() == OutcomeFailed {
		span.RecordError(ErrDeliveryFailed)
		return report, ErrDeliveryFailed
	}
	return report, nil
}

// CompleteRequest identifies what to close out. AppointmentID and PlanID are optional.
type CompleteRequest struct {
	SessionID     string `json:"session_id"`
	AppointmentID string `json:"appointment_id,omitempty"`
	PlanID        string `json:"plan_id,omitempty"`
}

// CompletionResult summarizes what Complete did.
type CompletionResult struct {
	FinalVersion *notes.Version `json:"final_version,omitempty"`
	Narrative    bool           `json:"narrative"`
	PlanSent     bool           `json:"plan_sent"`
}

// Complete finalizes the note, attaches a narrative when possible, and marks
// the session and appointment completed. Every step is attempted even when an
// earlier one fails; any failure is reported so the caller can retry, which
// is safe because each step is idempotent.
func (f *Finalizer) Complete(ctx context.Context, req CompleteRequest) (*CompletionResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	ctx, span := treatmentTracer.Start(ctx, "treatment.complete", trace.WithAttributes(attribute.String("physio.session_id", sessionID)))
	defer span.End()
	logger := f.logger.ForSession(sessionID)

	var (
		res  CompletionResult
		errs []error
		plan *Plan
	)
	if req.PlanID != "" {
		p, err := f.repo.Get(ctx, req.PlanID)
		if err != nil {
			errs = append(errs, fmt.Errorf("load plan: %w", err))
		}
		plan = p
	}

	final, err := f.notes.Finalize(ctx, sessionID)
	if err != nil {
		errs = append(errs, fmt.Errorf("finalize note: %w", err))
	}
	if final != nil {
		res.FinalVersion = final
		if f.audit != nil {
			if err := f.audit.LogNoteFinalized(ctx, sessionID, final.ID, final.Version); err != nil {
				logger.Warn("treatment: audit note finalized failed", "error", err)
			}
		}
		res.Narrative = f.attachNarrative(ctx, logger, final, plan)
	}

	if err := f.sessions.MarkCompleted(ctx, sessionID); err != nil {
		errs = append(errs, err)
	}
	if appt := strings.TrimSpace(req.AppointmentID); appt != "" {
		if err := f.sessions.CompleteAppointment(ctx, appt); err != nil {
			errs = append(errs, err)
		}
	}
	if plan != nil && plan.Status == StatusSent {
		if _, err := f.MarkDispatched(ctx, plan.ID); err != nil {
			errs = append(errs, fmt.Errorf("confirm plan sent: %w", err))
		} else {
			res.PlanSent = true
		}
	}

	stepErrors := make([]string, 0, len(errs))
	for _, e := range errs {
		stepErrors = append(stepErrors, e.Error())
	}
	if f.audit != nil {
		if err := f.audit.LogSessionCompleted(ctx, sessionID, req.PlanID, stepErrors); err != nil {
			logger.Warn("treatment: audit session completed failed", "error", err)
		}
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		span.RecordError(joined)
		f.metrics.ObserveCompletion("failed")
		logger.Error("treatment: session completion incomplete", "error", joined)
		return &res, fmt.Errorf("%w: %w", ErrCompletionIncomplete, joined)
	}
	f.metrics.ObserveCompletion("ok")
	logger.Info("treatment: session completed", "plan_id", req.PlanID, "narrative", res.Narrative)
	return &res, nil
}

// attachNarrative is best effort; it reports whether a narrative is present.
func (f *Finalizer) attachNarrative(ctx context.Context, logger *logging.Logger, final *notes.Version, plan *Plan) bool {
	if strings.TrimSpace(final.FullSummary) != "" {
		return true
	}
	if f.narrator == nil {
		return false
	}
	var items []soap.NarrativeExercise
	if plan != nil {
		for _, p := range plan.Exercises {
			items = append(items, soap.NarrativeExercise{Name: p.Exercise.Name, Dosage: p.Dosage()})
		}
	}
	text, err := f.narrator.NarrativeSummary(ctx, final.Content, items)
	if err != nil {
		logger.Warn("treatment: narrative summary unavailable", "version_id", final.ID, "error", err)
		return false
	}
	if err := f.notes.AttachNarrative(ctx, final.ID, text); err != nil {
		logger.Warn("treatment: attach narrative failed", "version_id", final.ID, "error", err)
		return false
	}
	return true
}
