package notes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/wolfman30/physioflow/internal/observability/metrics"
	"github.com/wolfman30/physioflow/internal/soap"
	"github.com/wolfman30/physioflow/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var notesTracer = otel.Tracer("physio.internal.notes")

// Phase is the per-session editing state. Only one non-idle phase may be
// active at a time; competing requests are rejected, not queued.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGenerating
	PhaseSaving
	PhaseFinalizing
)

func (p Phase) String() string {
	switch p {
	case PhaseGenerating:
		return "generating"
	case PhaseSaving:
		return "saving"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// Generator produces SOAP summaries.
type Generator interface {
	GenerateSOAP(ctx context.Context, req soap.Request) (soap.Summary, error)
}

// Auditor records AI-produced versions in the clinical audit trail.
type Auditor interface {
	LogNoteGenerated(ctx context.Context, sessionID, versionID string, version int, editType string) error
}

type sessionState struct {
	phase          Phase
	baseline       soap.Summary
	baselineLoaded bool
	activeVersion  string
}

// Store coordinates note edits for every open session.
type Store struct {
	repo      Repository
	generator Generator
	logger    *logging.Logger
	metrics   *metrics.WorkflowMetrics
	audit     Auditor

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

func WithMetrics(m *metrics.WorkflowMetrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

func WithAuditor(a Auditor) StoreOption {
	return func(s *Store) { s.audit = a }
}

func NewStore(repo Repository, generator Generator, logger *logging.Logger, opts ...StoreOption) *Store {
	if repo == nil {
		panic("notes: repository required")
	}
	if generator == nil {
		panic("notes: generator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		repo:      repo,
		generator: generator,
		logger:    logger,
		sessions:  make(map[string]*sessionState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) stateLocked(sessionID string) *sessionState {
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		s.sessions[sessionID] = st
	}
	return st
}

// acquire moves the session out of idle or reports ErrBusy.
func (s *Store) acquire(sessionID string, phase Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(sessionID)
	if st.phase != PhaseIdle {
		s.metrics.ObserveBusyRejection(phase.String())
		return fmt.Errorf("%w: %s while %s", ErrBusy, phase, st.phase)
	}
	st.phase = phase
	return nil
}

func (s *Store) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateLocked(sessionID).phase = PhaseIdle
}

func (s *Store) remember(sessionID string, v *Version) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(sessionID)
	st.baseline = v.Content
	st.baselineLoaded = true
	st.activeVersion = v.ID
}

// Phase reports the current editing phase for a session.
func (s *Store) Phase(sessionID string) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[sessionID]; ok {
		return st.phase
	}
	return PhaseIdle
}

// Forget drops cached editing state, typically once a session is completed.
func (s *Store) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// LoadVersions returns every version (newest first) and makes the newest the
// working note. A session with no versions yields an empty working note.
func (s *Store) LoadVersions(ctx context.Context, sessionID string) (Snapshot, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Snapshot{}, ErrSessionRequired
	}
	versions, err := s.repo.List(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if versions == nil {
		versions = []Version{}
	}

	snap := Snapshot{Versions: versions}
	s.mu.Lock()
	st := s.stateLocked(sessionID)
	if len(versions) > 0 {
		snap.Current = versions[0].Content
		snap.ActiveVersionID = versions[0].ID
	}
	st.baseline = snap.Current
	st.baselineLoaded = true
	st.activeVersion = snap.ActiveVersionID
	s.mu.Unlock()
	return snap, nil
}

// Generate asks the model for a fresh note or a revision of the current one
// and appends the result. On failure nothing is written.
func (s *Store) Generate(ctx context.Context, sessionID string, req soap.Request) (*Version, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	ctx, span := notesTracer.Start(ctx, "notes.generate", trace.WithAttributes(attribute.String("physio.session_id", sessionID)))
	defer span.End()

	if err := s.acquire(sessionID, PhaseGenerating); err != nil {
		return nil, err
	}
	defer s.release(sessionID)

	summary, err := s.generator.GenerateSOAP(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("notes: generation failed", "session_id", sessionID, "error", err)
		return nil, err
	}

	editType := EditAIGenerated
	if _, ok := req.(soap.Revision); ok {
		editType = EditAIRevision
	}
	v, err := s.repo.Append(ctx, NewVersion{
		SessionID: sessionID,
		Content:   summary,
		EditType:  editType,
		Prompt:    req.Instruction(),
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.remember(sessionID, v)
	s.metrics.ObserveNoteVersion(string(v.EditType))
	s.logger.Info("notes: version generated", "session_id", sessionID, "version_id", v.ID, "version", v.Version, "edit_type", v.EditType)
	if s.audit != nil {
		if err := s.audit.LogNoteGenerated(ctx, sessionID, v.ID, v.Version, string(v.EditType)); err != nil {
			s.logger.Warn("notes: audit failed", "session_id", sessionID, "error", err)
		}
	}
	return v, nil
}

// SaveOnBlur records a manual edit when the working note differs from the
// last saved content. It returns (nil, nil) when there is nothing to save.
func (s *Store) SaveOnBlur(ctx context.Context, sessionID string, current soap.Summary) (*Version, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	ctx, span := notesTracer.Start(ctx, "notes.save_on_blur", trace.WithAttributes(attribute.String("physio.session_id", sessionID)))
	defer span.End()

	if err := s.acquire(sessionID, PhaseSaving); err != nil {
		return nil, err
	}
	defer s.release(sessionID)

	baseline, err := s.baseline(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if current.Equal(baseline) {
		return nil, nil
	}

	v, err := s.repo.Append(ctx, NewVersion{
		SessionID: sessionID,
		Content:   current,
		EditType:  EditBlurManual,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.remember(sessionID, v)
	s.metrics.ObserveNoteVersion(string(v.EditType))
	s.logger.Info("notes: manual edit saved", "session_id", sessionID, "version_id", v.ID, "version", v.Version)
	return v, nil
}

func (s *Store) baseline(ctx context.Context, sessionID string) (soap.Summary, error) {
	s.mu.Lock()
	st := s.stateLocked(sessionID)
	if st.baselineLoaded {
		b := st.baseline
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	latest, err := s.repo.Latest(ctx, sessionID)
	if err != nil {
		return soap.Summary{}, err
	}
	var b soap.Summary
	var id string
	if latest != nil {
		b, id = latest.Content, latest.ID
	}

	s.mu.Lock()
	st.baseline = b
	st.baselineLoaded = true
	st.activeVersion = id
	s.mu.Unlock()
	return b, nil
}

// Restore makes a past version the working note without creating a new
// version. The restored content becomes the save baseline, so a blur with no
// further edits writes nothing.
func (s *Store) Restore(ctx context.Context, sessionID, versionID string) (*Version, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	v, err := s.repo.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.SessionID != sessionID {
		return nil, ErrVersionNotFound
	}
	s.remember(sessionID, v)
	s.logger.Debug("notes: version restored", "session_id", sessionID, "version_id", v.ID, "version", v.Version)
	return v, nil
}

// Finalize promotes the newest version to final and removes the rest. A
// session without versions finalizes to (nil, nil).
func (s *Store) Finalize(ctx context.Context, sessionID string) (*Version, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	ctx, span := notesTracer.Start(ctx, "notes.finalize", trace.WithAttributes(attribute.String("physio.session_id", sessionID)))
	defer span.End()

	if err := s.acquire(sessionID, PhaseFinalizing); err != nil {
		return nil, err
	}
	defer s.release(sessionID)

	v, err := s.repo.PromoteLatest(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	s.remember(sessionID, v)
	s.metrics.ObserveNoteVersion(string(EditFinal))
	s.logger.Info("notes: note finalized", "session_id", sessionID, "version_id", v.ID, "version", v.Version)
	return v, nil
}

// AttachNarrative stores the patient-facing overview on a version.
func (s *Store) AttachNarrative(ctx context.Context, versionID, narrative string) error {
	return s.repo.SetFullSummary(ctx, versionID, narrative)
}

// Current returns the newest stored version, or (nil, nil) when none exist.
func (s *Store) Current(ctx context.Context, sessionID string) (*Version, error) {
	return s.repo.Latest(ctx, sessionID)
}
