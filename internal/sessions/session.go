// Package sessions tracks clinical encounters and the appointments they close.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/physioflow/pkg/logging"
)

// Status is the lifecycle of a session.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// AppointmentStatus values this service writes.
const (
	AppointmentCompleted = "completed"
)

var (
	ErrSessionNotFound     = errors.New("sessions: session not found")
	ErrAppointmentNotFound = errors.New("sessions: appointment not found")
	ErrPatientRequired     = errors.New("sessions: patient id required")
)

// Session is one clinical encounter.
type Session struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patient_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Status        Status    `json:"status"`
	ClinicianName string    `json:"clinician_name,omitempty"`
	SessionDate   time.Time `json:"session_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StartRequest describes the appointment a clinician is starting.
type StartRequest struct {
	PatientID     string    `json:"patient_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	ClinicianName string    `json:"clinician_name,omitempty"`
	SessionDate   time.Time `json:"session_date"`
}

// Validate checks required fields.
func (r StartRequest) Validate() error {
	if strings.TrimSpace(r.PatientID) == "" {
		return ErrPatientRequired
	}
	return nil
}

// Repository persists sessions and appointment status.
type Repository interface {
	Get(ctx context.Context, id string) (*Session, error)
	FindByAppointment(ctx context.Context, appointmentID string) (*Session, error)
	Create(ctx context.Context, s *Session) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdateAppointmentStatus(ctx context.Context, appointmentID, status string) error
}

// Service implements session start and close-out.
type Service struct {
	repo   Repository
	logger *logging.Logger
}

func NewService(repo Repository, logger *logging.Logger) *Service {
	if repo == nil {
		panic("sessions: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// StartFromAppointment reuses the session already linked to the appointment
// or creates a new one. Either way the session ends up in progress.
func (s *Service) StartFromAppointment(ctx context.Context, req StartRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if appt := strings.TrimSpace(req.AppointmentID); appt != "" {
		existing, err := s.repo.FindByAppointment(ctx, appt)
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		if existing != nil {
			if existing.Status != StatusInProgress && existing.Status != StatusCompleted {
				if err := s.repo.UpdateStatus(ctx, existing.ID, StatusInProgress); err != nil {
					return nil, err
				}
				existing.Status = StatusInProgress
			}
			s.logger.Info("sessions: resumed session", "session_id", existing.ID, "appointment_id", appt)
			return existing, nil
		}
	}

	date := req.SessionDate
	if date.IsZero() {
		date = time.Now().UTC()
	}
	sess := &Session{
		PatientID:     strings.TrimSpace(req.PatientID),
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		Status:        StatusInProgress,
		ClinicianName: strings.TrimSpace(req.ClinicianName),
		SessionDate:   date,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("sessions: started session", "session_id", sess.ID, "patient_id", sess.PatientID, "appointment_id", sess.AppointmentID)
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.repo.Get(ctx, id)
}

// MarkCompleted is idempotent.
func (s *Service) MarkCompleted(ctx context.Context, sessionID string) error {
	if err := s.repo.UpdateStatus(ctx, sessionID, StatusCompleted); err != nil {
		return fmt.Errorf("sessions: complete session: %w", err)
	}
	return nil
}

// CompleteAppointment is idempotent.
func (s *Service) CompleteAppointment(ctx context.Context, appointmentID string) error {
	if err := s.repo.UpdateAppointmentStatus(ctx, appointmentID, AppointmentCompleted); err != nil {
		return fmt.Errorf("sessions: complete appointment: %w", err)
	}
	return nil
}
