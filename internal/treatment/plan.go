// Package treatment produces the patient-facing treatment plan, delivers it
// by email and closes out the clinical session.
package treatment

import (
	"errors"
	"time"

	"github.com/wolfman30/physioflow/internal/exercises"
)

var (
	ErrSessionRequired    = errors.New("treatment: session id required")
	ErrPatientRequired    = errors.New("treatment: patient id required")
	ErrPlanNotFound       = errors.New("treatment: plan not found")
	ErrInvalidEmail       = errors.New("treatment: invalid email address")
	ErrDuplicateRecipient = errors.New("treatment: recipient already added")
	ErrNoRecipients       = errors.New("treatment: at least one recipient is required")
	// ErrDeliveryFailed is returned when no recipient received the plan.
	ErrDeliveryFailed = errors.New("treatment: delivery failed for all recipients")
	// ErrCompletionIncomplete is returned when at least one close-out step failed; retrying is safe.
	ErrCompletionIncomplete = errors.New("treatment: session completion incomplete")
)

// Status of a treatment plan.
type Status string

const (
	StatusDraft Status = "draft"
	StatusSent  Status = "sent"
)

// Plan is the one treatment plan of a session.
type Plan struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	PatientID string         `json:"patient_id"`
	Status    Status         `json:"status"`
	Notes     string         `json:"notes,omitempty"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
	Exercises exercises.Plan `json:"exercises"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (p *Plan) clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Exercises = p.Exercises.Clone()
	if p.SentAt != nil {
		t := *p.SentAt
		cp.SentAt = &t
	}
	return &cp
}
