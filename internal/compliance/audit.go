// Package compliance keeps the clinical audit trail: who finalized which
// note, which plan went to which addresses, and when sessions closed.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AuditEventType represents the type of clinical event.
type AuditEventType string

const (
	// EventNoteGenerated is logged when the model produces a note version.
	EventNoteGenerated AuditEventType = "note.generated"
	// EventNoteFinalized is logged when a version is promoted to final.
	EventNoteFinalized AuditEventType = "note.finalized"
	// EventPlanSent is logged when a treatment plan is dispatched to recipients.
	EventPlanSent AuditEventType = "plan.sent"
	// EventSessionCompleted is logged when a session is closed out.
	EventSessionCompleted AuditEventType = "session.completed"
)

// AuditEvent represents an immutable audit record.
type AuditEvent struct {
	ID         string          `json:"id"`
	EventType  AuditEventType  `json:"event_type"`
	SessionID  string          `json:"session_id"`
	PatientID  string          `json:"patient_id,omitempty"`
	PlanID     string          `json:"plan_id,omitempty"`
	VersionID  string          `json:"version_id,omitempty"`
	Recipients []string        `json:"recipients,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	Version   int      `json:"version,omitempty"`
	EditType  string   `json:"edit_type,omitempty"`
	Delivered int      `json:"delivered,omitempty"`
	Failed    int      `json:"failed,omitempty"`
	Outcome   string   `json:"outcome,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// AuditService writes audit events through database/sql.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	details := []byte(event.Details)
	if len(details) == 0 {
		details = []byte("{}")
	}

	query := `
		INSERT INTO clinical_audit_events (
			id, event_type, session_id, patient_id, plan_id,
			version_id, recipients, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		event.SessionID,
		nullString(event.PatientID),
		nullString(event.PlanID),
		nullString(event.VersionID),
		pq.Array(event.Recipients),
		details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

func (s *AuditService) logWithDetails(ctx context.Context, event AuditEvent, details AuditDetails) error {
	detailsJSON, _ := json.Marshal(details)
	event.Details = detailsJSON
	return s.LogEvent(ctx, event)
}

// LogNoteGenerated records an AI-produced note version.
func (s *AuditService) LogNoteGenerated(ctx context.Context, sessionID, versionID string, version int, editType string) error {
	return s.logWithDetails(ctx, AuditEvent{
		EventType: EventNoteGenerated,
		SessionID: sessionID,
		VersionID: versionID,
	}, AuditDetails{Version: version, EditType: editType})
}

// LogNoteFinalized records the promotion of a version to final.
func (s *AuditService) LogNoteFinalized(ctx context.Context, sessionID, versionID string, version int) error {
	return s.logWithDetails(ctx, AuditEvent{
		EventType: EventNoteFinalized,
		SessionID: sessionID,
		VersionID: versionID,
	}, AuditDetails{Version: version, EditType: "final"})
}

// LogPlanSent records a dispatch attempt and its per-recipient outcome.
func (s *AuditService) LogPlanSent(ctx context.Context, sessionID, patientID, planID string, recipients []string, delivered, failed int, outcome string) error {
	return s.logWithDetails(ctx, AuditEvent{
		EventType:  EventPlanSent,
		SessionID:  sessionID,
		PatientID:  patientID,
		PlanID:     planID,
		Recipients: recipients,
	}, AuditDetails{Delivered: delivered, Failed: failed, Outcome: outcome})
}

// LogSessionCompleted records a session close-out, including step errors.
func (s *AuditService) LogSessionCompleted(ctx context.Context, sessionID, planID string, stepErrors []string) error {
	outcome := "ok"
	if len(stepErrors) > 0 {
		outcome = "failed"
	}
	return s.logWithDetails(ctx, AuditEvent{
		EventType: EventSessionCompleted,
		SessionID: sessionID,
		PlanID:    planID,
	}, AuditDetails{Outcome: outcome, Errors: stepErrors})
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, session_id, patient_id, plan_id,
			   version_id, recipients, details, created_at
		FROM clinical_audit_events
		WHERE session_id = $1
	`
	args := []interface{}{filter.SessionID}
	argIdx := 2

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, string(filter.EventType))
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var eventType string
		var patientID, planID, versionID sql.NullString
		var details []byte
		err := rows.Scan(
			&e.ID, &eventType, &e.SessionID, &patientID, &planID,
			&versionID, pq.Array(&e.Recipients), &details, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.EventType = AuditEventType(eventType)
		e.PatientID = patientID.String
		e.PlanID = planID.String
		e.VersionID = versionID.String
		e.Details = json.RawMessage(details)
		events = append(events, e)
	}

	return events, rows.Err()
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	SessionID string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
