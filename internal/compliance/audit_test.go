package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	tests := []struct {
		name    string
		event   AuditEvent
		execErr error
		wantErr bool
	}{
		{
			name: "note generated",
			event: AuditEvent{
				EventType: EventNoteGenerated,
				SessionID: uuid.New().String(),
				VersionID: "v-1",
			},
		},
		{
			name: "plan sent with recipients",
			event: AuditEvent{
				EventType:  EventPlanSent,
				SessionID:  uuid.New().String(),
				PlanID:     "plan-1",
				Recipients: []string{"a@x.com", "b@x.com"},
				Details:    json.RawMessage(`{"delivered":2}`),
			},
		},
		{
			name: "database failure",
			event: AuditEvent{
				EventType: EventSessionCompleted,
				SessionID: "sess-1",
			},
			execErr: errors.New("connection reset"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := mock.ExpectExec("INSERT INTO clinical_audit_events")
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(1, 1))
			}

			err := service.LogEvent(context.Background(), tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogPlanSent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	mock.ExpectExec("INSERT INTO clinical_audit_events").
		WithArgs(sqlmock.AnyArg(), "plan.sent", "sess-1", "pat-1", "plan-1", nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.LogPlanSent(context.Background(), "sess-1", "pat-1", "plan-1", []string{"a@x.com"}, 1, 0, "full")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogSessionCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	mock.ExpectExec("INSERT INTO clinical_audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.LogSessionCompleted(context.Background(), "sess-1", "", []string{"update appointment: timeout"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_NilIsNoop(t *testing.T) {
	var service *AuditService
	assert.NoError(t, service.LogNoteFinalized(context.Background(), "sess-1", "v-1", 3))
}

func TestAuditService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "event_type", "session_id", "patient_id", "plan_id",
		"version_id", "recipients", "details", "created_at",
	}).AddRow(
		uuid.New().String(), "plan.sent", "sess-1", "pat-1", "plan-1",
		nil, []byte(`{a@x.com,b@x.com}`), []byte(`{"delivered":2}`), now,
	)

	mock.ExpectQuery("SELECT (.+) FROM clinical_audit_events").
		WillReturnRows(rows)

	filter := AuditFilter{
		SessionID: "sess-1",
		EventType: EventPlanSent,
		StartTime: now.Add(-24 * time.Hour),
		EndTime:   now,
		Limit:     100,
	}

	events, err := service.QueryEvents(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventPlanSent, events[0].EventType)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, events[0].Recipients)
	assert.Empty(t, events[0].VersionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditEventType_String(t *testing.T) {
	tests := []struct {
		eventType AuditEventType
		expected  string
	}{
		{EventNoteGenerated, "note.generated"},
		{EventNoteFinalized, "note.finalized"},
		{EventPlanSent, "plan.sent"},
		{EventSessionCompleted, "session.completed"},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.eventType))
		})
	}
}
