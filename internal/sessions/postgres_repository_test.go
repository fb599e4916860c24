package sessions

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepositoryCreateAndFind(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithDB(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(pgxmock.AnyArg(), "pat-1", pgxmock.AnyArg(), "in_progress", "Dr. Lee", now).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	sess := &Session{PatientID: "pat-1", AppointmentID: "appt-1", Status: StatusInProgress, ClinicianName: "Dr. Lee", SessionDate: now}
	require.NoError(t, repo.Create(context.Background(), sess))
	assert.NotEmpty(t, sess.ID)

	cols := []string{"id", "patient_id", "appointment_id", "status", "clinician_name", "session_date", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT id, patient_id").WithArgs("appt-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(sess.ID, "pat-1", "appt-1", "in_progress", "Dr. Lee", now, now, now))
	found, err := repo.FindByAppointment(context.Background(), "appt-1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, found.ID)
	assert.Equal(t, "appt-1", found.AppointmentID)

	mock.ExpectQuery("SELECT id, patient_id").WithArgs("appt-2").WillReturnError(pgx.ErrNoRows)
	_, err = repo.FindByAppointment(context.Background(), "appt-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryStatusUpdates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectExec("UPDATE sessions SET status").WithArgs("sess-1", "completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "sess-1", StatusCompleted))

	mock.ExpectExec("UPDATE appointments SET status").WithArgs("appt-9", "completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.UpdateAppointmentStatus(context.Background(), "appt-9", "completed"), ErrAppointmentNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryCreateUnknownAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithDB(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(pgxmock.AnyArg(), "pat-1", pgxmock.AnyArg(), "in_progress", "", now).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "sessions_appointment_id_fkey"})

	sess := &Session{PatientID: "pat-1", AppointmentID: "appt-missing", Status: StatusInProgress, SessionDate: now}
	err = repo.Create(context.Background(), sess)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.Empty(t, sess.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}
