package treatment

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var planRowColumns = []string{"id", "session_id", "patient_id", "status", "notes", "sent_at", "created_at", "updated_at"}

func TestPostgresCreateIsConflictSafe(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithDB(mock)
	now := time.Now().UTC()

	mock.ExpectExec(`(?s)INSERT INTO treatment_plans.*ON CONFLICT \(session_id, patient_id\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "sess-1", "pat-1", "draft").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT id, session_id, patient_id").WithArgs("sess-1", "pat-1").
		WillReturnRows(pgxmock.NewRows(planRowColumns).AddRow("plan-1", "sess-1", "pat-1", "draft", "", nil, now, now))

	p, err := repo.Create(context.Background(), "sess-1", "pat-1")
	require.NoError(t, err)
	assert.Equal(t, "plan-1", p.ID)
	assert.Equal(t, StatusDraft, p.Status)
	assert.Nil(t, p.SentAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithDB(mock)
	mock.ExpectQuery("SELECT id, session_id, patient_id").WithArgs("sess-1", "pat-1").WillReturnError(pgx.ErrNoRows)

	p, err := repo.FindBySessionPatient(context.Background(), "sess-1", "pat-1")
	require.NoError(t, err)
	assert.Nil(t, p)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRejectsMalformedID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = newPostgresRepositoryWithDB(mock).Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrPlanNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkSent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithDB(mock)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE treatment_plans SET status").WithArgs("plan-1", "sent", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.MarkSent(context.Background(), "plan-1", at))

	mock.ExpectExec("UPDATE treatment_plans SET status").WithArgs("plan-2", "sent", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.MarkSent(context.Background(), "plan-2", at), ErrPlanNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
