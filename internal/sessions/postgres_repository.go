package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// foreignKeyViolation is the SQLSTATE for an appointment_id with no appointments row.
const foreignKeyViolation = "23503"

const sessionColumns = `id, patient_id, appointment_id, status, clinician_name, session_date, created_at, updated_at`

// PostgresRepository stores sessions in the sessions table and writes
// appointment status to the appointments table.
type PostgresRepository struct {
	db rowQuerier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("sessions: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db rowQuerier) *PostgresRepository {
	if db == nil {
		panic("sessions: db required")
	}
	return &PostgresRepository{db: db}
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var appointmentID pgtype.Text
	var status string
	if err := row.Scan(&s.ID, &s.PatientID, &appointmentID, &status, &s.ClinicianName, &s.SessionDate, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.AppointmentID = appointmentID.String
	s.Status = Status(status)
	return &s, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) FindByAppointment(ctx context.Context, appointmentID string) (*Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE appointment_id = $1
		ORDER BY created_at
		LIMIT 1`
	s, err := scanSession(r.db.QueryRow(ctx, query, appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: find by appointment: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *Session) error {
	id := uuid.New()
	appointmentID := pgtype.Text{String: s.AppointmentID, Valid: s.AppointmentID != ""}
	query := `
		INSERT INTO sessions (id, patient_id, appointment_id, status, clinician_name, session_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	if err := r.db.QueryRow(ctx, query,
		id,
		s.PatientID,
		appointmentID,
		string(s.Status),
		s.ClinicianName,
		s.SessionDate,
	).Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("sessions: insert: %w", err)
	}
	s.ID = id.String()
	return nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("sessions: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateAppointmentStatus(ctx context.Context, appointmentID, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`, appointmentID, status)
	if err != nil {
		return fmt.Errorf("sessions: update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
