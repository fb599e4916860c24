package treatment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/physioflow/internal/exercises"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const planColumns = `id, session_id, patient_id, status, notes, sent_at, created_at, updated_at`

// PostgresRepository stores plans in treatment_plans and their ordered
// prescriptions in plan_exercises.
type PostgresRepository struct {
	db pgxDB
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("treatment: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	if db == nil {
		panic("treatment: db required")
	}
	return &PostgresRepository{db: db}
}

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	var status string
	var sentAt pgtype.Timestamptz
	if err := row.Scan(&p.ID, &p.SessionID, &p.PatientID, &status, &p.Notes, &sentAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	if sentAt.Valid {
		t := sentAt.Time
		p.SentAt = &t
	}
	return &p, nil
}

func (r *PostgresRepository) FindBySessionPatient(ctx context.Context, sessionID, patientID string) (*Plan, error) {
	query := `SELECT ` + planColumns + `
		FROM treatment_plans
		WHERE session_id = $1 AND patient_id = $2`
	p, err := scanPlan(r.db.QueryRow(ctx, query, sessionID, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("treatment: find plan: %w", err)
	}
	return p, nil
}

// Create relies on UNIQUE (session_id, patient_id); a losing writer reads the winner's row.
func (r *PostgresRepository) Create(ctx context.Context, sessionID, patientID string) (*Plan, error) {
	query := `
		INSERT INTO treatment_plans (id, session_id, patient_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, patient_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, uuid.New(), sessionID, patientID, string(StatusDraft)); err != nil {
		return nil, fmt.Errorf("treatment: insert plan: %w", err)
	}
	p, err := r.FindBySessionPatient(ctx, sessionID, patientID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("treatment: plan missing after insert for session %s", sessionID)
	}
	return p, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Plan, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPlanNotFound
	}
	p, err := scanPlan(r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM treatment_plans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("treatment: get plan: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT e.id, e.name, e.description, e.body_area, e.goal, e.difficulty, e.instructions, e.is_custom, e.created_at,
			pe.sets, pe.reps, pe.duration_seconds, pe.frequency, pe.notes
		FROM plan_exercises pe
		JOIN exercises e ON e.id = pe.exercise_id
		WHERE pe.plan_id = $1
		ORDER BY pe.order_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("treatment: list plan exercises: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item exercises.Prescription
		var sets, reps, duration pgtype.Int4
		var frequency string
		ex := &item.Exercise
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.Description, &ex.BodyArea, &ex.Goal, &ex.Difficulty, &ex.Instructions, &ex.Custom, &ex.CreatedAt,
			&sets, &reps, &duration, &frequency, &item.Notes); err != nil {
			return nil, fmt.Errorf("treatment: scan plan exercise: %w", err)
		}
		item.Sets = int4Ptr(sets)
		item.Reps = int4Ptr(reps)
		item.DurationSeconds = int4Ptr(duration)
		item.Frequency = exercises.Frequency(frequency)
		p.Exercises = append(p.Exercises, item)
	}
	return p, rows.Err()
}

func int4Ptr(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}

func intArg(v *int) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*v), Valid: true}
}

// ReplaceExercises swaps the stored prescriptions for items in one transaction.
func (r *PostgresRepository) ReplaceExercises(ctx context.Context, planID string, items exercises.Plan) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("treatment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM plan_exercises WHERE plan_id = $1`, planID); err != nil {
		return fmt.Errorf("treatment: clear plan exercises: %w", err)
	}

	if len(items) > 0 {
		batch := &pgx.Batch{}
		for i, item := range items {
			batch.Queue(`
				INSERT INTO plan_exercises (id, plan_id, exercise_id, order_index, sets, reps, duration_seconds, frequency, notes)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, uuid.New(), planID, item.Exercise.ID, i, intArg(item.Sets), intArg(item.Reps), intArg(item.DurationSeconds), string(item.Frequency), item.Notes)
		}
		br := tx.SendBatch(ctx, batch)
		for range items {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("treatment: insert plan exercise: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("treatment: close batch: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE treatment_plans SET updated_at = now() WHERE id = $1`, planID); err != nil {
		return fmt.Errorf("treatment: touch plan: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) MarkSent(ctx context.Context, planID string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE treatment_plans SET status = $2, sent_at = $3, updated_at = now() WHERE id = $1
	`, planID, string(StatusSent), at.UTC())
	if err != nil {
		return fmt.Errorf("treatment: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
