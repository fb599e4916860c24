package exercises

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const exerciseColumns = `id, name, description, body_area, goal, difficulty, instructions, is_custom, created_at`

// PostgresRepository reads and writes the exercises table.
type PostgresRepository struct {
	db rowQuerier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("exercises: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db rowQuerier) *PostgresRepository {
	if db == nil {
		panic("exercises: db required")
	}
	return &PostgresRepository{db: db}
}

func scanExercise(row pgx.Row) (*Exercise, error) {
	var ex Exercise
	if err := row.Scan(&ex.ID, &ex.Name, &ex.Description, &ex.BodyArea, &ex.Goal, &ex.Difficulty, &ex.Instructions, &ex.Custom, &ex.CreatedAt); err != nil {
		return nil, err
	}
	return &ex, nil
}

func (r *PostgresRepository) Search(ctx context.Context, filter Filter) ([]Exercise, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if v := strings.TrimSpace(filter.BodyArea); v != "" {
		add("lower(body_area) = lower($%d)", v)
	}
	if v := strings.TrimSpace(filter.Goal); v != "" {
		add("lower(goal) = lower($%d)", v)
	}
	if v := strings.TrimSpace(filter.Difficulty); v != "" {
		add("lower(difficulty) = lower($%d)", v)
	}
	if v := strings.TrimSpace(filter.Query); v != "" {
		args = append(args, "%"+v+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", n, n))
	}

	query := `SELECT ` + exerciseColumns + ` FROM exercises`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit())
	query += fmt.Sprintf(` ORDER BY name LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exercises: search: %w", err)
	}
	defer rows.Close()

	var out []Exercise
	for rows.Next() {
		ex, err := scanExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("exercises: scan: %w", err)
		}
		out = append(out, *ex)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Exercise, error) {
	ex, err := scanExercise(r.db.QueryRow(ctx, `SELECT `+exerciseColumns+` FROM exercises WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExerciseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("exercises: get: %w", err)
	}
	return ex, nil
}

func (r *PostgresRepository) Create(ctx context.Context, ex Exercise) (*Exercise, error) {
	id := uuid.New()
	query := `
		INSERT INTO exercises (id, name, description, body_area, goal, difficulty, instructions, is_custom)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	if err := r.db.QueryRow(ctx, query,
		id,
		ex.Name,
		ex.Description,
		ex.BodyArea,
		ex.Goal,
		ex.Difficulty,
		ex.Instructions,
		ex.Custom,
	).Scan(&ex.CreatedAt); err != nil {
		return nil, fmt.Errorf("exercises: insert: %w", err)
	}
	ex.ID = id.String()
	return &ex, nil
}

var _ Repository = (*PostgresRepository)(nil)
