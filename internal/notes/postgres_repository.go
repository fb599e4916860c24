package notes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const versionColumns = `id, session_id, version, subjective, objective, assessment, plan, edit_type, temporary, prompt, full_summary, created_at`

// PostgresRepository stores note versions in the note_versions table.
type PostgresRepository struct {
	db pgxDB
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("notes: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	if db == nil {
		panic("notes: db required")
	}
	return &PostgresRepository{db: db}
}

func scanVersion(row pgx.Row) (*Version, error) {
	var v Version
	var editType string
	if err := row.Scan(
		&v.ID,
		&v.SessionID,
		&v.Version,
		&v.Content.Subjective,
		&v.Content.Objective,
		&v.Content.Assessment,
		&v.Content.Plan,
		&editType,
		&v.Temporary,
		&v.Prompt,
		&v.FullSummary,
		&v.CreatedAt,
	); err != nil {
		return nil, err
	}
	v.EditType = EditType(editType)
	return &v, nil
}

func (r *PostgresRepository) List(ctx context.Context, sessionID string) ([]Version, error) {
	query := `SELECT ` + versionColumns + `
		FROM note_versions
		WHERE session_id = $1
		ORDER BY version DESC`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("notes: list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("notes: scan version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Version, error) {
	query := `SELECT ` + versionColumns + ` FROM note_versions WHERE id = $1`
	v, err := scanVersion(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notes: get version: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) Latest(ctx context.Context, sessionID string) (*Version, error) {
	query := `SELECT ` + versionColumns + `
		FROM note_versions
		WHERE session_id = $1
		ORDER BY version DESC
		LIMIT 1`
	v, err := scanVersion(r.db.QueryRow(ctx, query, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notes: latest version: %w", err)
	}
	return v, nil
}

// Append computes the next version number inside the insert; the
// (session_id, version) unique constraint rejects a concurrent writer.
func (r *PostgresRepository) Append(ctx context.Context, nv NewVersion) (*Version, error) {
	id := uuid.New()
	query := `
		INSERT INTO note_versions (id, session_id, version, subjective, objective, assessment, plan, edit_type, temporary, prompt)
		SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5, $6, $7, true, $8
		FROM note_versions
		WHERE session_id = $2
		RETURNING version, created_at
	`
	v := Version{
		ID:        id.String(),
		SessionID: nv.SessionID,
		Content:   nv.Content,
		EditType:  nv.EditType,
		Temporary: true,
		Prompt:    nv.Prompt,
	}
	if err := r.db.QueryRow(ctx, query,
		id,
		nv.SessionID,
		nv.Content.Subjective,
		nv.Content.Objective,
		nv.Content.Assessment,
		nv.Content.Plan,
		string(nv.EditType),
		nv.Prompt,
	).Scan(&v.Version, &v.CreatedAt); err != nil {
		return nil, fmt.Errorf("notes: insert version: %w", err)
	}
	return &v, nil
}

// PromoteLatest runs in a single transaction so readers never observe two
// final rows or a final row alongside stale drafts.
func (r *PostgresRepository) PromoteLatest(ctx context.Context, sessionID string) (*Version, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("notes: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + versionColumns + `
		FROM note_versions
		WHERE session_id = $1
		ORDER BY version DESC
		LIMIT 1
		FOR UPDATE`
	latest, err := scanVersion(tx.QueryRow(ctx, query, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notes: lock latest version: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE note_versions SET temporary = false, edit_type = $2 WHERE id = $1
	`, latest.ID, string(EditFinal)); err != nil {
		return nil, fmt.Errorf("notes: promote version: %w", err)
	}
	// Prior finals go too; a session keeps exactly one final row.
	if _, err := tx.Exec(ctx, `
		DELETE FROM note_versions WHERE session_id = $1 AND id <> $2
	`, sessionID, latest.ID); err != nil {
		return nil, fmt.Errorf("notes: delete drafts: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("notes: commit finalize: %w", err)
	}

	latest.Temporary = false
	latest.EditType = EditFinal
	return latest, nil
}

func (r *PostgresRepository) SetFullSummary(ctx context.Context, id string, fullSummary string) error {
	tag, err := r.db.Exec(ctx, `UPDATE note_versions SET full_summary = $2 WHERE id = $1`, id, fullSummary)
	if err != nil {
		return fmt.Errorf("notes: set full summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
