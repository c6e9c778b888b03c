package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/csg33k/response-viewer/internal/domain"
	"github.com/csg33k/response-viewer/internal/ports"
)

//go:embed schema.sql
var schema string

var _ ports.RetrievalJobRepository = (*Repository)(nil)

type Repository struct {
	db *sql.DB
}

// New opens the SQLite database and applies the schema. The schema is
// idempotent so every start can run it.
func New(dsn string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

// ── Retrieval jobs ────────────────────────────────────────────────────────────

func (r *Repository) CreateJob(ctx context.Context, j *domain.RetrievalJob) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if j.Status == "" {
		j.Status = domain.RetrievalPending
	}
	ids, err := json.Marshal(nonNil(j.IDs))
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO retrieval_jobs (ids, status, error, created_at)
		VALUES (?,?,?,?)`,
		string(ids), string(j.Status), j.Error, j.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	j.ID = id
	return nil
}

func (r *Repository) FinishJob(ctx context.Context, id int64, status domain.RetrievalStatus, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE retrieval_jobs SET status=?, error=?, finished_at=?
		WHERE id=?`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) GetJob(ctx context.Context, id int64) (*domain.RetrievalJob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, ids, status, error, created_at, finished_at
		FROM retrieval_jobs WHERE id=?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return j, err
}

// ListJobs returns the newest jobs first. A non-positive limit returns all.
func (r *Repository) ListJobs(ctx context.Context, limit int) ([]domain.RetrievalJob, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ids, status, error, created_at, finished_at
		FROM retrieval_jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []domain.RetrievalJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *j)
	}
	return list, rows.Err()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*domain.RetrievalJob, error) {
	var (
		j          domain.RetrievalJob
		ids        string
		status     string
		finishedAt sql.NullTime
	)
	if err := s.Scan(&j.ID, &ids, &status, &j.Error, &j.CreatedAt, &finishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &j.IDs); err != nil {
		return nil, fmt.Errorf("job %d: decode ids: %w", j.ID, err)
	}
	j.Status = domain.RetrievalStatus(status)
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	return &j, nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
