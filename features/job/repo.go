package job

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"sciencefeed/internal/apperr"
)

const columns = "id, topic, url, payload, error, retries, created_at"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context, f Filter) ([]Job, error)
	Get(ctx context.Context, id int64) (*Job, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save inserts the job. A second failure for the same topic and url replaces
// the payload and error and bumps the retry count instead.
func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	query := `INSERT INTO failed_jobs (topic, url, payload, error) VALUES ($1, $2, $3, $4)
		ON CONFLICT (topic, url) DO UPDATE SET payload = EXCLUDED.payload, error = EXCLUDED.error, retries = failed_jobs.retries + 1
		RETURNING id, created_at, retries`
	err := r.db.QueryRowContext(ctx, query, job.Topic, job.URL, []byte(job.Payload), job.Error).
		Scan(&job.ID, &job.CreatedAt, &job.Retries)
	if err != nil {
		return apperr.E(apperr.KindStorage, "job.Save", err)
	}
	return nil
}

// List returns jobs newest first.
func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Job, error) {
	f = f.normalized()
	b := psql.Select(columns).From("failed_jobs").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))
	if f.Topic != "" {
		b = b.Where(sq.Eq{"topic": f.Topic})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "job.List", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apperr.E(apperr.KindStorage, "job.List", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.E(apperr.KindStorage, "job.List", err)
	}
	return jobs, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (*Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM failed_jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "job.Get", err)
	}
	return j, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE id = $1`, id)
	if err != nil {
		return apperr.E(apperr.KindStorage, "job.Delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var payload []byte
	if err := s.Scan(&j.ID, &j.Topic, &j.URL, &payload, &j.Error, &j.Retries, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.Payload = payload
	return &j, nil
}
