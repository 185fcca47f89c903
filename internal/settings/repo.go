package settings

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"sciencefeed/internal/apperr"
)

// the table holds exactly one row
const rowID = 1

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	query, args, err := psql.
		Select("id", "gemini_api_key", "similarity_threshold", "top_k", "fallback_limit", "updated_at").
		From("settings").
		Where(sq.Eq{"id": rowID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	s := &Settings{}
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&s.ID, &s.GeminiAPIKey, &s.SimilarityThreshold, &s.TopK, &s.FallbackLimit, &s.UpdatedAt)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "settings.Get", err)
	}
	return s, nil
}

// Update writes every field of s and refreshes s.UpdatedAt.
func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query, args, err := psql.Update("settings").
		Set("gemini_api_key", s.GeminiAPIKey).
		Set("similarity_threshold", s.SimilarityThreshold).
		Set("top_k", s.TopK).
		Set("fallback_limit", s.FallbackLimit).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": rowID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return err
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&s.UpdatedAt); err != nil {
		return apperr.E(apperr.KindStorage, "settings.Update", err)
	}
	return nil
}
