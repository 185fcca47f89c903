package article

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"sciencefeed/internal/apperr"
	"sciencefeed/internal/retrieval"
)

const uniqueViolation = "23505"

const columns = "id, url, title, snippet, summary, embedding, image_ref, source_domain, processed_at, posted"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Insert stores a new article. A unique violation on url maps to ErrDuplicate.
func (r *PostgresRepo) Insert(ctx context.Context, a *Article) error {
	query := `INSERT INTO articles (url, title, snippet, summary, embedding, image_ref, source_domain) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, processed_at`
	err := r.db.QueryRowContext(ctx, query, a.URL, a.Title, a.Snippet, a.Summary, vectorArg(a.Embedding), a.ImageRef, a.SourceDomain).
		Scan(&a.ID, &a.ProcessedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperr.E(apperr.KindDuplicate, "article.Insert", ErrDuplicate)
		}
		return apperr.E(apperr.KindStorage, "article.Insert", err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (*Article, error) {
	query := `SELECT ` + columns + ` FROM articles WHERE id = $1`
	a, err := scanArticle(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListURLs returns one page of known URLs in id order.
func (r *PostgresRepo) ListURLs(ctx context.Context, offset, limit int) ([]string, error) {
	query, args, err := psql.Select("url").From("articles").
		OrderBy("id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := make([]string, 0, limit)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func (r *PostgresRepo) List(ctx context.Context, offset, limit int) ([]Article, error) {
	query, args, err := psql.Select(columns).From("articles").
		OrderBy("processed_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

// ListNeedingEnrichment pages through articles after afterID that are missing
// a summary, an embedding or an image.
func (r *PostgresRepo) ListNeedingEnrichment(ctx context.Context, afterID int64, limit int) ([]Article, error) {
	query, args, err := psql.Select(columns).From("articles").
		Where(sq.Gt{"id": afterID}).
		Where(sq.Or{
			sq.Eq{"summary": ""},
			sq.Eq{"embedding": nil},
			sq.Eq{"image_ref": ""},
		}).
		OrderBy("id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

func (r *PostgresRepo) UpdateEnrichment(ctx context.Context, a *Article) error {
	query := `UPDATE articles SET summary = $1, embedding = $2, image_ref = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, a.Summary, vectorArg(a.Embedding), a.ImageRef, a.ID)
	if err != nil {
		return apperr.E(apperr.KindStorage, "article.UpdateEnrichment", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&count)
	return count, err
}

// Embedded returns every article whose embedding has the given dimension.
func (r *PostgresRepo) Embedded(ctx context.Context, dimension int) ([]retrieval.Candidate, error) {
	query := `SELECT ` + columns + ` FROM articles WHERE embedding IS NOT NULL AND vector_dims(embedding) = $1`
	articles, err := r.query(ctx, query, dimension)
	if err != nil {
		return nil, err
	}

	out := make([]retrieval.Candidate, 0, len(articles))
	for i := range articles {
		out = append(out, retrieval.Candidate{Item: articles[i].Item(), Embedding: articles[i].Embedding})
	}
	return out, nil
}

// MatchAny returns the newest articles whose title or summary contains any
// of tokens, case-insensitively.
func (r *PostgresRepo) MatchAny(ctx context.Context, tokens []string, limit int) ([]retrieval.Item, error) {
	if len(tokens) == 0 {
		return []retrieval.Item{}, nil
	}

	or := sq.Or{}
	for _, tok := range tokens {
		pattern := "%" + escapeLike(tok) + "%"
		or = append(or, sq.ILike{"title": pattern}, sq.ILike{"summary": pattern})
	}

	query, args, err := psql.Select(columns).From("articles").
		Where(or).
		OrderBy("processed_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.items(ctx, query, args...)
}

func (r *PostgresRepo) Recent(ctx context.Context, limit int) ([]retrieval.Item, error) {
	query, args, err := psql.Select(columns).From("articles").
		OrderBy("processed_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.items(ctx, query, args...)
}

func (r *PostgresRepo) items(ctx context.Context, query string, args ...interface{}) ([]retrieval.Item, error) {
	articles, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	items := make([]retrieval.Item, 0, len(articles))
	for i := range articles {
		items = append(items, articles[i].Item())
	}
	return items, nil
}

func (r *PostgresRepo) query(ctx context.Context, query string, args ...interface{}) ([]Article, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(s scanner) (*Article, error) {
	var a Article
	var emb nullVector
	if err := s.Scan(&a.ID, &a.URL, &a.Title, &a.Snippet, &a.Summary, &emb, &a.ImageRef, &a.SourceDomain, &a.ProcessedAt, &a.Posted); err != nil {
		return nil, err
	}
	if emb.Valid {
		a.Embedding = emb.Vector.Slice()
	}
	return &a, nil
}

// nullVector scans a nullable vector column.
type nullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

func (n *nullVector) Scan(src interface{}) error {
	if src == nil {
		n.Valid = false
		return nil
	}
	if err := n.Vector.Scan(src); err != nil {
		return fmt.Errorf("scan embedding: %w", err)
	}
	n.Valid = true
	return nil
}

func vectorArg(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
