package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"sciencefeed/internal/retrieval"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (*Document, error) {
	d := &Document{}
	var emb nullVector
	query := `SELECT id, title, content, embedding, active, access_level, created_at FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Title, &d.Content, &emb, &d.Active, &d.AccessLevel, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if emb.Valid {
		d.Embedding = emb.Vector.Slice()
	}
	return d, nil
}

func (r *PostgresRepo) HasChunks(ctx context.Context, documentID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM document_chunks WHERE document_id = $1)`
	err := r.db.QueryRowContext(ctx, query, documentID).Scan(&exists)
	return exists, err
}

// InsertChunks writes all chunks of one document in a single transaction.
func (r *PostgresRepo) InsertChunks(ctx context.Context, documentID int64, chunks []Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO document_chunks (document_id, chunk_index, chunk_text, embedding) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, documentID, c.Index, c.Text, vectorArg(c.Embedding)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	query := `UPDATE documents SET embedding = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, vectorArg(embedding), id)
	return err
}

// Embedded returns active documents and their chunks whose embedding has the
// given dimension.
func (r *PostgresRepo) Embedded(ctx context.Context, dimension int) ([]retrieval.Candidate, error) {
	var out []retrieval.Candidate

	docs, err := r.db.QueryContext(ctx, `SELECT id, title, content, embedding, access_level, created_at FROM documents WHERE active AND embedding IS NOT NULL AND vector_dims(embedding) = $1`, dimension)
	if err != nil {
		return nil, err
	}
	defer docs.Close()

	for docs.Next() {
		d := Document{Active: true}
		var emb pgvector.Vector
		if err := docs.Scan(&d.ID, &d.Title, &d.Content, &emb, &d.AccessLevel, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, retrieval.Candidate{Item: d.Item(), Embedding: emb.Slice()})
	}
	if err := docs.Err(); err != nil {
		return nil, err
	}

	query := `SELECT c.id, c.document_id, c.chunk_index, c.chunk_text, c.embedding, d.title, d.access_level, d.created_at
		FROM document_chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.active AND c.embedding IS NOT NULL AND vector_dims(c.embedding) = $1
		ORDER BY c.document_id, c.chunk_index`
	rows, err := r.db.QueryContext(ctx, query, dimension)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c Chunk
		var emb pgvector.Vector
		item := retrieval.Item{Kind: retrieval.KindChunk}
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &emb, &item.Title, &item.AccessLevel, &item.ProcessedAt); err != nil {
			return nil, err
		}
		item.ID = c.ID
		item.DocumentID = c.DocumentID
		item.ChunkIndex = c.Index
		item.Text = c.Text
		out = append(out, retrieval.Candidate{Item: item, Embedding: emb.Slice()})
	}
	return out, rows.Err()
}

// MatchAny returns the newest active documents whose title or content
// contains any of tokens.
func (r *PostgresRepo) MatchAny(ctx context.Context, tokens []string, limit int) ([]retrieval.Item, error) {
	if len(tokens) == 0 {
		return []retrieval.Item{}, nil
	}

	or := sq.Or{}
	for _, tok := range tokens {
		pattern := "%" + escapeLike(tok) + "%"
		or = append(or, sq.ILike{"title": pattern}, sq.ILike{"content": pattern})
	}
	return r.active(ctx, or, limit)
}

func (r *PostgresRepo) Recent(ctx context.Context, limit int) ([]retrieval.Item, error) {
	return r.active(ctx, nil, limit)
}

func (r *PostgresRepo) active(ctx context.Context, where sq.Sqlizer, limit int) ([]retrieval.Item, error) {
	b := psql.Select("id", "title", "content", "access_level", "created_at").
		From("documents").
		Where(sq.Expr("active"))
	if where != nil {
		b = b.Where(where)
	}
	query, args, err := b.OrderBy("created_at DESC", "id DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []retrieval.Item{}
	for rows.Next() {
		d := Document{Active: true}
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.AccessLevel, &d.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, d.Item())
	}
	return items, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	return count, err
}

type nullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

func (n *nullVector) Scan(src interface{}) error {
	if src == nil {
		n.Valid = false
		return nil
	}
	n.Valid = true
	return n.Vector.Scan(src)
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
