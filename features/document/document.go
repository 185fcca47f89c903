package document

import (
	"errors"
	"time"

	"sciencefeed/internal/retrieval"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrInactive = errors.New("document is not active")
)

type Document struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"-"`
	Active      bool      `json:"active"`
	AccessLevel string    `json:"access_level"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chunk is immutable once stored. Index is zero-based and contiguous per document.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Index      int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
}

func (d *Document) Item() retrieval.Item {
	return retrieval.Item{
		Kind:        retrieval.KindDocument,
		ID:          d.ID,
		Title:       d.Title,
		Text:        d.Content,
		AccessLevel: d.AccessLevel,
		ProcessedAt: d.CreatedAt,
	}
}
