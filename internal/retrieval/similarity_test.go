package retrieval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"Scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"Orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"Opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"Length Mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"Zero Norm", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"Both Zero", []float32{0, 0}, []float32{0, 0}, 0},
		{"Empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestRank(t *testing.T) {
	query := []float32{1, 0}
	cand := func(id int64, x, y float32) Candidate {
		return Candidate{Item: Item{Kind: KindArticle, ID: id}, Embedding: []float32{x, y}}
	}

	t.Run("Sorts And Filters Strictly Above Threshold", func(t *testing.T) {
		got := Rank(query, []Candidate{
			cand(1, 0.6, 0.8),  // 0.6
			cand(2, 1, 0),      // 1.0
			cand(3, 0.8, 0.6),  // 0.8
			cand(4, 0.7, 0.71), // ~0.702
		}, 7, 0.7)

		ids := make([]int64, len(got))
		for i, c := range got {
			ids[i] = c.Item.ID
		}
		assert.Equal(t, []int64{2, 3, 4}, ids)
		for _, c := range got {
			assert.Greater(t, c.Score, 0.7)
		}
	})

	t.Run("Score Equal To Threshold Is Dropped", func(t *testing.T) {
		got := Rank(query, []Candidate{cand(1, 1, 0)}, 7, 1.0)
		assert.Empty(t, got)
	})

	t.Run("TopK Applied Before Threshold", func(t *testing.T) {
		got := Rank(query, []Candidate{
			cand(1, 1, 0),
			cand(2, 0.99, 0.1),
			cand(3, 0.98, 0.2),
		}, 2, 0.1)
		assert.Len(t, got, 2)
		assert.Equal(t, int64(1), got[0].Item.ID)
	})

	t.Run("Dimension Mismatch Excluded", func(t *testing.T) {
		got := Rank(query, []Candidate{
			{Item: Item{ID: 9}, Embedding: []float32{1, 0, 0}},
			cand(1, 1, 0),
		}, 7, 0.5)
		assert.Len(t, got, 1)
		assert.Equal(t, int64(1), got[0].Item.ID)
	})
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"black", "holes", "merge"}, Tokenize("  Black holes   do merge  holes"))
	assert.Empty(t, Tokenize("a an of"))
	assert.Empty(t, Tokenize(""))
	assert.Equal(t, []string{"ärger"}, Tokenize("Ärger"))
}
