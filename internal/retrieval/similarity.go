package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// CosineSimilarity returns dot(a,b) / (|a| * |b|). Mismatched lengths, empty
// vectors and zero norms score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// Rank scores candidates against query, keeps the topK best and then drops
// anything not strictly above threshold.
func Rank(query []float32, candidates []Candidate, topK int, threshold float64) []Candidate {
	scored := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) != len(query) {
			continue
		}
		c.Score = CosineSimilarity(query, c.Embedding)
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}

	out := scored[:0]
	for _, c := range scored {
		if c.Score > threshold {
			out = append(out, c)
		}
	}
	return out
}

// Tokenize splits a query on whitespace and keeps lower-cased tokens longer
// than two characters, without duplicates.
func Tokenize(query string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, f := range strings.Fields(query) {
		tok := strings.ToLower(f)
		if utf8.RuneCountInString(tok) <= 2 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}
