package text

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reconstruct stitches chunks back together by dropping the part of each
// chunk that the previous one already covered.
func reconstruct(t *testing.T, c *Chunker, text string) string {
	t.Helper()
	runes := []rune(text)
	spans := c.Spans(text)
	var b strings.Builder
	prevEnd := 0
	for _, s := range spans {
		require.LessOrEqual(t, s.Start, prevEnd, "gap between chunks")
		b.WriteString(string(runes[prevEnd:s.End]))
		prevEnd = s.End
	}
	return b.String()
}

func TestChunk(t *testing.T) {
	t.Run("Short Text Is One Chunk", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, Chunk("hello", 1000, 200))
		exact := strings.Repeat("x", 1000)
		assert.Equal(t, []string{exact}, Chunk(exact, 1000, 200))
		assert.Equal(t, []string{""}, Chunk("", 1000, 200))
	})

	t.Run("One Past The Limit Splits", func(t *testing.T) {
		chunks := Chunk(strings.Repeat("x", 1001), 1000, 200)
		assert.Len(t, chunks, 2)
	})

	t.Run("Fifteen Hundred Without Breaks", func(t *testing.T) {
		text := strings.Repeat("A", 1500)
		c := NewChunker(WithMaxChunkSize(1000), WithOverlap(200))

		chunks := c.Chunk(text)
		require.Len(t, chunks, 2)
		assert.Len(t, chunks[0], 1000)

		spans := c.Spans(text)
		assert.LessOrEqual(t, spans[1].Start, 1000)
		assert.Equal(t, 200, spans[0].End-spans[1].Start)
		assert.Equal(t, chunks[0][800:], chunks[1][:200])
		assert.Equal(t, text, reconstruct(t, c, text))
	})

	t.Run("Cuts At Paragraph Break Past Half", func(t *testing.T) {
		first := strings.Repeat("a", 600) + "\n\n"
		text := first + strings.Repeat("b", 900)
		c := NewChunker(WithMaxChunkSize(1000), WithOverlap(100))

		chunks := c.Chunk(text)
		assert.Equal(t, first, chunks[0])
		assert.Equal(t, text, reconstruct(t, c, text))
	})

	t.Run("Ignores Early Paragraph Break", func(t *testing.T) {
		text := strings.Repeat("a", 300) + "\n\n" + strings.Repeat("b", 1200)
		c := NewChunker(WithMaxChunkSize(1000), WithOverlap(100))

		chunks := c.Chunk(text)
		assert.Len(t, []rune(chunks[0]), 1000)
	})

	t.Run("Cuts At Sentence Break Past Seventy Percent", func(t *testing.T) {
		first := strings.Repeat("s", 750) + "."
		text := first + " " + strings.Repeat("t", 900)
		c := NewChunker(WithMaxChunkSize(1000), WithOverlap(100))

		chunks := c.Chunk(text)
		assert.Equal(t, first, chunks[0])
		assert.Equal(t, text, reconstruct(t, c, text))
	})

	t.Run("Sentence Break Before Seventy Percent Is Ignored", func(t *testing.T) {
		text := strings.Repeat("s", 600) + ". " + strings.Repeat("t", 900)
		chunks := Chunk(text, 1000, 100)
		assert.Len(t, []rune(chunks[0]), 1000)
	})

	t.Run("Multibyte Text Is Split On Runes", func(t *testing.T) {
		text := strings.Repeat("é", 1500)
		chunks := Chunk(text, 1000, 200)
		require.Len(t, chunks, 2)
		assert.Len(t, []rune(chunks[0]), 1000)
		assert.Len(t, []rune(chunks[1]), 700)
	})

	t.Run("Trailing Whitespace Chunk Kept", func(t *testing.T) {
		text := strings.Repeat("a", 10) + strings.Repeat(" ", 10)
		chunks := Chunk(text, 10, 0)
		assert.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat(" ", 10)}, chunks)
		assert.Equal(t, text, strings.Join(chunks, ""))
		assert.Equal(t, text, reconstruct(t, NewChunker(WithMaxChunkSize(10), WithOverlap(0)), text))
	})

	t.Run("Trailing Whitespace With Overlap Rebuilds", func(t *testing.T) {
		text := strings.Repeat("word ", 60) + strings.Repeat("\n", 90)
		c := NewChunker(WithMaxChunkSize(100), WithOverlap(20))
		spans := c.Spans(text)
		assert.Equal(t, len([]rune(text)), spans[len(spans)-1].End)
		assert.Equal(t, text, reconstruct(t, c, text))
	})
}

func TestChunker_OverlapGuard(t *testing.T) {
	tests := []struct {
		name        string
		max         int
		overlap     int
		wantOverlap int
	}{
		{"Equal", 100, 100, 25},
		{"Larger", 100, 500, 25},
		{"Negative", 100, -5, 0},
		{"Valid", 100, 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChunker(WithMaxChunkSize(tt.max), WithOverlap(tt.overlap))
			assert.Equal(t, tt.wantOverlap, c.Overlap())
		})
	}

	t.Run("Zero Size Uses Default", func(t *testing.T) {
		c := NewChunker(WithMaxChunkSize(0))
		assert.Equal(t, DefaultMaxChunkSize, c.MaxChunkSize())
	})
}

func TestChunker_Progress(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abc .\n!?")

	for i := 0; i < 200; i++ {
		n := 50 + rng.Intn(3000)
		buf := make([]rune, n)
		for j := range buf {
			buf[j] = alphabet[rng.Intn(len(alphabet))]
		}
		text := string(buf)

		max := 20 + rng.Intn(400)
		overlap := rng.Intn(max + 50)
		c := NewChunker(WithMaxChunkSize(max), WithOverlap(overlap))

		spans := c.Spans(text)
		require.NotEmpty(t, spans)
		for k := 1; k < len(spans); k++ {
			require.Greater(t, spans[k].Start, spans[k-1].Start, "cursor must advance")
		}
		for _, s := range spans {
			require.LessOrEqual(t, s.End-s.Start, max)
			require.Greater(t, s.End, s.Start)
		}
		require.Equal(t, n, spans[len(spans)-1].End)
		require.Equal(t, text, reconstruct(t, c, text))
	}
}

func TestChunker_OverlapLargerThanBoundaryCut(t *testing.T) {
	// paragraph breaks just past half the window with an overlap bigger than the cut
	para := strings.Repeat("p", 520) + "\n\n"
	text := strings.Repeat(para, 10)
	c := NewChunker(WithMaxChunkSize(1000), WithOverlap(600))

	spans := c.Spans(text)
	for k := 1; k < len(spans); k++ {
		assert.Greater(t, spans[k].Start, spans[k-1].Start)
	}
	assert.Equal(t, text, reconstruct(t, c, text))
}
