package text

import "unicode"

const (
	DefaultMaxChunkSize = 1000
	DefaultOverlap      = 200
)

// Span is a half-open [Start, End) range of rune offsets into the chunked text.
type Span struct {
	Start int
	End   int
}

type Chunker struct {
	maxSize int
	overlap int
}

type Option func(*Chunker)

func WithMaxChunkSize(n int) Option {
	return func(c *Chunker) {
		c.maxSize = n
	}
}

func WithOverlap(n int) Option {
	return func(c *Chunker) {
		c.overlap = n
	}
}

// NewChunker builds a chunker. An overlap that is not smaller than the
// chunk size is reduced to a quarter of it.
func NewChunker(opts ...Option) *Chunker {
	c := &Chunker{maxSize: DefaultMaxChunkSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxSize <= 0 {
		c.maxSize = DefaultMaxChunkSize
	}
	if c.overlap < 0 {
		c.overlap = 0
	}
	if c.overlap >= c.maxSize {
		c.overlap = c.maxSize / 4
	}
	return c
}

func (c *Chunker) MaxChunkSize() int { return c.maxSize }
func (c *Chunker) Overlap() int      { return c.overlap }

// Chunk is a convenience wrapper around NewChunker(...).Chunk(text).
func Chunk(text string, maxChunkSize, overlap int) []string {
	return NewChunker(WithMaxChunkSize(maxChunkSize), WithOverlap(overlap)).Chunk(text)
}

// Chunk splits text into ordered, overlapping pieces of at most MaxChunkSize runes.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.maxSize {
		return []string{text}
	}

	spans := c.spans(runes)
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, string(runes[s.Start:s.End]))
	}
	return out
}

// Spans returns the rune ranges Chunk would cut.
func (c *Chunker) Spans(text string) []Span {
	runes := []rune(text)
	if len(runes) <= c.maxSize {
		return []Span{{Start: 0, End: len(runes)}}
	}
	return c.spans(runes)
}

func (c *Chunker) spans(runes []rune) []Span {
	n := len(runes)
	var spans []Span

	start := 0
	for start < n {
		end := start + c.maxSize
		if end >= n {
			end = n
		} else {
			end = c.boundary(runes, start, end)
		}
		spans = append(spans, Span{Start: start, End: end})
		if end == n {
			break
		}

		// start must strictly increase or the loop never ends
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	// Whitespace-only spans stay so the text can be rebuilt exactly.
	kept := spans[:0]
	for _, s := range spans {
		if s.End > s.Start {
			kept = append(kept, s)
		}
	}
	return kept
}

// boundary moves end back to a paragraph break past half the window, or
// failing that a sentence break past 70% of it.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	window := runes[start:end]

	if i := lastParagraphBreak(window); i >= 0 && float64(i) > 0.5*float64(c.maxSize) {
		return start + i + 2
	}
	if i := lastSentenceBreak(window); i >= 0 && float64(i) > 0.7*float64(c.maxSize) {
		return start + i + 1
	}
	return end
}

func lastParagraphBreak(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func lastSentenceBreak(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		switch window[i] {
		case '.', '!', '?':
			if unicode.IsSpace(window[i+1]) {
				return i
			}
		}
	}
	return -1
}
