package retrieval

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// QueryLogEntry is one line of the search audit log.
type QueryLogEntry struct {
	At            time.Time    `json:"at"`
	CorrelationID string       `json:"correlation_id"`
	Query         string       `json:"query"`
	Tier          Tier         `json:"tier,omitempty"`
	TopK          int          `json:"top_k"`
	Threshold     float64      `json:"threshold"`
	Results       int          `json:"results"`
	ByKind        map[Kind]int `json:"by_kind,omitempty"`
	LatencyMs     int64        `json:"latency_ms"`
	Error         string       `json:"error,omitempty"`
}

// QueryLogger writes QueryLogEntry values as JSON lines.
type QueryLogger struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	now    func() time.Time
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w), now: time.Now}
}

// NewFileQueryLogger appends to path, creating parent directories.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create query log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- configured path
	if err != nil {
		return nil, fmt.Errorf("open query log: %w", err)
	}
	l := NewQueryLogger(f)
	l.closer = f
	return l, nil
}

func (l *QueryLogger) Log(entry QueryLogEntry) {
	if entry.At.IsZero() {
		entry.At = l.now().UTC()
	}

	l.mu.Lock()
	err := l.enc.Encode(entry)
	l.mu.Unlock()
	if err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}

// Close closes the underlying file, if the logger owns one.
func (l *QueryLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func countKinds(items []Item) map[Kind]int {
	if len(items) == 0 {
		return nil
	}
	out := make(map[Kind]int, 3)
	for _, it := range items {
		out[it.Kind]++
	}
	return out
}
