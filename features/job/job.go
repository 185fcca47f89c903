package job

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("job not found")

// Job is a failed queue message kept for a manual retry. Topic is the nsq
// topic the payload is republished to.
type Job struct {
	ID        int64           `json:"id"`
	Topic     string          `json:"topic"`
	URL       string          `json:"url"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Filter narrows List. An empty Topic matches every topic.
type Filter struct {
	Topic  string
	Limit  int
	Offset int
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
