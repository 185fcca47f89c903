// Package queue defines the NSQ payloads exchanged between the HTTP layer,
// failed-job retries and the workers.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoPublisher is returned when the process was started without NSQ.
var ErrNoPublisher = errors.New("queue publisher not configured")

type Publisher interface {
	Publish(topic string, body []byte) error
}

type IngestURLMessage struct {
	URL           string `json:"url"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type IndexDocumentMessage struct {
	DocumentID    int64  `json:"document_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// PublishJSON marshals msg and publishes it to topic.
func PublishJSON(p Publisher, topic string, msg interface{}) error {
	if p == nil {
		return ErrNoPublisher
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	if err := p.Publish(topic, body); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
