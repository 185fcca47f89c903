package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sciencefeed/internal/config"
	"sciencefeed/internal/middleware"
	"sciencefeed/internal/queue"
)

const defaultPublishTimeout = 5 * time.Second

var ErrUnknownTopic = errors.New("job has no retry topic")

type Service struct {
	repo           Repository
	pub            queue.Publisher
	publishTimeout time.Duration
}

func NewService(repo Repository, pub queue.Publisher) *Service {
	return &Service{repo: repo, pub: pub, publishTimeout: defaultPublishTimeout}
}

// WithPublishTimeout bounds how long Retry waits for the producer.
func (s *Service) WithPublishTimeout(d time.Duration) *Service {
	if d > 0 {
		s.publishTimeout = d
	}
	return s
}

func (s *Service) List(ctx context.Context, f Filter) ([]Job, error) {
	return s.repo.List(ctx, f)
}

// Dismiss drops a job without retrying it.
func (s *Service) Dismiss(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "dismissed failed job", "job_id", id)
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// RecordFailure stores a failed url ingestion so it can be resubmitted to
// ingest.url later.
func (s *Service) RecordFailure(ctx context.Context, url string, cause error) error {
	msg := queue.IngestURLMessage{URL: url}
	if id := middleware.GetCorrelationID(ctx); id != "unknown" {
		msg.CorrelationID = id
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	j := &Job{
		Topic:   config.TopicIngestURL,
		URL:     url,
		Payload: body,
		Error:   cause.Error(),
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save failed job: %w", err)
	}
	slog.InfoContext(ctx, "saved failed job for retry", "job_id", j.ID, "url", url, "retries", j.Retries)
	return nil
}

// Retry republishes the job's payload to its topic, then deletes the job.
func (s *Service) Retry(ctx context.Context, id int64) (*Job, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Topic != config.TopicIngestURL && job.Topic != config.TopicDocumentIndex {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, job.Topic)
	}
	if s.pub == nil {
		return nil, queue.ErrNoPublisher
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(job.Topic, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("publish to %s: %w", job.Topic, err)
		}
	case <-time.After(s.publishTimeout):
		return nil, errors.New("timeout waiting for NSQ publish")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	slog.InfoContext(ctx, "requeued failed job", "job_id", id, "topic", job.Topic, "url", job.URL)
	return job, nil
}
