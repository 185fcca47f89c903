package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sciencefeed/features/job"
	"sciencefeed/internal/config"
	"sciencefeed/internal/middleware"
	"sciencefeed/internal/queue"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockRepo) List(ctx context.Context, f job.Filter) ([]job.Job, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}

func (m *MockRepo) Get(ctx context.Context, id int64) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockRepo) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
	sleep time.Duration
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	time.Sleep(m.sleep)
	args := m.Called(topic, body)
	return args.Error(0)
}

func TestService_RecordFailure(t *testing.T) {
	t.Run("Saves Ingest URL Payload", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Save", mock.Anything, mock.MatchedBy(func(j *job.Job) bool {
			return j.Topic == config.TopicIngestURL &&
				j.URL == "https://nature.com/a" &&
				j.Error == "dial tcp: timeout" &&
				string(j.Payload) == `{"url":"https://nature.com/a","correlation_id":"corr-9"}`
		})).Return(nil)

		ctx := middleware.WithCorrelationID(context.Background(), "corr-9")
		err := job.NewService(repo, nil).RecordFailure(ctx, "https://nature.com/a", errors.New("dial tcp: timeout"))

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("Without Correlation ID", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Save", mock.Anything, mock.MatchedBy(func(j *job.Job) bool {
			return string(j.Payload) == `{"url":"https://nature.com/a"}`
		})).Return(nil)

		err := job.NewService(repo, nil).RecordFailure(context.Background(), "https://nature.com/a", errors.New("boom"))

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("Save Error", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down"))

		err := job.NewService(repo, nil).RecordFailure(context.Background(), "https://nature.com/a", errors.New("boom"))

		assert.ErrorContains(t, err, "save failed job")
	})
}

func TestService_Retry(t *testing.T) {
	payload := []byte(`{"url":"https://nature.com/a"}`)

	t.Run("Republishes And Deletes", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		repo.On("Get", mock.Anything, int64(1)).Return(&job.Job{ID: 1, Topic: config.TopicIngestURL, Payload: payload}, nil)
		pub.On("Publish", config.TopicIngestURL, []byte(payload)).Return(nil)
		repo.On("Delete", mock.Anything, int64(1)).Return(nil)

		j, err := job.NewService(repo, pub).Retry(context.Background(), 1)

		require.NoError(t, err)
		assert.Equal(t, config.TopicIngestURL, j.Topic)
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("Document Index Topic", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		repo.On("Get", mock.Anything, int64(2)).Return(&job.Job{ID: 2, Topic: config.TopicDocumentIndex, Payload: []byte(`{"document_id":5}`)}, nil)
		pub.On("Publish", config.TopicDocumentIndex, mock.Anything).Return(nil)
		repo.On("Delete", mock.Anything, int64(2)).Return(nil)

		_, err := job.NewService(repo, pub).Retry(context.Background(), 2)
		require.NoError(t, err)
		pub.AssertExpectations(t)
	})

	t.Run("Unknown Topic", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, int64(3)).Return(&job.Job{ID: 3, Topic: "ingest.task", Payload: payload}, nil)

		_, err := job.NewService(repo, new(MockPublisher)).Retry(context.Background(), 3)

		assert.ErrorIs(t, err, job.ErrUnknownTopic)
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("Publish Failure Keeps Job", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		repo.On("Get", mock.Anything, int64(1)).Return(&job.Job{ID: 1, Topic: config.TopicIngestURL, Payload: payload}, nil)
		pub.On("Publish", config.TopicIngestURL, mock.Anything).Return(errors.New("nsqd down"))

		_, err := job.NewService(repo, pub).Retry(context.Background(), 1)

		assert.ErrorContains(t, err, "nsqd down")
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("Publish Timeout", func(t *testing.T) {
		repo := new(MockRepo)
		pub := &MockPublisher{sleep: 200 * time.Millisecond}
		repo.On("Get", mock.Anything, int64(1)).Return(&job.Job{ID: 1, Topic: config.TopicIngestURL, Payload: payload}, nil)
		pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

		svc := job.NewService(repo, pub).WithPublishTimeout(20 * time.Millisecond)
		_, err := svc.Retry(context.Background(), 1)

		assert.EqualError(t, err, "timeout waiting for NSQ publish")
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("Not Found", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, int64(8)).Return(nil, job.ErrNotFound)

		_, err := job.NewService(repo, new(MockPublisher)).Retry(context.Background(), 8)

		assert.ErrorIs(t, err, job.ErrNotFound)
	})

	t.Run("Already Deleted Still Succeeds", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		repo.On("Get", mock.Anything, int64(4)).Return(&job.Job{ID: 4, Topic: config.TopicIngestURL, Payload: payload}, nil)
		pub.On("Publish", config.TopicIngestURL, mock.Anything).Return(nil)
		repo.On("Delete", mock.Anything, int64(4)).Return(job.ErrNotFound)

		_, err := job.NewService(repo, pub).Retry(context.Background(), 4)
		assert.NoError(t, err)
	})

	t.Run("No Publisher", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, int64(5)).Return(&job.Job{ID: 5, Topic: config.TopicIngestURL, Payload: payload}, nil)

		_, err := job.NewService(repo, nil).Retry(context.Background(), 5)
		assert.ErrorIs(t, err, queue.ErrNoPublisher)
	})
}

func TestService_Dismiss(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Delete", mock.Anything, int64(3)).Return(nil)
	repo.On("Delete", mock.Anything, int64(4)).Return(job.ErrNotFound)
	svc := job.NewService(repo, nil)

	assert.NoError(t, svc.Dismiss(context.Background(), 3))
	assert.ErrorIs(t, svc.Dismiss(context.Background(), 4), job.ErrNotFound)
}
