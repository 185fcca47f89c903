package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"

	"sciencefeed/internal/adapter/s3store"
	"sciencefeed/internal/config"
	"sciencefeed/internal/queue"
)

type Dependencies struct {
	DB          *sql.DB
	NSQProducer *nsq.Producer
	Publisher   queue.Publisher
	// Images is nil when no bucket is configured.
	Images *s3store.Store
}

// Close stops the producer and closes the database.
func (d *Dependencies) Close() error {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// Bootstrap connects everything the server needs.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps, err := BootstrapStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// NSQ Producer
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer
	deps.Publisher = producer

	// Topic pre-creation
	go func() {
		time.Sleep(2 * time.Second)
		CreateTopics(ctx, http.DefaultClient, cfg.NSQDHTTP, config.TopicIngestURL, config.TopicDocumentIndex)
	}()

	return deps, nil
}

// BootstrapStore connects the database, applies migrations and, when a
// bucket is configured, the image store. CLI commands that never publish use
// it directly.
func BootstrapStore(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := PingWithRetry(ctx, db, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	deps := &Dependencies{DB: db}
	if cfg.S3Bucket != "" {
		store, err := s3store.Connect(ctx, s3store.Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("image store error: %w", err)
		}
		deps.Images = store
	}
	return deps, nil
}

// Pinger is the part of *sql.DB that PingWithRetry needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingWithRetry pings up to attempts times, sleeping delay between failures.
func PingWithRetry(ctx context.Context, db Pinger, attempts int, delay time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", attempts, "error", err)
		if i < attempts-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied successfully")
	return nil
}

// CreateTopics asks nsqd to create each topic so consumers polling lookupd
// find them before the first publish. Failures are logged only.
func CreateTopics(ctx context.Context, client *http.Client, nsqdHTTP string, topics ...string) {
	for _, topic := range topics {
		u := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, url.QueryEscape(topic))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
		if err != nil {
			slog.Warn("failed to build NSQ topic request", "topic", topic, "error", err)
			continue
		}
		resp, err := client.Do(req) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			slog.Warn("unexpected status creating NSQ topic", "topic", topic, "status", resp.StatusCode)
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}
}
