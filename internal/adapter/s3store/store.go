package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"sciencefeed/internal/apperr"
)

type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicBaseURL, when set, prefixes object keys in returned references.
	PublicBaseURL string
	Prefix        string
}

// Store writes generated images to an S3 bucket.
type Store struct {
	uploader Uploader
	cfg      Config
}

func New(uploader Uploader, cfg Config) *Store {
	return &Store{uploader: uploader, cfg: cfg}
}

// Connect builds a Store on the default AWS credential chain, or on static
// keys when both are configured. A custom endpoint switches to path-style
// addressing for MinIO and similar servers.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3store: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(manager.NewUploader(client), cfg), nil
}

// KeyFor derives a stable object key from the article URL.
func (s *Store) KeyFor(articleURL, ext string) string {
	sum := sha256.Sum256([]byte(articleURL))
	return s.cfg.Prefix + hex.EncodeToString(sum[:16]) + ext
}

// Put uploads data under key and returns a reference to the object.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", apperr.E(apperr.KindStorage, "s3store.Put", err)
	}
	return s.ref(key), nil
}

// PutImage stores a generated PNG for articleURL.
func (s *Store) PutImage(ctx context.Context, articleURL string, png []byte) (string, error) {
	return s.Put(ctx, s.KeyFor(articleURL, ".png"), png, "image/png")
}

func (s *Store) ref(key string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	case s.cfg.Endpoint == "" && s.cfg.Region != "":
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	default:
		return "s3://" + s.cfg.Bucket + "/" + key
	}
}
