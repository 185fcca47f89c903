package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"sciencefeed"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"sciencefeed"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	EnableAPI    bool   `envconfig:"ENABLE_API" default:"true"`
	EnableWorker bool   `envconfig:"ENABLE_WORKER" default:"true"`

	// Gemini
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	CompletionModel    string `envconfig:"COMPLETION_MODEL" default:"gemini-1.5-flash"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"768"`
	SummaryMaxTokens   int    `envconfig:"SUMMARY_MAX_TOKENS" default:"300"`

	// Google Custom Search
	SearchAPIKey  string `envconfig:"SEARCH_API_KEY"`
	SearchEngine  string `envconfig:"SEARCH_ENGINE_ID"`
	SearchResults int    `envconfig:"SEARCH_RESULTS" default:"5"`

	// Image generation
	ImageAPIBase string `envconfig:"IMAGE_API_BASE"`
	ImageAPIKey  string `envconfig:"IMAGE_API_KEY"`
	ImageModel   string `envconfig:"IMAGE_MODEL" default:"dall-e-3"`

	// Image storage
	S3Bucket        string `envconfig:"S3_BUCKET"`
	S3Region        string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint      string `envconfig:"S3_ENDPOINT"`
	S3PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL"`
	S3Prefix        string `envconfig:"S3_PREFIX" default:"images/"`
	S3AccessKey     string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey     string `envconfig:"S3_SECRET_KEY"`

	// Resolver and extractor
	RulesPath         string        `envconfig:"RULES_PATH"`
	ResolverTimeout   time.Duration `envconfig:"RESOLVER_TIMEOUT" default:"15s"`
	ResolverRedirects int           `envconfig:"RESOLVER_MAX_REDIRECTS" default:"10"`
	ExtractorTimeout  time.Duration `envconfig:"EXTRACTOR_TIMEOUT" default:"20s"`
	MinTitleLength    int           `envconfig:"MIN_TITLE_LENGTH" default:"3"`
	MinSnippetLength  int           `envconfig:"MIN_SNIPPET_LENGTH" default:"5"`

	// Ingestion
	AICallInterval   time.Duration `envconfig:"AI_CALL_INTERVAL" default:"1s"`
	ItemTimeout      time.Duration `envconfig:"INGEST_ITEM_TIMEOUT" default:"2m"`
	BatchTimeout     time.Duration `envconfig:"INGEST_BATCH_TIMEOUT" default:"9m"`
	DedupPageSize    int           `envconfig:"DEDUP_PAGE_SIZE" default:"1000"`
	BackfillPageSize int           `envconfig:"BACKFILL_PAGE_SIZE" default:"50"`

	// Chunking and retrieval
	ChunkSize          int     `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap       int     `envconfig:"CHUNK_OVERLAP" default:"200"`
	SearchTopK         int     `envconfig:"SEARCH_TOP_K" default:"7"`
	SearchThreshold    float64 `envconfig:"SEARCH_THRESHOLD" default:"0.7"`
	SearchFallbackSize int     `envconfig:"SEARCH_FALLBACK_LIMIT" default:"10"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// env vars set in the shell win over both files
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.SearchAPIKey != "" && c.SearchEngine == "" {
		return fmt.Errorf("%w: SEARCH_ENGINE_ID", ErrMissingRequired)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalidValue)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidValue)
	}
	if c.SearchThreshold < -1 || c.SearchThreshold > 1 {
		return fmt.Errorf("%w: SEARCH_THRESHOLD must be in [-1, 1]", ErrInvalidValue)
	}
	if c.SearchTopK <= 0 {
		return fmt.Errorf("%w: SEARCH_TOP_K must be positive", ErrInvalidValue)
	}
	if c.SearchFallbackSize <= 0 {
		return fmt.Errorf("%w: SEARCH_FALLBACK_LIMIT must be positive", ErrInvalidValue)
	}
	if c.DedupPageSize <= 0 {
		return fmt.Errorf("%w: DEDUP_PAGE_SIZE must be positive", ErrInvalidValue)
	}
	return nil
}

// DSN returns the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
