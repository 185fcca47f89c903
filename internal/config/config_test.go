package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sciencefeed/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.SearchTopK)
	assert.Equal(t, 0.7, cfg.SearchThreshold)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 1000, cfg.DedupPageSize)
	assert.Equal(t, 15*time.Second, cfg.ResolverTimeout)
	assert.Equal(t, 10, cfg.ResolverRedirects)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	err := os.WriteFile(".env", []byte("DB_HOST=loaded-from-file"), 0o600)
	require.NoError(t, err)
	defer os.Remove(".env")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_Tuning(t *testing.T) {
	t.Setenv("SEARCH_THRESHOLD", "0.55")
	t.Setenv("SEARCH_TOP_K", "3")
	t.Setenv("AI_CALL_INTERVAL", "250ms")
	t.Setenv("ENABLE_WORKER", "false")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.55, cfg.SearchThreshold)
	assert.Equal(t, 3, cfg.SearchTopK)
	assert.Equal(t, 250*time.Millisecond, cfg.AICallInterval)
	assert.False(t, cfg.EnableWorker)
}

func TestLoadConfig_InvalidTuning(t *testing.T) {
	t.Setenv("CHUNK_OVERLAP", "1000")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalidValue)
}

func TestConfig_DSN(t *testing.T) {
	c := config.Config{DBHost: "db", DBPort: 5433, DBUser: "u", DBPass: "p", DBName: "n"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable", c.DSN())
}
