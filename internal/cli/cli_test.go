package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	chunkMaxSize, chunkOverlap, chunkJSON = 0, -1, false
	ingestQuery, ingestAfter = "", ""

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "ingest", "backfill", "search", "chunk", "resolve", "extract"}

	got := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, got[name], "missing command %s", name)
	}
}

func TestChunkCommand(t *testing.T) {
	t.Run("Short Input Is One Chunk", func(t *testing.T) {
		out, err := execute(t, "hello world", "chunk")
		require.NoError(t, err)
		assert.Equal(t, "hello world\n", out)
	})

	t.Run("JSON Output Splits Long Input", func(t *testing.T) {
		out, err := execute(t, strings.Repeat("A", 1500), "chunk", "--json")
		require.NoError(t, err)

		var chunks []string
		require.NoError(t, json.Unmarshal([]byte(out), &chunks))
		assert.Len(t, chunks, 2)
	})

	t.Run("Reads File Argument", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.txt")
		require.NoError(t, os.WriteFile(path, []byte("from a file"), 0o600))

		out, err := execute(t, "", "chunk", path)
		require.NoError(t, err)
		assert.Equal(t, "from a file\n", out)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := execute(t, "", "chunk", filepath.Join(t.TempDir(), "nope.txt"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open")
	})
}

func TestResolveCommand(t *testing.T) {
	t.Run("Unshortened URL Is Returned As Is", func(t *testing.T) {
		out, err := execute(t, "", "resolve", "https://www.nature.com/articles/d41586-024-00001-1")
		require.NoError(t, err)
		assert.Equal(t, "https://www.nature.com/articles/d41586-024-00001-1\n", out)
	})

	t.Run("Requires One Argument", func(t *testing.T) {
		_, err := execute(t, "", "resolve")
		assert.Error(t, err)
	})
}

func TestIngestCommand(t *testing.T) {
	t.Run("Requires URLs Or Query", func(t *testing.T) {
		_, err := execute(t, "", "ingest")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "either urls or --query is required")
	})
}

func TestLogFlagsOverrideConfig(t *testing.T) {
	_, err := execute(t, "x", "chunk", "--log-level", "debug", "--log-format", "text")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)

	logLevel, logFormat = "", ""
}
