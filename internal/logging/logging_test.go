package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	assert.Contains(t, dir, ".hybridsearch")
	assert.Contains(t, dir, "logs")
}

func TestDefaultLogPath(t *testing.T) {
	assert.Equal(t, filepath.Join(DefaultLogDir(), "engine.log"), DefaultLogPath())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.WriteToStderr)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
}

func TestDebugConfig(t *testing.T) {
	assert.Equal(t, "debug", DebugConfig().Level)
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:         "debug",
		FilePath:      filepath.Join(dir, "test.log"),
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hello", slog.String("component", "test"))

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(firstLine(data), &entry))
	assert.Equal(t, "hello", entry["msg"])
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelFromString("debug"))
	assert.Equal(t, slog.LevelInfo, LevelFromString("info"))
	assert.Equal(t, slog.LevelWarn, LevelFromString("warn"))
	assert.Equal(t, slog.LevelError, LevelFromString("error"))
	assert.Equal(t, slog.LevelInfo, LevelFromString("nonsense"))
}

func TestFindLogFile_NotFound(t *testing.T) {
	_, err := FindLogFile(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
}

func TestFindLogFile_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explicit.log")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	found, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestEnsureLogDir(t *testing.T) {
	require.NoError(t, EnsureLogDir())
	_, err := os.Stat(DefaultLogDir())
	assert.NoError(t, err)
}

func TestRotatingWriter_ImmediateSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotate.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("line1\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line1\n", string(data))
}

func TestRotatingWriter_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotate.log")
	w, err := NewRotatingWriter(path, 0, 3)
	require.NoError(t, err)
	defer w.Close()

	chunk := make([]byte, 2048)
	for i := range chunk {
		chunk[i] = 'x'
	}
	for i := 0; i < 5; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}

	matches, _ := filepath.Glob(path + "*")
	assert.GreaterOrEqual(t, len(matches), 1)
}

func firstLine(data []byte) []byte {
	for i, b := range data {
		if b == '\n' {
			return data[:i]
		}
	}
	return data
}
