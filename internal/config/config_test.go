package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "progress.json", cfg.ProgressFile)
	assert.Equal(t, 5, cfg.Store.SaveAttempts)
	assert.Equal(t, time.Second, cfg.Store.SaveDelay)
	assert.Equal(t, 6, cfg.Inference.TailLines)
	assert.Equal(t, []int{9, 12, 16, 20, 24, 28, 32, 36, 40, 48, 56}, cfg.Data.FontSizes)
	assert.Equal(t, 25, cfg.Data.LinesPerImage)
	assert.Equal(t, 80, cfg.Tools.MFTrainingBatch)
	assert.Equal(t, 500, cfg.Tools.MFTrainingMaxBatches)
	assert.Equal(t, "pvz", cfg.Model.Name)
	assert.True(t, cfg.Model.HanOnly)
	assert.Equal(t, ":3391", cfg.Dashboard.Addr)
	assert.Equal(t, uint8(150), cfg.Capture.Threshold)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
progress_file: state/progress.json
log:
  level: debug
store:
  save_delay: 250ms
data:
  font_sizes: [12, 24]
model:
  name: zombies
`), 0o644))
	t.Setenv("TRADUCTOR_MODEL_TESSDATA_DIR", "/usr/share/tessdata")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "state/progress.json", cfg.ProgressFile)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.SaveDelay)
	assert.Equal(t, []int{12, 24}, cfg.Data.FontSizes)
	assert.Equal(t, "zombies", cfg.Model.Name)
	assert.Equal(t, "/usr/share/tessdata", cfg.Model.TessdataDir)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("explicit file missing", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("validation failure", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store:\n  save_attempts: 0\nmodel:\n  name: \"pvz model\"\n"), 0o644))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SaveAttempts")
		assert.Contains(t, err.Error(), "Name")
	})

	t.Run("archive enabled without dsn", func(t *testing.T) {
		path := filepath.Join(dir, "archive.yaml")
		require.NoError(t, os.WriteFile(path, []byte("capture:\n  archive:\n    enabled: true\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestConfigYAML(t *testing.T) {
	out, err := Default().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "progress_file: progress.json")
	assert.Contains(t, string(out), "mftraining_batch: 80")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, active, historical, errLog bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &active, &historical, &errLog, slog.LevelInfo)

	logger.Info("Ejecutando cntraining")
	logger.Error("tool failed", "tool", "cntraining")

	for name, buf := range map[string]*bytes.Buffer{"stderr": &stderr, "active": &active, "historical": &historical} {
		assert.Equal(t, 2, strings.Count(buf.String(), "\n"), name)
	}
	assert.Equal(t, 1, strings.Count(errLog.String(), "\n"))
	assert.Contains(t, errLog.String(), "tool failed")
}

func TestSkipActiveLog(t *testing.T) {
	var stderr, active, historical, errLog bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &active, &historical, &errLog, slog.LevelInfo).With("run_id", "r1")

	logger.Info("Ejecutando cntraining")
	logger.InfoContext(SkipActiveLog(context.Background()), "run statistics", "operation", "tool:cntraining")

	assert.Contains(t, active.String(), "Ejecutando cntraining")
	assert.NotContains(t, active.String(), "run statistics")
	assert.Contains(t, active.String(), "run_id=r1")
	for name, buf := range map[string]*bytes.Buffer{"stderr": &stderr, "historical": &historical} {
		assert.Contains(t, buf.String(), "run statistics", name)
	}
}

func TestSetupLoggerRotatesActiveLog(t *testing.T) {
	cfg := Default().Log
	cfg.Dir = t.TempDir()

	require.NoError(t, os.WriteFile(cfg.ActivePath(), []byte("previous run\n"), 0o644))

	logger, cleanup := SetupLogger(cfg, slog.LevelInfo)
	logger.Info("fresh run")
	logger.Error("boom")
	require.NoError(t, cleanup())

	prev, err := os.ReadFile(cfg.PreviousActivePath())
	require.NoError(t, err)
	assert.Equal(t, "previous run\n", string(prev))

	active, err := os.ReadFile(cfg.ActivePath())
	require.NoError(t, err)
	assert.NotContains(t, string(active), "previous run")
	assert.Contains(t, string(active), "fresh run")

	hist, err := os.ReadFile(cfg.HistoricalPath())
	require.NoError(t, err)
	assert.Contains(t, string(hist), "fresh run")

	errs, err := os.ReadFile(cfg.ErrorPath())
	require.NoError(t, err)
	assert.Contains(t, string(errs), "boom")
	assert.NotContains(t, string(errs), "fresh run")
}
