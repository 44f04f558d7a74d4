package cli

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/config"
	"pdfrag/internal/domain"
)

func offlineConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := config.Default()
	cfg.Embedder.Type = "hashing"
	cfg.Embedder.Dimensions = 64
	cfg.Generator.Type = "openai"
	cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
	cfg.Generator.Model = "gpt-4o-mini"
	cfg.Index.Path = filepath.Join(t.TempDir(), "faiss_index", "index.db")
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewApp_Offline(t *testing.T) {
	cfg := offlineConfig(t)

	app, err := NewApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer app.Close()

	st := app.Pipeline.IndexStatus(context.Background())
	assert.False(t, st.Available)
	assert.Equal(t, cfg.Index.Path, st.Location)

	_, err = app.Pipeline.Ask(context.Background(), "anything?")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestNewApp_MemoryBackend(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Index.Backend = "memory"

	app, err := NewApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, "memory", app.Pipeline.IndexStatus(context.Background()).Location)
}

func TestNewApp_MissingKey(t *testing.T) {
	cfg := offlineConfig(t)
	t.Setenv("GOOGLE_API_KEY", "")
	cfg.Generator.Type = "google"
	cfg.Generator.APIKeyEnv = "GOOGLE_API_KEY"

	_, err := NewApp(context.Background(), cfg, discardLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Chunker.Overlap = cfg.Chunker.MaxSize

	_, err := NewApp(context.Background(), cfg, discardLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestBreakerSettings(t *testing.T) {
	s := breakerSettings(config.BreakerConfig{
		Enabled:       true,
		TimeoutSecs:   5,
		FailureRatio:  0.5,
		RatePerSecond: 2,
		Burst:         4,
	}, "generator:openai")

	assert.Equal(t, "generator:openai", s.Name)
	assert.Equal(t, 5*time.Second, s.Timeout)
	assert.Equal(t, time.Minute, s.Interval)
	assert.InDelta(t, 0.5, s.FailureRatio, 1e-9)
	assert.InDelta(t, 2.0, s.RatePerSecond, 1e-9)
	assert.Equal(t, 4, s.Burst)
}
