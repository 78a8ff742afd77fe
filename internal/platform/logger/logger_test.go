package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuevabiblioteca/biblioteca/internal/config"
)

func TestSetupLevels(t *testing.T) {
	cases := []struct {
		level        string
		debugEnabled bool
		infoEnabled  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"error", false, false},
		{"DEBUG", true, true},
	}
	for _, tc := range cases {
		log, err := Setup(config.ServerConfig{Port: 8525, LogLevel: tc.level})
		require.NoError(t, err)
		require.NotNil(t, log)
		assert.Equal(t, tc.debugEnabled, log.Enabled(context.Background(), slog.LevelDebug), "level %s", tc.level)
		assert.Equal(t, tc.infoEnabled, log.Enabled(context.Background(), slog.LevelInfo), "level %s", tc.level)
	}
}

func TestSetupInvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := Setup(config.ServerConfig{Port: 8525, LogLevel: "verbose"})
	require.NoError(t, err)
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
}

func TestSetupSetsDefaultLogger(t *testing.T) {
	log, err := Setup(config.ServerConfig{Port: 8525, LogLevel: "info"})
	require.NoError(t, err)
	assert.Same(t, log, slog.Default())
}

func TestContextRoundTrip(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := WithLogger(context.Background(), custom)
	assert.Same(t, custom, FromContext(ctx))
	assert.Same(t, custom, FromContextOrDefault(ctx, nil))
}

func TestFromContextFallbacks(t *testing.T) {
	ctx := context.Background()
	assert.Same(t, slog.Default(), FromContext(ctx))

	def := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, def, FromContextOrDefault(ctx, def))
}
