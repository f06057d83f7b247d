package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLogLevel(&Config{LogLevel: "debug"}))
	require.Equal(t, slog.LevelWarn, parseLogLevel(&Config{LogLevel: "WARN"}))
	require.Equal(t, slog.LevelError, parseLogLevel(&Config{LogLevel: "error"}))
	require.Equal(t, slog.LevelInfo, parseLogLevel(&Config{LogLevel: "verbose"}))
	require.Equal(t, slog.LevelInfo, parseLogLevel(nil))
}

func TestNewLoggerHonoursJSONFormat(t *testing.T) {
	logger := NewLogger(&Config{LogFormat: "json", LogLevel: "warn"})
	ctx := context.Background()
	require.False(t, logger.Enabled(ctx, slog.LevelInfo))
	require.True(t, logger.Enabled(ctx, slog.LevelWarn))
}
