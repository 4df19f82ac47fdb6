package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterFor(t *testing.T) {
	a, err := adapterFor("gotest")
	require.NoError(t, err)
	assert.Equal(t, "gotest", a.Name())

	a, err = adapterFor("pytest")
	require.NoError(t, err)
	assert.Equal(t, "pytest", a.Name())

	_, err = adapterFor("mocha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown adapter")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel(""))
}

// Flag state on detectCmd is process-global, so the overlay checks run
// as ordered steps of one test.
func TestLoadConfigFlagOverlay(t *testing.T) {
	flags := detectCmd.Flags()

	require.NoError(t, flags.Set("runs", "0"))
	_, err := loadConfig(detectCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runs must be >= 1")

	require.NoError(t, flags.Set("runs", "25"))
	require.NoError(t, flags.Set("adapter", "pytest"))
	require.NoError(t, flags.Set("analyze", "false"))

	cfg, err := loadConfig(detectCmd)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Runs)
	assert.Equal(t, "pytest", cfg.Adapter)
	assert.False(t, *cfg.Analyze)
	// Untouched fields keep their defaults.
	assert.Equal(t, ".flakeseer", cfg.OutDir)
	assert.True(t, *cfg.Suggest)
}
