package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".flakeseer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingDefaultPathUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Runs)
	assert.Equal(t, "gotest", cfg.Adapter)
	assert.True(t, *cfg.Analyze)
	assert.True(t, *cfg.Suggest)
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), true)
	assert.Error(t, err)
}

func TestLoadOverlaysFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
runs: 25
adapter: pytest
timeoutPerRun: 30s
analyze: false
`)

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Runs)
	assert.Equal(t, "pytest", cfg.Adapter)
	assert.Equal(t, 30*time.Second, cfg.TimeoutPerRun)
	assert.False(t, *cfg.Analyze)
	// untouched defaults survive
	assert.True(t, *cfg.Suggest)
	assert.Equal(t, 1, cfg.Parallel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown adapter", "adapter: mocha"},
		{"malformed yaml", "runs: [nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), true)
			assert.Error(t, err)
		})
	}
}

func TestValidateRanges(t *testing.T) {
	cfg := Defaults()
	cfg.Runs = 0
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Parallel = 0
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Defaults().Validate())
}
