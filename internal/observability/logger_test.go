package observability_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workspace-9/gosp/config"
	"github.com/workspace-9/gosp/internal/observability"
)

func TestSetupLoggerWritesFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "device.log")
	logger, err := observability.SetupLogger(config.LogConfig{
		Level:   "warn",
		Format:  "json",
		Outputs: []string{path},
	})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, logger.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"shown"`)
	assert.NotContains(t, string(b), "hidden")
}

func TestSetupLoggerUnknownLevelIsInfo(t *testing.T) {
	logger, err := observability.SetupLogger(config.LogConfig{Level: "chatty", Outputs: []string{"stderr"}})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(0))
	assert.False(t, logger.Core().Enabled(-1))
}
