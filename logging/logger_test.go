package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartrisk.log")
	logger := New(Options{Level: "info", Format: "json", File: path})
	logger.Info("model loaded")
	logger.Debug("hidden")
	_ = logger.Sync()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "model loaded")
	assert.NotContains(t, string(content), "hidden")
}
