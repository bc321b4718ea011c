package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG").Level())
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn").Level())
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose").Level())
}

func TestNewWritesJSONToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "app.log")
	log, err := New("info", file)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("poll failed", zap.String("filter", "*|*"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"poll failed"`)
	assert.Contains(t, string(data), `"filter":"*|*"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNewWithoutFileDiscards(t *testing.T) {
	log, err := New("debug", "")
	require.NoError(t, err)
	assert.NotNil(t, log)
}
