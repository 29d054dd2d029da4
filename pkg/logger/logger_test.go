package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))

	Infow("stage completed", "stage", "FETCH", "partition", "2024-04")
	Warnf("retrying %s", "2024-05")
	Debugw("entering stage", "stage", "LOAD_RAW")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "stage completed", entries[0].Message)
	assert.Equal(t, map[string]interface{}{"stage": "FETCH", "partition": "2024-04"}, entries[0].ContextMap())
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "retrying 2024-05", entries[1].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
}

func TestInitLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etl.log")

	require.NoError(t, InitLogger(path, "WARN"))
	Info("hidden")
	Errorw("pipeline failed", "stage", "TRANSFORM")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "pipeline failed")
	assert.Contains(t, string(data), "TRANSFORM")
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 1, "error entries carry no stack trace")

	assert.Error(t, InitLogger("", "verbose"))
}
