package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew_JSONWithTsKey(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Output: &buf})

	logger.Info("hello", "key", "value")
	entry := logLine(t, &buf)

	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Contains(t, entry, "ts")
	assert.NotContains(t, entry, "time")
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Output: &buf, Level: slog.LevelInfo})

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger = New(&Config{Output: &buf, Debug: true})
	logger.Debug("visible")
	assert.NotZero(t, buf.Len())
}

func TestLogEventDropped(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Output: &buf})

	LogEventDropped(logger, "u1", "f1", "unknown feature")
	entry := logLine(t, &buf)

	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, "f1", entry["feature_id"])
	assert.Equal(t, "unknown feature", entry["reason"])
}
