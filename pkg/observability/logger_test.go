package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/contextkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Debug("hidden")
	logger.Info("shown")
	logger.Warnf("warned %d", 2)
	logger.Error("failed")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "shown", entries[0]["msg"])
	assert.Equal(t, "warned 2", entries[1]["msg"])
	assert.Equal(t, "ERROR", entries[2]["level"])
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithField("membership_id", 7).
		WithFields(map[string]any{"org_slug": "acme"}).
		WithError(assert.AnError).
		WithError(nil).
		Debug("transition")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(7), entries[0]["membership_id"])
	assert.Equal(t, "acme", entries[0]["org_slug"])
	assert.Equal(t, assert.AnError.Error(), entries[0]["error"])
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	ctx = contextkeys.WithUserID(ctx, "user-1")
	ctx = contextkeys.WithOrgID(ctx, 42)

	logger.FromContext(ctx).Info("hello")
	logger.FromContext(context.Background()).Info("bare")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0]["request_id"])
	assert.Equal(t, "user-1", entries[0]["user_id"])
	assert.Equal(t, float64(42), entries[0]["org_id"])
	assert.NotContains(t, entries[1], "request_id")
}

func TestGetLogger(t *testing.T) {
	fallback := NopLogger()
	assert.Same(t, fallback, GetLogger(context.Background(), fallback))

	stored := NopLogger()
	ctx := WithLogger(context.Background(), stored)
	assert.Same(t, stored, GetLogger(ctx, fallback))
	assert.NotNil(t, GetLogger(context.Background(), nil))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLogLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLogLevel("verbose"))
	assert.Equal(t, "WARN", WarnLevel.String())
}
