package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestLoggerWritesServiceAndModule(t *testing.T) {
	var buf bytes.Buffer
	l := NewFromConfig(Config{Service: "valuation", Module: "pricing", Level: "info", Output: &buf})

	l.InfoContext(context.Background(), "priced", "method", "binomial")
	l.DebugContext(context.Background(), "hidden")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "priced", lines[0]["msg"])
	assert.Equal(t, "valuation", lines[0]["service"])
	assert.Equal(t, "pricing", lines[0]["module"])
	assert.Equal(t, "binomial", lines[0]["method"])
	assert.Contains(t, lines[0], "timestamp")
}

func TestSetLevelAppliesAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	l := NewFromConfig(Config{Service: "valuation", Level: "warn", Output: &buf})
	t.Cleanup(func() { SetLevel("info") })

	l.Info("dropped")
	SetLevel("debug")
	assert.Equal(t, slog.LevelDebug, Level())
	l.Debug("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
}

func TestTraceHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	l := NewFromConfig(Config{Service: "valuation", Output: &buf}).Named("batch")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.InfoContext(ctx, "traced")
	l.InfoContext(context.Background(), "untraced")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, traceID.String(), lines[0]["trace_id"])
	assert.Equal(t, spanID.String(), lines[0]["span_id"])
	assert.Equal(t, "batch", lines[0]["component"])
	assert.NotContains(t, lines[1], "trace_id")
}

func TestFileAndConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "valuation.log")
	l := NewFromConfig(Config{Service: "valuation", File: file, Console: true, MaxSize: 1, Output: &buf})

	l.Warn("both")
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.FileExists(t, file)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
