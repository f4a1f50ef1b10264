package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestErrorCarriesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: zerolog.DebugLevel, Format: FormatJSON, Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithTaskID(ctx, "task-1")
	log.Error(ctx, "order failed", errors.New("stock exhausted"))

	entry := decodeEntry(t, buf)
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "task-1", entry["task_id"])
	assert.Equal(t, "stock exhausted", entry["error"])

	stack, ok := entry["stack"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, stack)
	assert.Contains(t, stack[0], "TestErrorCarriesContextFieldsAndStack")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "worker", WarnStack: true, Format: FormatJSON, Output: buf}).Warn(context.Background(), "slow poll")
	assert.Contains(t, decodeEntry(t, buf), "stack")

	buf.Reset()
	New(Options{ServiceName: "worker", Format: FormatJSON, Output: buf}).Warn(context.Background(), "slow poll")
	assert.NotContains(t, decodeEntry(t, buf), "stack")
}

func TestTypedFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "importer", Format: FormatJSON, Output: buf})
	id := uuid.MustParse("6f1c2a8e-1d55-4c5c-9a77-1b8f0c2d3e4f")

	ctx := log.WithShopID(context.Background(), 42)
	ctx = log.WithFields(ctx, map[string]any{
		"task":     id,
		"rows":     3,
		"dry_run":  false,
		"duration": 1500 * time.Millisecond,
	})
	log.Info(ctx, "feed imported")

	entry := decodeEntry(t, buf)
	assert.Equal(t, float64(42), entry["shop_id"])
	assert.Equal(t, id.String(), entry["task"])
	assert.Equal(t, float64(3), entry["rows"])
	assert.Equal(t, false, entry["dry_run"])
	assert.Contains(t, entry, "duration")
}

func TestWithFieldsSortedKeys(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Format: FormatJSON, Output: buf})
	log.Info(log.WithFields(context.Background(), map[string]any{"zeta": 1, "alpha": 2, "mid": 3}), "x")

	line := buf.String()
	alpha, mid, zeta := strings.Index(line, `"alpha"`), strings.Index(line, `"mid"`), strings.Index(line, `"zeta"`)
	require.True(t, alpha >= 0 && mid >= 0 && zeta >= 0, line)
	assert.Less(t, alpha, mid)
	assert.Less(t, mid, zeta)
}

func TestConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "cron-worker", Format: "Console", Output: buf}).Info(context.Background(), "cycle done")
	out := buf.String()
	assert.Contains(t, out, "cycle done")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestDebugFilteredByLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "api", Output: buf}).Debug(context.Background(), "hidden")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
}
