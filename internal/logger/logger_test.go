package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()
	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		SetFormat("text")
		SetLevel("INFO")
	}
	return buf, cleanup
}

// ============================================================================
// Level Filtering Tests
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")
		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		for _, s := range []string{"DEBUG", "INFO", "WARN", "ERROR", "debug message"} {
			assert.Contains(t, out, s)
		}
	})

	t.Run("WarnLevelFiltersDebugAndInfo", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("WARN")
		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("InvalidLevelIsIgnored", func(t *testing.T) {
		_, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")
		SetLevel("LOUD")
		assert.Equal(t, LevelError, Level(currentLevel.Load()))
	})
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("debug")
	assert.True(t, ok)
	assert.Equal(t, LevelDebug, l)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

// ============================================================================
// Format Tests
// ============================================================================

func TestTextFormatFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	Info("lease acquired", KeyFileID, uint64(42), KeyHolder, "client-1")

	out := buf.String()
	assert.Contains(t, out, "[INFO] lease acquired")
	assert.Contains(t, out, "file_id=42")
	assert.Contains(t, out, "holder=client-1")
}

func TestTextFormatQuotesValuesWithSpaces(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	Warn("commit failed", KeyError, "node down hard")
	assert.Contains(t, buf.String(), `error="node down hard"`)
}

func TestTextFormatFlattensGroups(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	Info("recovery", slog.Group("recovery", slog.Int("attempt", 2)))
	assert.Contains(t, buf.String(), "recovery.attempt=2")
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	Info("block finalized", KeyBlockID, uint64(7), KeyGenStamp, uint64(1002))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "block finalized", entry["msg"])
	assert.Equal(t, float64(7), entry[KeyBlockID])
	assert.Equal(t, float64(1002), entry[KeyGenStamp])
}

// ============================================================================
// Context Tests
// ============================================================================

func TestContextFieldsArePrepended(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	lc := NewLogContext("close").WithHolder("client-1").WithFile(9)
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "close rejected", KeyError, "conflict")

	out := buf.String()
	assert.Contains(t, out, "operation=close")
	assert.Contains(t, out, "holder=client-1")
	assert.Contains(t, out, "file_id=9")
	assert.Less(t, strings.Index(out, "operation="), strings.Index(out, "error="))
}

func TestFromContextWithoutLogContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.Nil(t, FromContext(nil)) //nolint:staticcheck
}

func TestCloneIsIndependent(t *testing.T) {
	lc := NewLogContext("sync")
	clone := lc.WithHolder("other")

	assert.Empty(t, lc.Holder)
	assert.Equal(t, "other", clone.Holder)

	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Clone())
	assert.Zero(t, nilCtx.DurationMs())
}

func TestErrAttr(t *testing.T) {
	assert.True(t, Err(nil).Equal(slog.Attr{}))
	assert.Equal(t, KeyError, Err(assertErr("boom")).Key)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
