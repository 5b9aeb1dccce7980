package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":     slog.LevelDebug,
		" WARNING ": slog.LevelWarn,
		"error":     slog.LevelError,
		"":          slog.LevelInfo,
		"loud":      slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, ParseLevel(in), want, in)
	}
}

func TestNewWithWriterFiltersAndEncodesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")
	logger.Info("dropped")
	logger.Warn("kept", "component", "echo")

	var line map[string]any
	assert.NilError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, line["msg"], "kept")
	assert.Equal(t, line["component"], "echo")
}
