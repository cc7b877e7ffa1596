package logging

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, LevelInfo, cfg.Level)
	assert.NotNil(t, cfg.Output)
	assert.Equal(t, 512, cfg.RingSize)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"off", LevelOff},
		{"OFF", LevelOff},
		{"error", LevelError},
		{"ERROR", LevelError},
		{"warn", LevelWarn},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestHandleEmitsStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	h := New(Config{Level: LevelInfo, Output: &buf, RingSize: 8})

	span := h.WithSpan("trace-1", "span-1")
	span.Info("run_started", "engine", "starting run")

	output := buf.String()
	assert.Contains(t, output, "trace-1")
	assert.Contains(t, output, "span-1")
	assert.Contains(t, output, "run_started")
	assert.Contains(t, output, "starting run")
}

func TestHandleFiltersBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	h := New(Config{Level: LevelWarn, Output: &buf, RingSize: 8})

	span := h.WithSpan("t", "s")
	span.Debug("e", "src", "debug message")
	span.Info("e", "src", "info message")
	span.Warn("e", "src", "warn message")
	span.Error("e", "src", "error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestHandleOffLevelWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	h := New(Config{Level: LevelOff, Output: &buf, RingSize: 8})

	h.WithSpan("t", "s").Error("e", "src", "should not appear")

	assert.Empty(t, strings.TrimSpace(buf.String()))
}

func TestNopDiscardsOutput(t *testing.T) {
	h := Nop()
	h.WithSpan("t", "s").Error("e", "src", "discarded")
	assert.Empty(t, h.Dump(0))
}

func TestNewDefaultsOutputAndRingSize(t *testing.T) {
	h := New(Config{Level: LevelInfo})
	assert.NotNil(t, h)
	assert.Equal(t, 512, h.cap)
}

func TestDumpReturnsRecordsInChronologicalOrder(t *testing.T) {
	h := New(Config{Level: LevelInfo, Output: io.Discard, RingSize: 4})
	span := h.WithSpan("t", "s")

	for i := 0; i < 3; i++ {
		span.Info("event", "src", "msg")
	}

	records := h.Dump(0)
	assert.Len(t, records, 3)
}

func TestDumpRespectsRingCapacity(t *testing.T) {
	h := New(Config{Level: LevelInfo, Output: io.Discard, RingSize: 2})
	span := h.WithSpan("t", "s")

	span.Info("e1", "src", "first")
	span.Info("e2", "src", "second")
	span.Info("e3", "src", "third")

	records := h.Dump(0)
	assert.Len(t, records, 2)
	assert.Equal(t, "second", records[0].Msg)
	assert.Equal(t, "third", records[1].Msg)
}

func TestDumpLimitsToRequestedCount(t *testing.T) {
	h := New(Config{Level: LevelInfo, Output: io.Discard, RingSize: 8})
	span := h.WithSpan("t", "s")

	for i := 0; i < 5; i++ {
		span.Info("e", "src", "msg")
	}

	assert.Len(t, h.Dump(2), 2)
}
