package logx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-component")
	require.NotNil(t, logger)
	assert.Equal(t, "test-component", logger.GetComponent())
}

func TestLogBufferCapture(t *testing.T) {
	logger := NewLogger("buffer-test")
	logger.Info("hello %s", "world")

	entries := GetRecentLogEntries("buffer-test", time.Time{})
	require.NotEmpty(t, entries)

	last := entries[len(entries)-1]
	assert.Equal(t, "buffer-test", last.Component)
	assert.Equal(t, "INFO", last.Level)
	assert.Equal(t, "hello world", last.Message)
}

func TestLogBufferComponentFilter(t *testing.T) {
	NewLogger("alpha").Info("from alpha")
	NewLogger("beta").Info("from beta")

	entries := GetRecentLogEntries("alpha", time.Time{})
	for _, e := range entries {
		assert.Equal(t, "alpha", e.Component)
	}
}

func TestLogBufferMaxSize(t *testing.T) {
	buf := &InMemoryLogBuffer{maxSize: 3}
	for i := 0; i < 5; i++ {
		buf.AddLogEntry(&LogEntry{
			Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
			Component: "cap",
			Message:   string(rune('a' + i)),
		})
	}

	entries := buf.GetLogEntries("", time.Time{})
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Message)
	assert.Equal(t, "e", entries[2].Message)
}

func TestDebugDisabledByDefault(t *testing.T) {
	SetDebug(false)
	defer SetDebug(false)

	logger := NewLogger("debug-test")
	logger.Debug("should not appear")

	entries := GetRecentLogEntries("debug-test", time.Time{})
	assert.Empty(t, entries)

	SetDebug(true)
	logger.Debug("should appear")
	entries = GetRecentLogEntries("debug-test", time.Time{})
	require.Len(t, entries, 1)
	assert.Equal(t, "DEBUG", entries[0].Level)
}

func TestWrapNilError(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
}

func TestWrapError(t *testing.T) {
	base := Errorf("base failure")
	wrapped := Wrap(base, "db connect")
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, base)
	assert.Contains(t, wrapped.Error(), "db connect: base failure")
}
