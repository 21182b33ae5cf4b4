package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestZapLogger_Fields verifies fields and levels are forwarded to zap
// Given: A ZapLogger backed by an observer core
// When: Each level is logged with fields, one of them an error
// Then: Every entry is recorded with its level and the error is encoded as an error field
func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("debug", F("n", 1))
	logger.Info("info")
	logger.Warn("warn", F("queue", "q1"))
	logger.Error("error", F("error", errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)

	assert.Equal(t, int64(1), entries[0].ContextMap()["n"])
	assert.Equal(t, "q1", entries[2].ContextMap()["queue"])
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
	assert.NotNil(t, logger.Zap())
}

func TestZapLogger_NilFallsBackToNop(t *testing.T) {
	logger := NewZapLogger(nil)
	assert.NotPanics(t, func() { logger.Info("discarded", F("k", "v")) })
	assert.NotNil(t, NewDefaultLogger())
}

func TestNoOpLogger(t *testing.T) {
	var logger Logger = NewNoOpLogger()
	assert.NotPanics(t, func() {
		logger.Debug("x")
		logger.Info("x")
		logger.Warn("x")
		logger.Error("x", F("k", 1))
	})
}
