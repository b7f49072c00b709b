package main

import (
	"testing"

	"tamgiao-hitl/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger_AppliesConfiguredLevel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	logger, err := initLogger(cfg)
	require.NoError(t, err)
	defer logger.Sync()

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestInitLogger_ConsoleFormatKeepsDebug(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Format = "console"
	cfg.Log.Level = "debug"

	logger, err := initLogger(cfg)
	require.NoError(t, err)
	defer logger.Sync()

	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestInitLogger_RejectsUnknownLevel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Format = "json"
	cfg.Log.Level = "loud"

	_, err := initLogger(cfg)
	assert.Error(t, err)
}
