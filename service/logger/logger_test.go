package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewStderrLogger(t *testing.T) {
	log, err := New(Config{Path: "stderr", Mode: FileModeTruncate, Level: zapcore.InfoLevel})
	require.NoError(t, err)
	require.NotNil(t, log)
	log.Info("hello")
}
