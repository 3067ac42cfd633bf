package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggingBeforeInitDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		Info("message")
		Infof("formatted %s", "message")
		Infow("structured", "key", "value")
		Warnf("warning %d", 1)
		Error("failed", nil)
		Errorf("failed %v", "badly")
		Sync()
	})
}

func TestInitReplacesDefaultLogger(t *testing.T) {
	Init("debug", "json", "")
	require.NotPanics(t, func() {
		Infof("logger level %s", "debug")
	})
}
