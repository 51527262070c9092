package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	prev := log
	t.Cleanup(func() { log = prev })

	assert.Error(t, Initialize("loud", "invite_mall"))
	assert.Same(t, prev, Logger())

	require.NoError(t, Initialize("warn", "invite_mall"))
	assert.NotSame(t, prev, Logger())
	assert.True(t, Logger().Core().Enabled(zapcore.WarnLevel))
	assert.False(t, Logger().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Named("scheduler").Core().Enabled(zapcore.ErrorLevel))
}
