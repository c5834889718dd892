package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("json logger", func(t *testing.T) {
		logger, err := NewLogger("info", "json")
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()

		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("console logger", func(t *testing.T) {
		logger, err := NewLogger("DEBUG", "console")
		require.NoError(t, err)
		defer logger.Sync()

		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("defaults when empty", func(t *testing.T) {
		logger, err := NewLogger("", "")
		require.NoError(t, err)
		defer logger.Sync()

		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	})

	t.Run("invalid log level", func(t *testing.T) {
		logger, err := NewLogger("loud", "json")
		assert.Nil(t, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("invalid log format", func(t *testing.T) {
		logger, err := NewLogger("info", "xml")
		assert.Nil(t, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log format")
	})
}
