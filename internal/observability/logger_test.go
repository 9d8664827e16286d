// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quantumagi/agi-sdk-go/internal/config"
)

// setupTestLogger initializes the global logger against a buffer so tests can
// inspect what was written.
func setupTestLogger(cfg config.LoggerConfig) *bytes.Buffer {
	buf := new(bytes.Buffer)
	Initialize(cfg, zapcore.AddSync(buf))
	return buf
}

func TestInitialize(t *testing.T) {
	t.Run("console format with colors", func(t *testing.T) {
		ResetForTest()

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "agi",
			Colors:      config.ColorConfig{Info: "cyan"},
		}
		buf := setupTestLogger(cfg)

		GetLogger().Info("Agent loop started")
		Sync()

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "Agent loop started")
		assert.Contains(t, output, colorCyan)
		assert.Contains(t, output, colorReset)
	})

	t.Run("json format", func(t *testing.T) {
		ResetForTest()

		buf := setupTestLogger(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "agi",
		})

		GetLogger().Warn("Inference slow", zap.String("session_id", "sess-1"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output should be valid JSON")
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "agi", entry["logger"])
		assert.Equal(t, "Inference slow", entry["msg"])
		assert.Equal(t, "sess-1", entry["session_id"])
	})

	t.Run("file sink when configured", func(t *testing.T) {
		ResetForTest()

		tmpFile, err := os.CreateTemp(t.TempDir(), "agi-*.log")
		require.NoError(t, err)
		require.NoError(t, tmpFile.Close())

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: tmpFile.Name(),
			MaxSize: 1,
		}
		Initialize(cfg, zapcore.AddSync(io.Discard))

		GetLogger().Error("Browser crashed")
		Sync()

		content, err := os.ReadFile(tmpFile.Name())
		require.NoError(t, err)
		assert.Contains(t, string(content), "Browser crashed")
	})

	t.Run("second initialization is a no-op", func(t *testing.T) {
		ResetForTest()

		buf1 := setupTestLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "first"})
		logger1 := GetLogger()

		buf2 := setupTestLogger(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "second"})
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("still the first logger")
		Sync()

		assert.Contains(t, buf1.String(), "first")
		assert.Contains(t, buf1.String(), "still the first logger")
		assert.Empty(t, buf2.String())
	})

	t.Run("bad level falls back to info", func(t *testing.T) {
		ResetForTest()

		buf := setupTestLogger(config.LoggerConfig{Level: "chatty", Format: "json"})
		logger := GetLogger()

		logger.Debug("should be filtered")
		logger.Info("should appear")
		Sync()

		assert.NotContains(t, buf.String(), "should be filtered")
		assert.Contains(t, buf.String(), "should appear")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()

		oldStderr := os.Stderr
		r, w, _ := os.Pipe()
		os.Stderr = w

		logger := GetLogger()
		require.NotNil(t, logger)

		w.Close()
		os.Stderr = oldStderr

		var buf bytes.Buffer
		io.Copy(&buf, r)
		assert.Contains(t, buf.String(), "Global logger requested before initialization")
	})

	t.Run("returns the stored logger after initialization", func(t *testing.T) {
		ResetForTest()
		InitializeLogger(config.LoggerConfig{Level: "info", ServiceName: "agi"})

		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}
