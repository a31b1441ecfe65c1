package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(t *testing.T, level LogLevel) (*EnhancedLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	config := &LogConfig{
		Level:            level,
		Format:           LogFormatJSON,
		Output:           LogOutputStdout,
		IncludeTimestamp: true,
		TimeFormat:       time.RFC3339,
	}
	return newLoggerWithWriter(config, &buf), &buf
}

func TestEnhancedLoggerFileOutput(t *testing.T) {
	tempDir := t.TempDir()

	// 创建日志配置
	config := &LogConfig{
		Level:            LogLevelDebug,
		Format:           LogFormatJSON,
		Output:           LogOutputFile,
		FilePath:         filepath.Join(tempDir, "test.log"),
		MaxSize:          1024 * 1024,
		MaxAge:           7 * 24 * time.Hour,
		MaxBackups:       3,
		IncludeTimestamp: true,
		TimeFormat:       time.RFC3339,
	}

	logger, err := NewEnhancedLogger(config)
	assert.NoError(t, err)
	defer logger.Close()

	// 记录日志
	logger.Debug("这是一条调试日志", "key", "value")
	logger.Info("这是一条信息日志", "count", 42, "enabled", true)
	logger.Warn("这是一条警告日志", "status", "warning")
	logger.Error("这是一条错误日志", "error", "test error")

	data, err := os.ReadFile(config.FilePath)
	assert.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.GreaterOrEqual(t, len(lines), 4)
}

func TestEnhancedLoggerWithContext(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelDebug)
	defer logger.Close()

	// 创建上下文
	ctx := context.Background()
	ctx = ContextWithRunID(ctx, "run-123")
	ctx = ContextWithRequestID(ctx, "req-456")
	ctx = ContextWithCommand(ctx, "validate")

	ctxLogger := logger.WithContext(ctx)
	ctxLogger.Info("带上下文的日志", "key", "value")

	var logEntry map[string]interface{}
	err := json.Unmarshal(firstJSONLine(buf.Bytes()), &logEntry)
	assert.NoError(t, err)

	assert.Equal(t, "带上下文的日志", logEntry["message"])
	assert.Equal(t, "value", logEntry["key"])
	assert.Equal(t, "run-123", logEntry["run_id"])
	assert.Equal(t, "req-456", logEntry["request_id"])
	assert.Equal(t, "validate", logEntry["command"])
}

func TestEnhancedLoggerWithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelDebug)
	defer logger.Close()

	fieldLogger := logger.WithField("component", "tessdata").
		WithField("language", "kor")
	fieldLogger.Info("带字段的日志")

	var logEntry map[string]interface{}
	err := json.Unmarshal(firstJSONLine(buf.Bytes()), &logEntry)
	assert.NoError(t, err)

	assert.Equal(t, "带字段的日志", logEntry["message"])
	assert.Equal(t, "tessdata", logEntry["component"])
	assert.Equal(t, "kor", logEntry["language"])
}

func TestEnhancedLoggerWithMultipleFields(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelDebug)
	defer logger.Close()

	fields := map[string]interface{}{
		"component": "provision",
		"step":      "install",
		"retriable": true,
		"attempt":   2,
	}
	logger.WithFields(fields).Info("带多个字段的日志")

	var logEntry map[string]interface{}
	err := json.Unmarshal(firstJSONLine(buf.Bytes()), &logEntry)
	assert.NoError(t, err)

	assert.Equal(t, "provision", logEntry["component"])
	assert.Equal(t, "install", logEntry["step"])
	assert.Equal(t, true, logEntry["retriable"])
	assert.Equal(t, float64(2), logEntry["attempt"])
}

func TestEnhancedLoggerNamed(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelDebug)
	defer logger.Close()

	namedLogger := logger.Named("downloader")
	namedLogger.Info("命名的日志")

	var logEntry map[string]interface{}
	err := json.Unmarshal(firstJSONLine(buf.Bytes()), &logEntry)
	assert.NoError(t, err)

	assert.Equal(t, "命名的日志", logEntry["message"])
	assert.Contains(t, logEntry["name"], "downloader")
}

func TestEnhancedLoggerSetLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelInfo)
	defer logger.Close()

	// 低于当前级别的日志不应输出
	logger.Debug("这是一条调试日志")
	assert.Empty(t, buf.String())

	logger.SetLevel(LogLevelDebug)
	logger.Debug("这是一条调试日志")
	assert.NotEmpty(t, buf.String())

	assert.Equal(t, LogLevelDebug, logger.GetLevel())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	// 未知值回退为info
	assert.Equal(t, LogLevelInfo, ParseLevel("verbose"))
}

// firstJSONLine 提取缓冲区中第一行JSON（hclog与zerolog共用同一输出）
func firstJSONLine(data []byte) []byte {
	for _, line := range bytes.Split(data, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
			var entry map[string]interface{}
			if err := json.Unmarshal(trimmed, &entry); err == nil {
				if _, ok := entry["message"]; ok {
					return trimmed
				}
			}
		}
	}
	return nil
}
