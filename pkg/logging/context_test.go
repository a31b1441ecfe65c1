package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextWithRunID(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithRunID(ctx, "run-123")

	assert.Equal(t, "run-123", GetRunIDFromContext(ctx))
}

func TestContextWithRunIDGenerated(t *testing.T) {
	// 空运行ID时自动生成
	ctx := ContextWithRunID(context.Background(), "")

	runID := GetRunIDFromContext(ctx)
	assert.NotEmpty(t, runID)
	assert.True(t, strings.HasPrefix(runID, "run-"))
}

func TestContextWithRequestID(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithRequestID(ctx, "req-456")

	assert.Equal(t, "req-456", GetRequestIDFromContext(ctx))
}

func TestContextWithCommand(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithCommand(ctx, "provision")

	assert.Equal(t, "provision", GetCommandFromContext(ctx))
}

func TestGetFromNilContext(t *testing.T) {
	assert.Equal(t, "", GetRunIDFromContext(nil))
	assert.Equal(t, "", GetRequestIDFromContext(nil))
	assert.Equal(t, "", GetCommandFromContext(nil))
}

func TestLoggerFromContext(t *testing.T) {
	logger, _ := newBufferLogger(t, LogLevelDebug)
	defer logger.Close()

	// 上下文中没有日志记录器时返回带上下文字段的默认记录器
	ctx := ContextWithRunID(context.Background(), "run-789")
	result := LoggerFromContext(ctx, logger)
	assert.NotNil(t, result)

	// 上下文中有日志记录器时直接返回
	named := logger.Named("test")
	ctx = ContextWithLogger(context.Background(), named)
	result = LoggerFromContext(ctx, logger)
	assert.Equal(t, named, result)
}
