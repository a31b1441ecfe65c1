package logging

import (
	"context"

	"github.com/google/uuid"
)

// loggerContextKey 上下文中日志记录器的键
type loggerContextKey struct{}

// ContextWithRunID 创建带运行ID的上下文
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		runID = GenerateRunID()
	}
	return context.WithValue(ctx, LogContextKeyRunID, runID)
}

// GetRunIDFromContext 从上下文中获取运行ID
func GetRunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if runID, ok := ctx.Value(LogContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// ContextWithRequestID 创建带请求ID的上下文
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return context.WithValue(ctx, LogContextKeyRequestID, requestID)
}

// GetRequestIDFromContext 从上下文中获取请求ID
func GetRequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(LogContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// ContextWithCommand 创建带命令名的上下文
func ContextWithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, LogContextKeyCommand, command)
}

// GetCommandFromContext 从上下文中获取命令名
func GetCommandFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if command, ok := ctx.Value(LogContextKeyCommand).(string); ok {
		return command
	}
	return ""
}

// GenerateRunID 生成运行ID
func GenerateRunID() string {
	return "run-" + uuid.New().String()
}

// LoggerFromContext 从上下文中获取日志记录器，不存在时返回带上下文字段的默认记录器
func LoggerFromContext(ctx context.Context, defaultLogger Logger) Logger {
	if ctx == nil {
		return defaultLogger
	}

	if logger, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return logger
	}

	return defaultLogger.WithContext(ctx)
}

// ContextWithLogger 创建带日志记录器的上下文
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}
