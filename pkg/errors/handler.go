package errors

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ErrorHandler 错误处理器接口
type ErrorHandler interface {
	// Handle 处理错误
	Handle(err error) error
	// Name 返回处理器名称
	Name() string
}

// LogErrorHandler 日志错误处理器
type LogErrorHandler struct {
	logger hclog.Logger
	name   string
}

// NewLogErrorHandler 创建一个新的日志错误处理器
func NewLogErrorHandler(logger hclog.Logger) *LogErrorHandler {
	return &LogErrorHandler{
		logger: logger,
		name:   "log",
	}
}

// Handle 处理错误
func (h *LogErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if As(err, &appErr) {
		h.logger.Error("应用程序错误",
			"type", appErr.Type.String(),
			"code", appErr.Code,
			"message", appErr.Message,
			"cause", appErr.Cause,
			"context", appErr.Context,
			"time", appErr.Time,
		)
	} else {
		h.logger.Error("错误", "error", err)
	}

	return MarkHandled(err, h.Name())
}

// Name 返回处理器名称
func (h *LogErrorHandler) Name() string {
	return h.name
}

// RetryErrorHandler 重试错误处理器，为可重试错误补全重试参数
type RetryErrorHandler struct {
	maxRetries int
	backoff    time.Duration
	name       string
}

// NewRetryErrorHandler 创建一个新的重试错误处理器
func NewRetryErrorHandler(maxRetries int, backoff time.Duration) *RetryErrorHandler {
	return &RetryErrorHandler{
		maxRetries: maxRetries,
		backoff:    backoff,
		name:       "retry",
	}
}

// Handle 处理错误
func (h *RetryErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	if !IsRetriable(err) {
		return err
	}

	var appErr *AppError
	if !As(err, &appErr) {
		return err
	}

	// 使用错误中的重试信息或默认值
	if appErr.MaxRetries <= 0 {
		appErr.MaxRetries = h.maxRetries
	}
	if appErr.RetryDelay <= 0 {
		appErr.RetryDelay = h.backoff
	}

	return MarkHandled(appErr, h.Name())
}

// Name 返回处理器名称
func (h *RetryErrorHandler) Name() string {
	return h.name
}

// ErrorHandlerChain 错误处理器链
type ErrorHandlerChain struct {
	handlers []ErrorHandler
	name     string
}

// NewErrorHandlerChain 创建一个新的错误处理器链
func NewErrorHandlerChain(handlers ...ErrorHandler) *ErrorHandlerChain {
	return &ErrorHandlerChain{
		handlers: handlers,
		name:     "chain",
	}
}

// Handle 处理错误
func (c *ErrorHandlerChain) Handle(err error) error {
	if err == nil {
		return nil
	}

	for _, handler := range c.handlers {
		err = handler.Handle(err)
	}

	return err
}

// Name 返回处理器名称
func (c *ErrorHandlerChain) Name() string {
	return c.name
}

// AddHandler 添加处理器
func (c *ErrorHandlerChain) AddHandler(handler ErrorHandler) {
	c.handlers = append(c.handlers, handler)
}

// DefaultErrorHandler 默认错误处理器
func DefaultErrorHandler(logger hclog.Logger) ErrorHandler {
	return NewErrorHandlerChain(
		NewLogErrorHandler(logger),
		NewRetryErrorHandler(3, 1*time.Second),
	)
}

// RetryWithBackoff 按重试策略执行函数，仅对可重试错误重试
func RetryWithBackoff(ctx context.Context, logger hclog.Logger, operation string, maxRetries int, backoff time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Wrap(ctx.Err(), ErrorTypeTemporary, CodeTimeout, "重试等待被取消")
			case <-time.After(backoff):
			}
			// 退避时间逐次加倍
			backoff *= 2
			if logger != nil {
				logger.Warn("重试操作", "operation", operation, "attempt", attempt, "max_retries", maxRetries, "error", lastErr)
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetriable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
