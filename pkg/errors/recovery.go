package errors

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// RecoveryHandler 恢复处理器接口
type RecoveryHandler interface {
	// HandlePanic 处理panic
	HandlePanic(p interface{}) error
	// Name 返回处理器名称
	Name() string
}

// LogRecoveryHandler 日志恢复处理器
type LogRecoveryHandler struct {
	logger hclog.Logger
	name   string
}

// NewLogRecoveryHandler 创建一个新的日志恢复处理器
func NewLogRecoveryHandler(logger hclog.Logger) *LogRecoveryHandler {
	return &LogRecoveryHandler{
		logger: logger,
		name:   "log_recovery",
	}
}

// HandlePanic 处理panic
func (h *LogRecoveryHandler) HandlePanic(p interface{}) error {
	stack := debug.Stack()
	h.logger.Error("恢复panic",
		"panic", p,
		"stack", string(stack),
	)

	return New(ErrorTypeCritical, "PANIC", fmt.Sprintf("Panic: %v", p)).
		WithContext("stack", string(stack))
}

// Name 返回处理器名称
func (h *LogRecoveryHandler) Name() string {
	return h.name
}

// RecoveryManager 恢复管理器
type RecoveryManager struct {
	handler RecoveryHandler
	logger  hclog.Logger
	stats   RecoveryStats
	mu      sync.RWMutex
}

// RecoveryStats 恢复统计信息
type RecoveryStats struct {
	TotalPanics     int64
	RecoveredPanics int64
	LastPanicTime   time.Time
}

// NewRecoveryManager 创建一个新的恢复管理器
func NewRecoveryManager(logger hclog.Logger, handler RecoveryHandler) *RecoveryManager {
	if handler == nil {
		handler = NewLogRecoveryHandler(logger)
	}

	return &RecoveryManager{
		handler: handler,
		logger:  logger,
	}
}

// HandlePanic 处理panic
func (m *RecoveryManager) HandlePanic(p interface{}) error {
	m.mu.Lock()
	m.stats.TotalPanics++
	m.stats.LastPanicTime = time.Now()
	m.mu.Unlock()

	err := m.handler.HandlePanic(p)

	m.mu.Lock()
	m.stats.RecoveredPanics++
	m.mu.Unlock()

	return err
}

// GetStats 获取统计信息
func (m *RecoveryManager) GetStats() RecoveryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// SafeGo 安全地启动goroutine
func (m *RecoveryManager) SafeGo(f func()) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				m.HandlePanic(p)
			}
		}()
		f()
	}()
}

// SafeGoWithContext 安全地启动带上下文的goroutine
func (m *RecoveryManager) SafeGoWithContext(ctx context.Context, f func(context.Context)) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				m.HandlePanic(p)
			}
		}()
		f(ctx)
	}()
}

// SafeExec 安全地执行函数
func (m *RecoveryManager) SafeExec(f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = m.HandlePanic(p)
		}
	}()
	return f()
}

// SafeExecWithContext 安全地执行带上下文的函数
func (m *RecoveryManager) SafeExecWithContext(ctx context.Context, f func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = m.HandlePanic(p)
		}
	}()
	return f(ctx)
}

// DefaultRecoveryManager 默认恢复管理器
func DefaultRecoveryManager(logger hclog.Logger) *RecoveryManager {
	return NewRecoveryManager(logger, NewLogRecoveryHandler(logger))
}

// SafeGo 安全地启动goroutine
func SafeGo(f func()) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				stack := debug.Stack()
				fmt.Printf("Recovered from panic: %v\n%s\n", p, stack)
			}
		}()
		f()
	}()
}

// SafeExec 安全地执行函数
func SafeExec(f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			stack := debug.Stack()
			fmt.Printf("Recovered from panic: %v\n%s\n", p, stack)
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return f()
}
