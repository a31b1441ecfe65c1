package errors

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestLogRecoveryHandler(t *testing.T) {
	logger := hclog.NewNullLogger()
	handler := NewLogRecoveryHandler(logger)

	err := handler.HandlePanic("test panic")
	assert.Error(t, err)

	var appErr *AppError
	assert.True(t, As(err, &appErr))
	assert.Equal(t, ErrorTypeCritical, appErr.Type)
	assert.Equal(t, "PANIC", appErr.Code)
	assert.Contains(t, appErr.Context, "stack")
}

func TestRecoveryManagerSafeExec(t *testing.T) {
	logger := hclog.NewNullLogger()
	manager := DefaultRecoveryManager(logger)

	// 正常执行
	err := manager.SafeExec(func() error {
		return nil
	})
	assert.NoError(t, err)

	// panic被恢复并转换为错误
	err = manager.SafeExec(func() error {
		panic("boom")
	})
	assert.Error(t, err)
	assert.True(t, IsType(err, ErrorTypeCritical))

	stats := manager.GetStats()
	assert.Equal(t, int64(1), stats.TotalPanics)
	assert.Equal(t, int64(1), stats.RecoveredPanics)
	assert.WithinDuration(t, time.Now(), stats.LastPanicTime, time.Second)
}

func TestRecoveryManagerSafeExecWithContext(t *testing.T) {
	logger := hclog.NewNullLogger()
	manager := DefaultRecoveryManager(logger)

	err := manager.SafeExecWithContext(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	assert.Error(t, err)
}

func TestRecoveryManagerSafeGo(t *testing.T) {
	logger := hclog.NewNullLogger()
	manager := DefaultRecoveryManager(logger)

	manager.SafeGo(func() {
		panic("goroutine boom")
	})

	// panic被恢复后统计更新
	assert.Eventually(t, func() bool {
		return manager.GetStats().TotalPanics == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSafeExec(t *testing.T) {
	err := SafeExec(func() error {
		return nil
	})
	assert.NoError(t, err)

	err = SafeExec(func() error {
		panic("boom")
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestSafeGo(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	SafeGo(func() {
		defer wg.Done()
		panic("goroutine boom")
	})
	wg.Wait()
}
