package concurrency

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// TaskFunc 表示一个任务函数
type TaskFunc func() error

// TaskWithContextFunc 表示一个带上下文的任务函数
type TaskWithContextFunc func(ctx context.Context) error

// TaskResult 表示任务执行结果
type TaskResult struct {
	ID        string
	Error     error
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Task 表示一个任务
type Task struct {
	ID          string
	Description string
	Func        TaskFunc
	CtxFunc     TaskWithContextFunc
	Timeout     time.Duration
	Context     context.Context
	Cancel      context.CancelFunc
	Result      chan TaskResult
	CreatedAt   time.Time
}

// WorkerPool 表示一个工作池，任务按提交顺序执行
type WorkerPool struct {
	name           string
	workers        int
	queue          chan *Task
	wg             sync.WaitGroup
	logger         hclog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	stopped        atomic.Bool
	taskCount      atomic.Int64
	successCount   atomic.Int64
	failureCount   atomic.Int64
	processingTime atomic.Int64
}

// WorkerPoolOption 工作池配置选项
type WorkerPoolOption func(*WorkerPool)

// WithLogger 设置日志记录器
func WithLogger(logger hclog.Logger) WorkerPoolOption {
	return func(wp *WorkerPool) {
		wp.logger = logger
	}
}

// WithContext 设置上下文
func WithContext(ctx context.Context) WorkerPoolOption {
	return func(wp *WorkerPool) {
		if wp.cancel != nil {
			wp.cancel()
		}
		wp.ctx, wp.cancel = context.WithCancel(ctx)
	}
}

// WithQueueSize 设置队列大小
func WithQueueSize(size int) WorkerPoolOption {
	return func(wp *WorkerPool) {
		if size <= 0 {
			size = 100
		}
		wp.queue = make(chan *Task, size)
	}
}

// NewWorkerPool 创建一个新的工作池
func NewWorkerPool(name string, workers int, options ...WorkerPoolOption) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	wp := &WorkerPool{
		name:    name,
		workers: workers,
		queue:   make(chan *Task, 100),
		logger:  hclog.NewNullLogger(),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, option := range options {
		option(wp)
	}

	return wp
}

// Start 启动工作池
func (wp *WorkerPool) Start() {
	wp.logger.Debug("启动工作池", "name", wp.name, "workers", wp.workers)

	wp.stopped.Store(false)

	wp.wg.Add(wp.workers)
	for i := 0; i < wp.workers; i++ {
		workerID := i
		go wp.worker(workerID)
	}
}

// worker 工作协程
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case task, ok := <-wp.queue:
			if !ok {
				wp.logger.Debug("任务队列已关闭", "worker_id", id)
				return
			}
			wp.executeTask(id, task)
		case <-wp.ctx.Done():
			wp.logger.Debug("工作协程退出", "worker_id", id)
			return
		}
	}
}

// executeTask 执行任务
func (wp *WorkerPool) executeTask(workerID int, task *Task) {
	wp.logger.Debug("开始执行任务", "worker_id", workerID, "task_id", task.ID, "description", task.Description)

	startTime := time.Now()
	result := TaskResult{
		ID:        task.ID,
		StartTime: startTime,
	}

	var err error
	switch {
	case task.CtxFunc != nil:
		ctx := task.Context
		if ctx == nil {
			ctx = wp.ctx
		}
		err = task.CtxFunc(ctx)
	case task.Func != nil:
		err = task.Func()
	default:
		err = fmt.Errorf("任务没有可执行的函数")
	}

	if task.Cancel != nil {
		task.Cancel()
	}

	endTime := time.Now()
	duration := endTime.Sub(startTime)

	result.Error = err
	result.EndTime = endTime
	result.Duration = duration

	wp.taskCount.Add(1)
	wp.processingTime.Add(int64(duration))
	if err != nil {
		wp.failureCount.Add(1)
		wp.logger.Error("任务执行失败", "worker_id", workerID, "task_id", task.ID, "error", err, "duration", duration)
	} else {
		wp.successCount.Add(1)
		wp.logger.Debug("任务执行成功", "worker_id", workerID, "task_id", task.ID, "duration", duration)
	}

	if task.Result != nil {
		select {
		case task.Result <- result:
		default:
			wp.logger.Warn("无法发送任务结果，通道已满或已关闭", "task_id", task.ID)
		}
	}
}

// Submit 提交任务
func (wp *WorkerPool) Submit(task *Task) error {
	if wp.stopped.Load() {
		return fmt.Errorf("工作池已停止")
	}

	// 有超时设置时包装上下文
	if task.Timeout > 0 && task.CtxFunc != nil {
		parent := task.Context
		if parent == nil {
			parent = wp.ctx
		}
		task.Context, task.Cancel = context.WithTimeout(parent, task.Timeout)
	}

	select {
	case wp.queue <- task:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("工作池已取消")
	default:
		return fmt.Errorf("任务队列已满")
	}
}

// SubmitFunc 提交任务函数
func (wp *WorkerPool) SubmitFunc(id string, description string, fn TaskFunc) (chan TaskResult, error) {
	resultChan := make(chan TaskResult, 1)
	task := &Task{
		ID:          id,
		Description: description,
		Func:        fn,
		Result:      resultChan,
		CreatedAt:   time.Now(),
	}
	if err := wp.Submit(task); err != nil {
		close(resultChan)
		return nil, err
	}
	return resultChan, nil
}

// SubmitWithContext 提交带上下文的任务
func (wp *WorkerPool) SubmitWithContext(id string, description string, ctx context.Context, fn TaskWithContextFunc) (chan TaskResult, error) {
	resultChan := make(chan TaskResult, 1)
	task := &Task{
		ID:          id,
		Description: description,
		CtxFunc:     fn,
		Context:     ctx,
		Result:      resultChan,
		CreatedAt:   time.Now(),
	}
	if err := wp.Submit(task); err != nil {
		close(resultChan)
		return nil, err
	}
	return resultChan, nil
}

// SubmitWithTimeout 提交带超时的任务
func (wp *WorkerPool) SubmitWithTimeout(id string, description string, timeout time.Duration, fn TaskWithContextFunc) (chan TaskResult, error) {
	resultChan := make(chan TaskResult, 1)
	task := &Task{
		ID:          id,
		Description: description,
		CtxFunc:     fn,
		Timeout:     timeout,
		Result:      resultChan,
		CreatedAt:   time.Now(),
	}
	if err := wp.Submit(task); err != nil {
		close(resultChan)
		return nil, err
	}
	return resultChan, nil
}

// Stop 停止工作池并等待工作协程退出
func (wp *WorkerPool) Stop() {
	if wp.stopped.Load() {
		return
	}

	wp.logger.Debug("停止工作池", "name", wp.name)
	wp.stopped.Store(true)
	wp.cancel()
	wp.wg.Wait()
}

// Stats 获取工作池统计信息
func (wp *WorkerPool) Stats() map[string]interface{} {
	taskCount := wp.taskCount.Load()
	processingTime := wp.processingTime.Load()

	var avgProcessingTime int64
	if taskCount > 0 {
		avgProcessingTime = processingTime / taskCount
	}

	return map[string]interface{}{
		"name":                  wp.name,
		"workers":               wp.workers,
		"queue_size":            len(wp.queue),
		"task_count":            taskCount,
		"success_count":         wp.successCount.Load(),
		"failure_count":         wp.failureCount.Load(),
		"avg_processing_time":   time.Duration(avgProcessingTime).String(),
		"total_processing_time": time.Duration(processingTime).String(),
	}
}
