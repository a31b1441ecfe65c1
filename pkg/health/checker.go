// Package health 提供 ldg doctor 使用的健康检查框架：
// 命名检查器注册表、统一超时与结果聚合
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Status 表示健康状态
type Status string

// 预定义健康状态
const (
	StatusUnknown   Status = "unknown"   // 未知状态
	StatusHealthy   Status = "healthy"   // 健康状态
	StatusDegraded  Status = "degraded"  // 降级状态，功能受限但可用
	StatusUnhealthy Status = "unhealthy" // 不健康状态
)

// defaultCheckTimeout 单个检查的默认超时
const defaultCheckTimeout = 10 * time.Second

// CheckResult 一次健康检查的结果
type CheckResult struct {
	Name          string                 `json:"name"`
	Status        Status                 `json:"status"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details,omitempty"`
	LastChecked   time.Time              `json:"last_checked"`
	CheckDuration time.Duration          `json:"check_duration"`
	Error         error                  `json:"-"`
}

// Checker 健康检查器接口
type Checker interface {
	// Check 执行健康检查
	Check(ctx context.Context) CheckResult
	// Name 返回检查器名称
	Name() string
	// Description 返回检查器描述
	Description() string
}

// CheckerFunc 健康检查函数类型
type CheckerFunc func(ctx context.Context) CheckResult

// SimpleChecker 包装一个检查函数的检查器
type SimpleChecker struct {
	name        string
	description string
	timeout     time.Duration
	checkFunc   CheckerFunc
}

// NewSimpleChecker 创建一个简单健康检查器
func NewSimpleChecker(name, description string, timeout time.Duration, checkFunc CheckerFunc) *SimpleChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &SimpleChecker{
		name:        name,
		description: description,
		timeout:     timeout,
		checkFunc:   checkFunc,
	}
}

// Check 执行健康检查，超时计入检查器自身
func (c *SimpleChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.checkFunc(ctx)
}

// Name 返回检查器名称
func (c *SimpleChecker) Name() string {
	return c.name
}

// Description 返回检查器描述
func (c *SimpleChecker) Description() string {
	return c.description
}

// Snapshot 一轮健康检查的汇总
type Snapshot struct {
	Overall   Status        `json:"overall"`
	Results   []CheckResult `json:"results"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// CheckerRegistry 检查器注册表
type CheckerRegistry struct {
	checkers map[string]Checker
	order    []string
	mu       sync.RWMutex
	logger   hclog.Logger
}

// NewCheckerRegistry 创建检查器注册表
func NewCheckerRegistry(logger hclog.Logger) *CheckerRegistry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CheckerRegistry{
		checkers: make(map[string]Checker),
		logger:   logger,
	}
}

// RegisterChecker 注册健康检查器，重名时覆盖并保留注册顺序
func (r *CheckerRegistry) RegisterChecker(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := checker.Name()
	if _, exists := r.checkers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.checkers[name] = checker
	r.logger.Debug("注册健康检查器", "name", name)
}

// UnregisterChecker 注销健康检查器
func (r *CheckerRegistry) UnregisterChecker(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.checkers[name]; !exists {
		return
	}
	delete(r.checkers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Debug("注销健康检查器", "name", name)
}

// GetChecker 获取健康检查器
func (r *CheckerRegistry) GetChecker(name string) (Checker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	checker, ok := r.checkers[name]
	return checker, ok
}

// ListCheckers 按注册顺序列出所有检查器
func (r *CheckerRegistry) ListCheckers() []Checker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	checkers := make([]Checker, 0, len(r.checkers))
	for _, name := range r.order {
		checkers = append(checkers, r.checkers[name])
	}
	return checkers
}

// Count 返回检查器数量
func (r *CheckerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.checkers)
}

// RunChecks 按注册顺序运行所有检查并聚合整体状态
func (r *CheckerRegistry) RunChecks(ctx context.Context) *Snapshot {
	start := time.Now()
	results := make([]CheckResult, 0, r.Count())
	for _, checker := range r.ListCheckers() {
		results = append(results, r.runOne(ctx, checker))
	}

	return &Snapshot{
		Overall:   Aggregate(results),
		Results:   results,
		Timestamp: start,
		Duration:  time.Since(start),
	}
}

// RunCheck 运行指定名称的检查
func (r *CheckerRegistry) RunCheck(ctx context.Context, name string) (CheckResult, bool) {
	checker, ok := r.GetChecker(name)
	if !ok {
		return CheckResult{
			Name:        name,
			Status:      StatusUnknown,
			Message:     "检查器不存在",
			LastChecked: time.Now(),
		}, false
	}
	return r.runOne(ctx, checker), true
}

func (r *CheckerRegistry) runOne(ctx context.Context, checker Checker) CheckResult {
	start := time.Now()
	result := checker.Check(ctx)
	result.Name = checker.Name()
	result.LastChecked = start
	result.CheckDuration = time.Since(start)
	if result.Status == "" {
		result.Status = StatusUnknown
	}

	r.logger.Debug("健康检查完成",
		"name", result.Name,
		"status", string(result.Status),
		"duration", result.CheckDuration.String(),
	)
	return result
}

// Aggregate 聚合整体状态：任一不健康即不健康，否则任一降级即降级
func Aggregate(results []CheckResult) Status {
	if len(results) == 0 {
		return StatusUnknown
	}

	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusUnknown:
			overall = StatusDegraded
		}
	}
	return overall
}

// SortResults 按名称排序检查结果，用于稳定输出
func SortResults(results []CheckResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})
}
