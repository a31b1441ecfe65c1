package system

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// MetricsCollector 系统指标收集器，定时采样并缓存最近一次结果
type MetricsCollector struct {
	logger   hclog.Logger
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	metrics  map[string]interface{}
	mu       sync.RWMutex
	monitor  *Monitor
}

// NewMetricsCollector 创建一个新的系统指标收集器
func NewMetricsCollector(logger hclog.Logger, monitor *Monitor, interval time.Duration) *MetricsCollector {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &MetricsCollector{
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
		metrics:  make(map[string]interface{}),
		monitor:  monitor,
	}
}

// Start 开始收集系统指标
func (mc *MetricsCollector) Start() {
	mc.logger.Debug("开始收集系统指标", "interval", mc.interval)

	// 立即收集一次指标
	mc.collect()

	go func() {
		ticker := time.NewTicker(mc.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mc.collect()
			case <-mc.stopChan:
				mc.logger.Debug("停止收集系统指标")
				return
			}
		}
	}()
}

// Stop 停止收集系统指标
func (mc *MetricsCollector) Stop() {
	mc.stopOnce.Do(func() {
		close(mc.stopChan)
	})
}

// collect 收集一次系统指标并缓存
func (mc *MetricsCollector) collect() {
	metrics := mc.monitor.Metrics()

	mc.mu.Lock()
	mc.metrics = metrics
	mc.mu.Unlock()
}

// GetMetrics 获取最近一次收集的系统指标
func (mc *MetricsCollector) GetMetrics() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	// 复制一份，避免调用方修改缓存
	snapshot := make(map[string]interface{}, len(mc.metrics))
	for k, v := range mc.metrics {
		snapshot[k] = v
	}
	return snapshot
}
