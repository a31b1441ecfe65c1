package system

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Monitor 系统监控器，负责收集主机与运行时信息
type Monitor struct {
	logger    hclog.Logger
	version   string
	startTime time.Time
	mu        sync.RWMutex
}

// NewMonitor 创建一个新的系统监控器
func NewMonitor(logger hclog.Logger, version string) *Monitor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Monitor{
		logger:    logger,
		version:   version,
		startTime: time.Now(),
	}
}

// Metrics 获取系统指标
func (m *Monitor) Metrics() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := make(map[string]interface{})

	// 获取CPU使用率
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		m.logger.Error("获取CPU使用率失败", "error", err)
	} else if len(cpuPercent) > 0 {
		metrics["cpu_usage"] = cpuPercent[0]
	}

	// 获取内存使用率
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		m.logger.Error("获取内存信息失败", "error", err)
	} else {
		metrics["memory_usage"] = memInfo.UsedPercent
	}

	// 获取磁盘使用率
	diskInfo, err := disk.Usage("/")
	if err != nil {
		m.logger.Error("获取磁盘信息失败", "error", err)
	} else {
		metrics["disk_usage"] = diskInfo.UsedPercent
	}

	metrics["goroutines"] = runtime.NumGoroutine()
	metrics["timestamp"] = time.Now().Format(time.RFC3339)

	return metrics
}

// Status 获取系统状态
func (m *Monitor) Status() map[string]interface{} {
	status := make(map[string]interface{})

	// 获取主机信息
	hostInfo, err := host.Info()
	if err != nil {
		m.logger.Error("获取主机信息失败", "error", err)
	} else {
		status["host"] = map[string]interface{}{
			"hostname":         hostInfo.Hostname,
			"platform":         hostInfo.Platform,
			"platform_version": hostInfo.PlatformVersion,
			"uptime":           fmt.Sprintf("%d小时%d分钟", hostInfo.Uptime/3600, (hostInfo.Uptime%3600)/60),
		}
	}

	// 获取应用信息
	appUptime := int(time.Since(m.startTime).Seconds())
	status["app"] = map[string]interface{}{
		"version":    m.version,
		"start_time": m.startTime.Format(time.RFC3339),
		"uptime":     fmt.Sprintf("%d小时%d分钟", appUptime/3600, (appUptime%3600)/60),
	}

	// 获取运行时信息
	status["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"go_os":      runtime.GOOS,
		"go_arch":    runtime.GOARCH,
		"cpu_cores":  runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
	}

	status["timestamp"] = time.Now().Format(time.RFC3339)

	return status
}

// DiskUsage 获取指定路径所在磁盘的使用情况
func (m *Monitor) DiskUsage(path string) (*disk.UsageStat, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("获取磁盘使用情况失败: %w", err)
	}
	return usage, nil
}

// Hostname 获取主机名
func (m *Monitor) Hostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		m.logger.Error("获取主机名失败", "error", err)
		return "unknown"
	}
	return hostname
}
