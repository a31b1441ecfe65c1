package console

import (
	"fmt"
	"time"

	"github.com/lomehong/ldg/pkg/config"
)

// Config Web控制台配置
type Config struct {
	// Host 监听地址，默认仅本机
	Host string
	// Port 监听端口
	Port int
	// AuthToken 访问令牌，空时不启用鉴权
	AuthToken string
	// ShutdownTimeout 优雅关闭超时
	ShutdownTimeout time.Duration
	// LogLevel 控制Gin运行模式，debug时输出路由日志
	LogLevel string
}

// DefaultConfig 默认控制台配置
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            8315,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
	}
}

// FromAppConfig 由应用配置构建控制台配置
func FromAppConfig(cfg config.ConsoleConfig, logLevel string) Config {
	c := DefaultConfig()
	if cfg.Host != "" {
		c.Host = cfg.Host
	}
	if cfg.Port > 0 {
		c.Port = cfg.Port
	}
	c.AuthToken = cfg.AuthToken
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	return c
}

// GetAddress 返回监听地址
func (c Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate 校验配置合法性
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("监听地址不能为空")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("无效的监听端口: %d", c.Port)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("关闭超时必须大于0: %v", c.ShutdownTimeout)
	}
	return nil
}
