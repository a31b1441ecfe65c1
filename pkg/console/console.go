package console

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/events"
	"github.com/lomehong/ldg/pkg/health"
	"github.com/lomehong/ldg/pkg/ocr"
	"github.com/lomehong/ldg/pkg/report"
	"github.com/lomehong/ldg/pkg/system"
	"github.com/lomehong/ldg/pkg/tessdata"
)

// Sources 控制台各API的数据来源
type Sources struct {
	// Health 健康检查注册表，/api/health
	Health *health.CheckerRegistry
	// Monitor 主机状态采集器，/api/status
	Monitor *system.Monitor
	// Metrics 周期指标收集器，/api/metrics
	Metrics *system.MetricsCollector
	// Data 训练数据管理器，/api/status 中的语言数据信息
	Data *tessdata.Manager
	// Runs 运行记录存储，/api/runs
	Runs *report.Store
	// Events 事件管理器，/api/events
	Events *events.EventManager
	// Engine OCR引擎，/api/status 中的引擎信息
	Engine ocr.Engine
}

// Console 本地运行控制台，通过HTTP暴露健康状态、运行记录与事件
type Console struct {
	config  Config
	sources Sources

	server *http.Server
	engine *gin.Engine
	logger hclog.Logger

	mu          sync.RWMutex
	initialized bool
	started     bool
}

// NewConsole 创建一个新的控制台
func NewConsole(logger hclog.Logger, config Config, sources Sources) (*Console, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("无效的控制台配置: %w", err)
	}

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	// 设置Gin模式
	if config.LogLevel == "debug" || config.LogLevel == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	console := &Console{
		config:  config,
		sources: sources,
		engine:  gin.New(),
		logger:  logger,
	}

	return console, nil
}

// Init 初始化控制台，设置中间件与路由
func (c *Console) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return fmt.Errorf("控制台已初始化")
	}

	c.logger.Info("初始化控制台")

	c.setupMiddleware()
	c.setupRoutes()

	c.server = &http.Server{
		Addr:    c.config.GetAddress(),
		Handler: c.engine,
	}

	c.initialized = true
	return nil
}

// Start 启动控制台
func (c *Console) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return fmt.Errorf("控制台未初始化")
	}
	if c.started {
		return fmt.Errorf("控制台已启动")
	}

	c.logger.Info("启动控制台", "address", c.config.GetAddress(), "auth", c.config.AuthToken != "")

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("控制台启动失败", "error", err)
		}
	}()

	c.started = true
	return nil
}

// Stop 停止控制台
func (c *Console) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	c.logger.Info("停止控制台")

	shutdownCtx, cancel := context.WithTimeout(ctx, c.config.ShutdownTimeout)
	defer cancel()

	if err := c.server.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("控制台关闭失败", "error", err)
		return fmt.Errorf("控制台关闭失败: %w", err)
	}

	c.started = false
	c.logger.Info("控制台已停止")
	return nil
}

// Handler 返回HTTP处理器，测试时直接驱动
func (c *Console) Handler() http.Handler {
	return c.engine
}

// setupMiddleware 设置中间件
func (c *Console) setupMiddleware() {
	c.engine.Use(gin.Recovery())
	c.engine.Use(c.requestIDMiddleware())
	c.engine.Use(c.corsMiddleware())

	if c.config.AuthToken != "" {
		c.engine.Use(c.authMiddleware())
	}
}

// setupRoutes 设置路由
func (c *Console) setupRoutes() {
	api := c.engine.Group("/api")
	{
		api.GET("/ping", c.ping)
		api.GET("/health", c.getHealth)
		api.GET("/status", c.getStatus)
		api.GET("/metrics", c.getMetrics)
		api.GET("/runs", c.getRuns)
		api.GET("/runs/:id", c.getRun)
		api.GET("/events", c.getEvents)
	}

	c.engine.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{
			"error": "API not found",
			"path":  ctx.Request.URL.Path,
		})
	})

	for _, route := range c.engine.Routes() {
		c.logger.Debug("路由", "method", route.Method, "path", route.Path)
	}
}
