package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// 配置文件与环境变量约定
const (
	EnvPrefix       = "LDG"
	DefaultFileName = "ldg"
	DefaultFileType = "yaml"
)

// ChangeListener 配置变更监听器
type ChangeListener func(oldConfig, newConfig *Config) error

// Manager 配置管理器，基于viper并支持文件变更热加载
type Manager struct {
	v          *viper.Viper
	configFile string
	logger     hclog.Logger
	watcher    *fsnotify.Watcher
	listeners  []ChangeListener
	current    *Config
	mu         sync.RWMutex
	watchOnce  sync.Once
	stopCh     chan struct{}
}

// ManagerOption 配置管理器选项
type ManagerOption func(*Manager)

// WithConfigFile 设置配置文件路径
func WithConfigFile(path string) ManagerOption {
	return func(m *Manager) {
		m.configFile = path
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger hclog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithChangeListener 添加配置变更监听器
func WithChangeListener(listener ChangeListener) ManagerOption {
	return func(m *Manager) {
		m.listeners = append(m.listeners, listener)
	}
}

// NewManager 创建一个新的配置管理器
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		v:      viper.New(),
		logger: hclog.NewNullLogger(),
		stopCh: make(chan struct{}),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// Load 加载配置：默认值 -> 配置文件 -> 环境变量
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 设置默认值
	for k, v := range defaultSettings() {
		m.v.SetDefault(k, v)
	}

	// 环境变量覆盖，LDG_DATA_TIER 对应 data.tier
	m.v.SetEnvPrefix(EnvPrefix)
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.AutomaticEnv()

	if m.configFile != "" {
		m.v.SetConfigFile(m.configFile)
	} else {
		m.v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			m.v.AddConfigPath(filepath.Join(homeDir, ".ldg"))
		}
		m.v.SetConfigName(DefaultFileName)
		m.v.SetConfigType(DefaultFileType)
	}

	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// 搜索路径中没有配置文件时按默认值运行
			m.logger.Debug("未找到配置文件，使用默认配置")
		} else if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("配置文件不存在: %s", m.configFile)
		} else {
			return fmt.Errorf("无法读取配置文件: %w", err)
		}
	} else {
		m.logger.Debug("已加载配置文件", "path", m.v.ConfigFileUsed())
	}

	config, err := m.decode()
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	m.current = config
	return nil
}

// decode 将viper设置解码为类型化配置
func (m *Manager) decode() (*Config, error) {
	config := DefaultConfig()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           config,
		WeaklyTypedInput: true,
		TagName:          "yaml",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("创建解码器失败: %w", err)
	}

	if err := decoder.Decode(m.v.AllSettings()); err != nil {
		return nil, fmt.Errorf("解码配置失败: %w", err)
	}

	return config, nil
}

// Config 获取当前配置
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return DefaultConfig()
	}
	return m.current
}

// Set 设置配置值，用于命令行参数覆盖
func (m *Manager) Set(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.v.Set(key, value)
	config, err := m.decode()
	if err != nil {
		m.logger.Error("应用配置覆盖失败", "key", key, "error", err)
		return
	}
	m.current = config
}

// Get 获取配置值
func (m *Manager) Get(key string) interface{} {
	return m.v.Get(key)
}

// GetString 获取字符串配置
func (m *Manager) GetString(key string) string {
	return m.v.GetString(key)
}

// GetBool 获取布尔配置
func (m *Manager) GetBool(key string) bool {
	return m.v.GetBool(key)
}

// GetInt 获取整数配置
func (m *Manager) GetInt(key string) int {
	return m.v.GetInt(key)
}

// GetDuration 获取时间间隔配置
func (m *Manager) GetDuration(key string) time.Duration {
	return m.v.GetDuration(key)
}

// AllSettings 获取所有配置
func (m *Manager) AllSettings() map[string]interface{} {
	return m.v.AllSettings()
}

// ConfigFileUsed 获取实际使用的配置文件路径
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// AddChangeListener 添加配置变更监听器
func (m *Manager) AddChangeListener(listener ChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Watch 监视配置文件变化并热加载
func (m *Manager) Watch() error {
	configFile := m.v.ConfigFileUsed()
	if configFile == "" {
		return fmt.Errorf("没有配置文件可监视")
	}

	var watchErr error
	m.watchOnce.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			watchErr = fmt.Errorf("创建文件监视器失败: %w", err)
			return
		}
		m.watcher = watcher

		if err := watcher.Add(configFile); err != nil {
			watcher.Close()
			m.watcher = nil
			watchErr = fmt.Errorf("监视配置文件失败: %w", err)
			return
		}

		go m.watchLoop()
		m.logger.Debug("开始监视配置文件", "path", configFile)
	})

	return watchErr
}

// watchLoop 处理文件变更事件
func (m *Manager) watchLoop() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				m.logger.Info("配置文件已修改", "path", event.Name)
				if err := m.Reload(); err != nil {
					m.logger.Error("重新加载配置失败", "error", err)
				}
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("配置监视器错误", "error", err)
		case <-m.stopCh:
			return
		}
	}
}

// Reload 重新加载配置并通知监听器
func (m *Manager) Reload() error {
	m.mu.RLock()
	oldConfig := m.current
	m.mu.RUnlock()

	m.mu.Lock()
	if err := m.v.ReadInConfig(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("无法读取配置文件: %w", err)
	}

	newConfig, err := m.decode()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if err := newConfig.Validate(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("配置无效: %w", err)
	}

	m.current = newConfig
	listeners := make([]ChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, listener := range listeners {
		if err := listener(oldConfig, newConfig); err != nil {
			m.logger.Error("配置变更监听器失败", "error", err)
		}
	}

	return nil
}

// Close 停止监视并释放资源
func (m *Manager) Close() error {
	close(m.stopCh)
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// WriteDefaultConfig 将默认配置写入文件
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("序列化默认配置失败: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// defaultSettings 返回viper默认值映射
func defaultSettings() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":                        def.Log.Level,
		"log.format":                       def.Log.Format,
		"log.output":                       def.Log.Output,
		"log.file":                         def.Log.File,
		"engine.type":                      def.Engine.Type,
		"engine.binary":                    def.Engine.Binary,
		"engine.renderer":                  def.Engine.Renderer,
		"engine.languages":                 def.Engine.Languages,
		"engine.dpi":                       def.Engine.DPI,
		"engine.psm":                       def.Engine.PSM,
		"engine.oem":                       def.Engine.OEM,
		"engine.preserve_interword_spaces": def.Engine.PreserveInterwordSpaces,
		"engine.timeout":                   def.Engine.Timeout,
		"engine.min_version":               def.Engine.MinVersion,
		"data.tier":                        def.Data.Tier,
		"data.dir":                         def.Data.Dir,
		"data.base_url":                    def.Data.BaseURL,
		"data.min_size":                    def.Data.MinSize,
		"data.rate_limit":                  def.Data.RateLimit,
		"data.max_retries":                 def.Data.MaxRetries,
		"data.retry_delay":                 def.Data.RetryDelay,
		"data.timeout":                     def.Data.Timeout,
		"provision.skip_engine":            def.Provision.SkipEngine,
		"provision.install_log":            def.Provision.InstallLog,
		"provision.timeout":                def.Provision.Timeout,
		"validate.workers":                 def.Validation.Workers,
		"validate.snippet_length":          def.Validation.SnippetLength,
		"report.dir":                       def.Report.Dir,
		"console.host":                     def.Console.Host,
		"console.port":                     def.Console.Port,
		"console.auth_token":               def.Console.AuthToken,
	}
}
