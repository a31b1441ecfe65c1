package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/rs/zerolog"
)

// LogLevel 日志级别
type LogLevel string

// 预定义日志级别
const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// LogFormat 日志格式
type LogFormat string

// 预定义日志格式
const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LogOutput 日志输出
type LogOutput string

// 预定义日志输出
const (
	LogOutputStdout LogOutput = "stdout"
	LogOutputStderr LogOutput = "stderr"
	LogOutputFile   LogOutput = "file"
)

// LogContextKey 日志上下文键
type LogContextKey string

// 预定义日志上下文键
const (
	LogContextKeyRunID     LogContextKey = "run_id"
	LogContextKeyRequestID LogContextKey = "request_id"
	LogContextKeyCommand   LogContextKey = "command"
)

// LogConfig 日志配置
type LogConfig struct {
	Level            LogLevel          // 日志级别
	Format           LogFormat         // 日志格式
	Output           LogOutput         // 日志输出
	FilePath         string            // 日志文件路径
	MaxSize          int64             // 日志文件最大大小（字节）
	MaxAge           time.Duration     // 日志文件最大保留时间
	MaxBackups       int               // 日志文件最大备份数量
	IncludeLocation  bool              // 是否包含代码位置
	IncludeTimestamp bool              // 是否包含时间戳
	TimeFormat       string            // 时间格式
	DefaultContext   map[string]string // 默认上下文
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:            LogLevelInfo,
		Format:           LogFormatText,
		Output:           LogOutputStderr,
		FilePath:         "logs/ldg.log",
		MaxSize:          50 * 1024 * 1024,   // 50MB
		MaxAge:           7 * 24 * time.Hour, // 7天
		MaxBackups:       5,
		IncludeLocation:  false,
		IncludeTimestamp: true,
		TimeFormat:       time.RFC3339,
		DefaultContext:   make(map[string]string),
	}
}

// Logger 日志记录器接口
type Logger interface {
	// 基本日志方法
	Trace(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})

	// 带上下文的日志方法
	WithContext(ctx context.Context) Logger
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger

	// 获取子日志记录器
	Named(name string) Logger

	// 设置日志级别
	SetLevel(level LogLevel)

	// 获取日志级别
	GetLevel() LogLevel

	// 获取原始日志记录器
	GetHCLogger() hclog.Logger
	GetZeroLogger() *zerolog.Logger

	// 关闭日志记录器
	Close() error
}

// EnhancedLogger 增强日志记录器，hclog为主、zerolog为结构化镜像
type EnhancedLogger struct {
	hcLogger   hclog.Logger
	zeroLogger *zerolog.Logger
	config     *LogConfig
	writer     io.Writer
	rotator    *LogRotator
	fields     map[string]interface{}
	mu         sync.RWMutex
}

// NewEnhancedLogger 创建一个新的增强日志记录器
func NewEnhancedLogger(config *LogConfig) (*EnhancedLogger, error) {
	if config == nil {
		config = DefaultLogConfig()
	}

	// 创建日志输出
	writer, rotator, err := createLogWriter(config)
	if err != nil {
		return nil, fmt.Errorf("创建日志输出失败: %w", err)
	}

	logger := newLoggerWithWriter(config, writer)
	logger.rotator = rotator
	return logger, nil
}

// newLoggerWithWriter 基于给定输出创建日志记录器，测试中直接注入缓冲区
func newLoggerWithWriter(config *LogConfig, writer io.Writer) *EnhancedLogger {
	// 创建zerolog日志记录器
	zeroLogger := zerolog.New(writer)
	if config.IncludeTimestamp {
		zeroLogger = zeroLogger.With().Timestamp().Logger()
	}
	zeroLogger = zeroLogger.Level(getZeroLogLevel(config.Level))
	zerolog.TimeFieldFormat = config.TimeFormat

	// 创建hclog日志记录器
	hcOptions := &hclog.LoggerOptions{
		Name:            "ldg",
		Level:           getHCLogLevel(config.Level),
		Output:          writer,
		IncludeLocation: config.IncludeLocation,
		TimeFormat:      config.TimeFormat,
	}
	if config.Format == LogFormatJSON {
		hcOptions.JSONFormat = true
	}
	hcLogger := hclog.New(hcOptions)

	logger := &EnhancedLogger{
		hcLogger:   hcLogger,
		zeroLogger: &zeroLogger,
		config:     config,
		writer:     writer,
		fields:     make(map[string]interface{}),
	}

	// 添加默认上下文
	for k, v := range config.DefaultContext {
		logger.fields[k] = v
	}

	return logger
}

// createLogWriter 创建日志输出
func createLogWriter(config *LogConfig) (io.Writer, *LogRotator, error) {
	var writer io.Writer
	var rotator *LogRotator

	switch config.Output {
	case LogOutputStdout:
		writer = os.Stdout
	case LogOutputStderr:
		writer = os.Stderr
	case LogOutputFile:
		dir := filepath.Dir(config.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		rotator = NewLogRotator(config.FilePath, config.MaxSize, config.MaxBackups, config.MaxAge)
		writer = rotator
	default:
		return nil, nil, fmt.Errorf("不支持的日志输出: %s", config.Output)
	}

	// 文本格式使用控制台友好输出
	if config.Format == LogFormatText && config.Output != LogOutputFile {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: config.TimeFormat,
		}
	}

	return writer, rotator, nil
}

// getZeroLogLevel 获取zerolog日志级别
func getZeroLogLevel(level LogLevel) zerolog.Level {
	switch level {
	case LogLevelTrace:
		return zerolog.TraceLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// getHCLogLevel 获取hclog日志级别
func getHCLogLevel(level LogLevel) hclog.Level {
	switch level {
	case LogLevelTrace:
		return hclog.Trace
	case LogLevelDebug:
		return hclog.Debug
	case LogLevelInfo:
		return hclog.Info
	case LogLevelWarn:
		return hclog.Warn
	case LogLevelError:
		return hclog.Error
	default:
		return hclog.Info
	}
}

// Trace 记录跟踪级别日志
func (l *EnhancedLogger) Trace(msg string, args ...interface{}) {
	l.log(LogLevelTrace, msg, args...)
}

// Debug 记录调试级别日志
func (l *EnhancedLogger) Debug(msg string, args ...interface{}) {
	l.log(LogLevelDebug, msg, args...)
}

// Info 记录信息级别日志
func (l *EnhancedLogger) Info(msg string, args ...interface{}) {
	l.log(LogLevelInfo, msg, args...)
}

// Warn 记录警告级别日志
func (l *EnhancedLogger) Warn(msg string, args ...interface{}) {
	l.log(LogLevelWarn, msg, args...)
}

// Error 记录错误级别日志
func (l *EnhancedLogger) Error(msg string, args ...interface{}) {
	l.log(LogLevelError, msg, args...)
}

// Fatal 记录致命级别日志并退出
func (l *EnhancedLogger) Fatal(msg string, args ...interface{}) {
	l.log(LogLevelFatal, msg, args...)
	os.Exit(1)
}

// log 记录日志
func (l *EnhancedLogger) log(level LogLevel, msg string, args ...interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// 使用hclog记录日志
	switch level {
	case LogLevelTrace:
		l.hcLogger.Trace(msg, args...)
	case LogLevelDebug:
		l.hcLogger.Debug(msg, args...)
	case LogLevelInfo:
		l.hcLogger.Info(msg, args...)
	case LogLevelWarn:
		l.hcLogger.Warn(msg, args...)
	case LogLevelError, LogLevelFatal:
		l.hcLogger.Error(msg, args...)
	}

	// 使用zerolog记录结构化日志
	event := l.getZeroLogEvent(level)
	if event == nil {
		return
	}

	for k, v := range l.fields {
		event = event.Interface(k, v)
	}

	if l.config.IncludeLocation {
		_, file, line, ok := runtime.Caller(2)
		if ok {
			event = event.Str("file", file).Int("line", line)
		}
	}

	// 参数按键值对追加
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			event = event.Interface(key, args[i+1])
		}
	}

	event.Msg(msg)
}

// getZeroLogEvent 获取zerolog事件
func (l *EnhancedLogger) getZeroLogEvent(level LogLevel) *zerolog.Event {
	switch level {
	case LogLevelTrace:
		return l.zeroLogger.Trace()
	case LogLevelDebug:
		return l.zeroLogger.Debug()
	case LogLevelInfo:
		return l.zeroLogger.Info()
	case LogLevelWarn:
		return l.zeroLogger.Warn()
	case LogLevelError, LogLevelFatal:
		return l.zeroLogger.Error()
	default:
		return nil
	}
}

// WithContext 创建带上下文的日志记录器
func (l *EnhancedLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}

	newLogger := l.clone()

	for _, key := range []LogContextKey{
		LogContextKeyRunID,
		LogContextKeyRequestID,
		LogContextKeyCommand,
	} {
		if value := ctx.Value(key); value != nil {
			newLogger.fields[string(key)] = value
		}
	}

	return newLogger
}

// WithField 创建带字段的日志记录器
func (l *EnhancedLogger) WithField(key string, value interface{}) Logger {
	newLogger := l.clone()
	newLogger.fields[key] = value
	return newLogger
}

// WithFields 创建带多个字段的日志记录器
func (l *EnhancedLogger) WithFields(fields map[string]interface{}) Logger {
	newLogger := l.clone()
	for k, v := range fields {
		newLogger.fields[k] = v
	}
	return newLogger
}

// Named 创建命名的日志记录器
func (l *EnhancedLogger) Named(name string) Logger {
	newLogger := l.clone()
	newLogger.hcLogger = l.hcLogger.Named(name)
	newZeroLogger := l.zeroLogger.With().Str("name", name).Logger()
	newLogger.zeroLogger = &newZeroLogger
	return newLogger
}

// SetLevel 设置日志级别
func (l *EnhancedLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.config.Level = level

	if hcLogger, ok := l.hcLogger.(interface{ SetLevel(level hclog.Level) }); ok {
		hcLogger.SetLevel(getHCLogLevel(level))
	}

	newZeroLogger := l.zeroLogger.Level(getZeroLogLevel(level))
	l.zeroLogger = &newZeroLogger
}

// GetLevel 获取日志级别
func (l *EnhancedLogger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Level
}

// GetHCLogger 获取hclog日志记录器
func (l *EnhancedLogger) GetHCLogger() hclog.Logger {
	return l.hcLogger
}

// GetZeroLogger 获取zerolog日志记录器
func (l *EnhancedLogger) GetZeroLogger() *zerolog.Logger {
	return l.zeroLogger
}

// Close 关闭日志记录器
func (l *EnhancedLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// clone 复制日志记录器
func (l *EnhancedLogger) clone() *EnhancedLogger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	fields := make(map[string]interface{})
	for k, v := range l.fields {
		fields[k] = v
	}

	return &EnhancedLogger{
		hcLogger:   l.hcLogger,
		zeroLogger: l.zeroLogger,
		config:     l.config,
		writer:     l.writer,
		rotator:    l.rotator,
		fields:     fields,
	}
}

// ParseLevel 解析日志级别字符串，未知值回退为info
func ParseLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return LogLevel(s)
	default:
		return LogLevelInfo
	}
}
