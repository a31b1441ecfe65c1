package config

import (
	"fmt"
	"time"
)

// Config LDG应用配置
type Config struct {
	Log        LogConfig       `yaml:"log" json:"log"`
	Engine     EngineConfig    `yaml:"engine" json:"engine"`
	Data       DataConfig      `yaml:"data" json:"data"`
	Provision  ProvisionConfig `yaml:"provision" json:"provision"`
	Validation ValidateConfig  `yaml:"validate" json:"validate"`
	Report     ReportConfig    `yaml:"report" json:"report"`
	Console    ConsoleConfig   `yaml:"console" json:"console"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // trace/debug/info/warn/error
	Format string `yaml:"format" json:"format"` // text/json
	Output string `yaml:"output" json:"output"` // stdout/stderr/file
	File   string `yaml:"file" json:"file"`     // output为file时的日志路径
}

// EngineConfig OCR引擎配置
type EngineConfig struct {
	Type                    string        `yaml:"type" json:"type"`                                           // exec（命令行）或 gosseract（进程内，需对应构建）
	Binary                  string        `yaml:"binary" json:"binary"`                                       // tesseract可执行文件，空时按PATH查找
	Renderer                string        `yaml:"renderer" json:"renderer"`                                   // PDF渲染器可执行文件，空时按平台选择gs/gswin64c
	Languages               []string      `yaml:"languages" json:"languages"`                                 // 识别语言，顺序即-l参数顺序
	DPI                     int           `yaml:"dpi" json:"dpi"`                                             // PDF渲染分辨率
	PSM                     int           `yaml:"psm" json:"psm"`                                             // 页面分割模式
	OEM                     int           `yaml:"oem" json:"oem"`                                             // 引擎模式
	PreserveInterwordSpaces bool          `yaml:"preserve_interword_spaces" json:"preserve_interword_spaces"` // 韩文文档保留词间空格
	Timeout                 time.Duration `yaml:"timeout" json:"timeout"`                                     // 单次识别超时
	MinVersion              string        `yaml:"min_version" json:"min_version"`                             // 引擎最低版本约束
}

// DataConfig 语言数据配置
type DataConfig struct {
	Tier       string        `yaml:"tier" json:"tier"`               // fast/best，决定traineddata下载源
	Dir        string        `yaml:"dir" json:"dir"`                 // 显式数据目录，空时按平台解析
	BaseURL    string        `yaml:"base_url" json:"base_url"`       // 下载源覆盖，空时使用tier对应的官方源
	MinSize    int64         `yaml:"min_size" json:"min_size"`       // 数据文件最小字节数，防止错误页落盘
	RateLimit  int64         `yaml:"rate_limit" json:"rate_limit"`   // 下载限速（字节/秒），0为不限速
	MaxRetries int           `yaml:"max_retries" json:"max_retries"` // 下载最大重试次数
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"` // 下载重试初始延迟
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`         // 单次下载超时
}

// ProvisionConfig 环境准备配置
type ProvisionConfig struct {
	SkipEngine bool          `yaml:"skip_engine" json:"skip_engine"` // 跳过引擎安装，仅准备语言数据
	InstallLog string        `yaml:"install_log" json:"install_log"` // 安装输出日志路径，空时不落盘
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`         // 单个安装步骤超时
}

// ValidateConfig 真值校验配置
type ValidateConfig struct {
	Workers       int `yaml:"workers" json:"workers"`               // 并发识别数
	SnippetLength int `yaml:"snippet_length" json:"snippet_length"` // 不匹配时记录的OCR输出截断长度
}

// ReportConfig 报告输出配置
type ReportConfig struct {
	Dir string `yaml:"dir" json:"dir"` // 运行清单与报告目录
}

// ConsoleConfig 本地控制台配置
type ConsoleConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	AuthToken string `yaml:"auth_token" json:"auth_token"` // 空时不启用鉴权
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			File:   "logs/ldg.log",
		},
		Engine: EngineConfig{
			Type:                    "exec",
			Binary:                  "",
			Renderer:                "",
			Languages:               []string{"kor", "eng"},
			DPI:                     300,
			PSM:                     6,
			OEM:                     3,
			PreserveInterwordSpaces: true,
			Timeout:                 120 * time.Second,
			MinVersion:              ">= 4.0.0",
		},
		Data: DataConfig{
			Tier:       "best",
			Dir:        "",
			BaseURL:    "",
			MinSize:    1024 * 1024, // traineddata不会小于1MB
			RateLimit:  0,
			MaxRetries: 3,
			RetryDelay: 2 * time.Second,
			Timeout:    10 * time.Minute,
		},
		Provision: ProvisionConfig{
			SkipEngine: false,
			InstallLog: "",
			Timeout:    15 * time.Minute,
		},
		Validation: ValidateConfig{
			Workers:       2,
			SnippetLength: 200,
		},
		Report: ReportConfig{
			Dir: "reports",
		},
		Console: ConsoleConfig{
			Host:      "127.0.0.1",
			Port:      8315,
			AuthToken: "",
		},
	}
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("无效的日志级别: %s", c.Log.Level)
	}

	switch c.Data.Tier {
	case "fast", "best":
	default:
		return fmt.Errorf("无效的数据层级: %s（支持 fast/best）", c.Data.Tier)
	}

	switch c.Engine.Type {
	case "", "exec", "gosseract":
	default:
		return fmt.Errorf("无效的引擎类型: %s（支持 exec/gosseract）", c.Engine.Type)
	}

	if len(c.Engine.Languages) == 0 {
		return fmt.Errorf("识别语言列表不能为空")
	}
	if c.Engine.DPI < 72 || c.Engine.DPI > 1200 {
		return fmt.Errorf("无效的DPI: %d（范围 72-1200）", c.Engine.DPI)
	}
	if c.Engine.PSM < 0 || c.Engine.PSM > 13 {
		return fmt.Errorf("无效的PSM: %d（范围 0-13）", c.Engine.PSM)
	}
	if c.Engine.OEM < 0 || c.Engine.OEM > 3 {
		return fmt.Errorf("无效的OEM: %d（范围 0-3）", c.Engine.OEM)
	}

	if c.Validation.Workers < 1 {
		return fmt.Errorf("并发识别数必须大于0: %d", c.Validation.Workers)
	}
	if c.Validation.SnippetLength < 1 {
		return fmt.Errorf("截断长度必须大于0: %d", c.Validation.SnippetLength)
	}

	if c.Console.Port < 1 || c.Console.Port > 65535 {
		return fmt.Errorf("无效的控制台端口: %d", c.Console.Port)
	}

	return nil
}
