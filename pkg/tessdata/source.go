package tessdata

import (
	"fmt"
	"strings"
)

// Tier 表示训练数据的质量层级
type Tier string

// 预定义质量层级
const (
	TierFast Tier = "fast" // 速度优先，模型体积小
	TierBest Tier = "best" // 精度优先，模型体积大
)

// 各层级对应的上游数据源
const (
	fastBaseURL = "https://raw.githubusercontent.com/tesseract-ocr/tessdata/main"
	bestBaseURL = "https://raw.githubusercontent.com/tesseract-ocr/tessdata_best/main"
)

// ParseTier 解析质量层级字符串
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFast:
		return TierFast, nil
	case TierBest:
		return TierBest, nil
	default:
		return "", fmt.Errorf("无效的数据层级: %s (支持 fast, best)", s)
	}
}

// FileName 返回语言对应的训练数据文件名
func FileName(lang string) string {
	return lang + ".traineddata"
}

// Source 表示训练数据的下载源
type Source struct {
	tier    Tier
	baseURL string
}

// SourceOption 下载源配置选项
type SourceOption func(*Source)

// WithBaseURL 覆盖默认的上游地址，用于镜像或测试
func WithBaseURL(baseURL string) SourceOption {
	return func(s *Source) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewSource 创建一个训练数据下载源
func NewSource(tier Tier, options ...SourceOption) *Source {
	s := &Source{tier: tier}

	switch tier {
	case TierFast:
		s.baseURL = fastBaseURL
	default:
		s.baseURL = bestBaseURL
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// Tier 返回数据源的质量层级
func (s *Source) Tier() Tier {
	return s.tier
}

// BaseURL 返回数据源的基础地址
func (s *Source) BaseURL() string {
	return s.baseURL
}

// URLForLanguage 返回语言训练数据的完整下载地址
func (s *Source) URLForLanguage(lang string) string {
	return s.baseURL + "/" + FileName(lang)
}
