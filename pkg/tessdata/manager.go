package tessdata

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/events"
)

// EnsureResult 描述一次语言数据保障的结果
type EnsureResult struct {
	Language   string `json:"language"`
	Path       string `json:"path"`
	Tier       Tier   `json:"tier"`
	Size       int64  `json:"size"`
	Downloaded bool   `json:"downloaded"`
}

// Manager 训练数据管理器，组合数据源、目录解析与下载器
type Manager struct {
	logger     hclog.Logger
	source     *Source
	store      *Store
	downloader *Downloader
	events     *events.EventManager
}

// ManagerOption 管理器配置选项
type ManagerOption func(*Manager)

// WithEventManager 设置事件管理器，下载进度通过事件发布
func WithEventManager(em *events.EventManager) ManagerOption {
	return func(m *Manager) {
		m.events = em
	}
}

// NewManager 创建一个训练数据管理器
func NewManager(logger hclog.Logger, source *Source, store *Store, downloader *Downloader, options ...ManagerOption) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	m := &Manager{
		logger:     logger,
		source:     source,
		store:      store,
		downloader: downloader,
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// Store 返回管理器使用的目录管理器
func (m *Manager) Store() *Store {
	return m.store
}

// Source 返回管理器使用的数据源
func (m *Manager) Source() *Source {
	return m.source
}

// EnsureLanguage 确保语言训练数据就绪：已存在则跳过，否则下载。
// 重复调用不会产生网络请求
func (m *Manager) EnsureLanguage(ctx context.Context, lang string) (*EnsureResult, error) {
	if err := validateLanguage(lang); err != nil {
		return nil, err
	}

	path, err := m.store.PathFor(ctx, lang)
	if err != nil {
		return nil, err
	}

	result := &EnsureResult{
		Language: lang,
		Path:     path,
		Tier:     m.source.Tier(),
	}

	exists, err := m.store.Has(ctx, lang)
	if err != nil {
		return nil, err
	}
	if exists {
		info, statErr := os.Stat(path)
		if statErr == nil {
			result.Size = info.Size()
		}
		// 文件来自早前下载时以当时记录的层级为准
		if recorded, recErr := m.store.TierFor(ctx, lang); recErr == nil && recorded != "" {
			result.Tier = recorded
		}
		m.logger.Info("训练数据已存在，跳过下载", "language", lang, "path", path)
		return result, nil
	}

	url := m.source.URLForLanguage(lang)
	m.publish(events.TypeDownloadStarted, fmt.Sprintf("开始下载 %s 训练数据", lang), map[string]interface{}{
		"language": lang,
		"tier":     string(m.source.Tier()),
		"url":      url,
	})

	if err := m.downloader.Download(ctx, url, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeDataInvalid,
			"下载完成但无法读取文件信息")
	}

	result.Size = info.Size()
	result.Downloaded = true

	if err := m.store.RecordTier(ctx, lang, m.source.Tier()); err != nil {
		// 记录失败不影响数据可用性
		m.logger.Warn("写入层级记录失败", "language", lang, "error", err)
	}

	m.publish(events.TypeDownloadFinished, fmt.Sprintf("%s 训练数据下载完成", lang), map[string]interface{}{
		"language": lang,
		"path":     path,
		"size":     info.Size(),
	})

	return result, nil
}

// EnsureLanguages 依次保障多个语言的训练数据，任一失败即中止
func (m *Manager) EnsureLanguages(ctx context.Context, langs []string) ([]*EnsureResult, error) {
	results := make([]*EnsureResult, 0, len(langs))
	for _, lang := range langs {
		result, err := m.EnsureLanguage(ctx, lang)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Verify 检查多个语言的训练数据是否全部就绪，返回缺失的语言列表
func (m *Manager) Verify(ctx context.Context, langs []string) ([]string, error) {
	var missing []string
	for _, lang := range langs {
		if err := validateLanguage(lang); err != nil {
			return nil, err
		}
		exists, err := m.store.Has(ctx, lang)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing = append(missing, lang)
		}
	}
	return missing, nil
}

func (m *Manager) publish(eventType, message string, data map[string]interface{}) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(eventType, "tessdata", message, data); err != nil {
		m.logger.Warn("发布事件失败", "type", eventType, "error", err)
	}
}

// validateLanguage 校验语言代码，防止路径穿越
func validateLanguage(lang string) error {
	if lang == "" {
		return errors.New(errors.ErrorTypeValidation, errors.CodeDataInvalid, "语言代码不能为空")
	}
	if strings.ContainsAny(lang, `/\`) || strings.Contains(lang, "..") {
		return errors.Newf(errors.ErrorTypeValidation, errors.CodeDataInvalid,
			"语言代码包含非法字符: %s", lang)
	}
	return nil
}
