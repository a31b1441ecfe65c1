package tessdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/errors"
)

// linux 下 apt 安装的候选目录，按版本新旧排列
var aptCandidates = []string{
	"/usr/share/tesseract-ocr/5/tessdata",
	"/usr/share/tesseract-ocr/4.00/tessdata",
	"/usr/share/tessdata",
}

// darwin 下 Homebrew 的常见前缀，brew 不可用时回退探测
var brewFallbackPrefixes = []string{
	"/opt/homebrew",
	"/usr/local",
}

// tierRecordName 层级记录文件名，保存在训练数据目录内。
// 记录每个语言文件下载时的数据层级，目录外部安装的文件没有记录
const tierRecordName = "ldg-tiers.json"

// LanguageInfo 描述已安装的语言训练数据
type LanguageInfo struct {
	Language string    `json:"language"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Tier     Tier      `json:"tier,omitempty"`
}

// Store 负责解析平台训练数据目录并管理其中的语言文件
type Store struct {
	logger     hclog.Logger
	override   string
	goos       string
	getenv     func(string) string
	brewPrefix func(ctx context.Context) (string, error)

	mu       sync.RWMutex
	resolved string

	tierMu sync.RWMutex
}

// StoreOption 训练数据目录配置选项
type StoreOption func(*Store)

// WithDir 显式指定训练数据目录，跳过平台解析
func WithDir(dir string) StoreOption {
	return func(s *Store) {
		s.override = dir
	}
}

// WithGOOS 指定目标平台，测试用
func WithGOOS(goos string) StoreOption {
	return func(s *Store) {
		s.goos = goos
	}
}

// WithGetenv 指定环境变量读取函数，测试用
func WithGetenv(getenv func(string) string) StoreOption {
	return func(s *Store) {
		s.getenv = getenv
	}
}

// WithBrewPrefix 指定 Homebrew 前缀探测函数，测试用
func WithBrewPrefix(fn func(ctx context.Context) (string, error)) StoreOption {
	return func(s *Store) {
		s.brewPrefix = fn
	}
}

// NewStore 创建一个训练数据目录管理器
func NewStore(logger hclog.Logger, options ...StoreOption) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Store{
		logger: logger,
		goos:   runtime.GOOS,
		getenv: os.Getenv,
	}
	s.brewPrefix = defaultBrewPrefix

	for _, option := range options {
		option(s)
	}

	return s
}

// defaultBrewPrefix 执行 brew --prefix 获取 Homebrew 安装前缀
func defaultBrewPrefix(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "brew", "--prefix").Output()
	if err != nil {
		return "", fmt.Errorf("执行 brew --prefix 失败: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Resolve 解析训练数据目录，结果在首次成功后缓存
func (s *Store) Resolve(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.resolved != "" {
		dir := s.resolved
		s.mu.RUnlock()
		return dir, nil
	}
	s.mu.RUnlock()

	dir, err := s.resolve(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.resolved = dir
	s.mu.Unlock()

	s.logger.Debug("已解析训练数据目录", "dir", dir)
	return dir, nil
}

func (s *Store) resolve(ctx context.Context) (string, error) {
	// 显式配置优先
	if s.override != "" {
		return s.override, nil
	}

	// TESSDATA_PREFIX 次之；4.x 之后该变量直接指向 tessdata 目录，
	// 旧版本指向其父目录，两种写法都接受
	if prefix := s.getenv("TESSDATA_PREFIX"); prefix != "" {
		if filepath.Base(prefix) != "tessdata" {
			nested := filepath.Join(prefix, "tessdata")
			if dirExists(nested) {
				return nested, nil
			}
		}
		return prefix, nil
	}

	switch s.goos {
	case "darwin":
		return s.resolveDarwin(ctx)
	case "windows":
		return s.resolveWindows()
	default:
		return s.resolveLinux()
	}
}

func (s *Store) resolveDarwin(ctx context.Context) (string, error) {
	if prefix, err := s.brewPrefix(ctx); err == nil && prefix != "" {
		return filepath.Join(prefix, "share", "tessdata"), nil
	} else if err != nil {
		s.logger.Debug("Homebrew 前缀探测失败，回退到常见目录", "error", err)
	}

	for _, prefix := range brewFallbackPrefixes {
		dir := filepath.Join(prefix, "share", "tessdata")
		if dirExists(dir) {
			return dir, nil
		}
	}

	return "", errors.New(errors.ErrorTypePermanent, errors.CodeDataDirUnresolved,
		"无法解析训练数据目录：brew 不可用且常见目录不存在，可通过 data.dir 或 TESSDATA_PREFIX 指定")
}

func (s *Store) resolveLinux() (string, error) {
	for _, dir := range aptCandidates {
		if dirExists(dir) {
			return dir, nil
		}
	}

	return "", errors.Newf(errors.ErrorTypePermanent, errors.CodeDataDirUnresolved,
		"无法解析训练数据目录：候选目录均不存在 (%s)，请先安装 tesseract-ocr 或通过 data.dir 指定",
		strings.Join(aptCandidates, ", "))
}

func (s *Store) resolveWindows() (string, error) {
	programFiles := s.getenv("ProgramFiles")
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}
	return filepath.Join(programFiles, "Tesseract-OCR", "tessdata"), nil
}

// PathFor 返回语言训练数据的目标路径
func (s *Store) PathFor(ctx context.Context, lang string) (string, error) {
	dir, err := s.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName(lang)), nil
}

// Has 检查语言训练数据是否已存在且非空
func (s *Store) Has(ctx context.Context, lang string) (bool, error) {
	path, err := s.PathFor(ctx, lang)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("检查训练数据文件失败: %w", err)
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}

// Installed 列出已安装的语言训练数据
func (s *Store) Installed(ctx context.Context) ([]LanguageInfo, error) {
	dir, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取训练数据目录失败: %w", err)
	}

	s.tierMu.RLock()
	tiers := readTierRecords(dir)
	s.tierMu.RUnlock()

	var installed []LanguageInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".traineddata") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("读取训练数据文件信息失败", "file", entry.Name(), "error", err)
			continue
		}

		lang := strings.TrimSuffix(entry.Name(), ".traineddata")
		installed = append(installed, LanguageInfo{
			Language: lang,
			Path:     filepath.Join(dir, entry.Name()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Tier:     tiers[lang],
		})
	}

	sort.Slice(installed, func(i, j int) bool {
		return installed[i].Language < installed[j].Language
	})

	return installed, nil
}

// RecordTier 记录语言训练数据的下载层级，下载完成后由管理器调用
func (s *Store) RecordTier(ctx context.Context, lang string, tier Tier) error {
	dir, err := s.Resolve(ctx)
	if err != nil {
		return err
	}

	s.tierMu.Lock()
	defer s.tierMu.Unlock()

	records := readTierRecords(dir)
	records[lang] = tier

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化层级记录失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tierRecordName), data, 0o644); err != nil {
		return fmt.Errorf("写入层级记录失败: %w", err)
	}
	return nil
}

// TierFor 返回语言训练数据的下载层级，未记录时为空
func (s *Store) TierFor(ctx context.Context, lang string) (Tier, error) {
	dir, err := s.Resolve(ctx)
	if err != nil {
		return "", err
	}

	s.tierMu.RLock()
	defer s.tierMu.RUnlock()
	return readTierRecords(dir)[lang], nil
}

// readTierRecords 读取层级记录，文件缺失或损坏时按空记录处理，
// 后续写入会覆盖
func readTierRecords(dir string) map[string]Tier {
	records := make(map[string]Tier)

	data, err := os.ReadFile(filepath.Join(dir, tierRecordName))
	if err != nil {
		return records
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return make(map[string]Tier)
	}
	return records
}

// Remove 删除语言训练数据
func (s *Store) Remove(ctx context.Context, lang string) error {
	path, err := s.PathFor(ctx, lang)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Newf(errors.ErrorTypeNotFound, errors.CodeDataInvalid,
				"训练数据不存在: %s", path)
		}
		return fmt.Errorf("删除训练数据失败: %w", err)
	}

	s.logger.Info("已删除训练数据", "language", lang, "path", path)
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
