package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/provision"
	"github.com/lomehong/ldg/pkg/system"
	"github.com/lomehong/ldg/pkg/tessdata"
)

// NewEngineBinaryCheck 检查OCR引擎可执行文件是否可用
func NewEngineBinaryCheck(runner provision.CommandRunner, binary string) Checker {
	return NewSimpleChecker("engine-binary", "OCR引擎可执行文件", 5*time.Second,
		func(ctx context.Context) CheckResult {
			path, err := runner.LookPath(binary)
			if err != nil {
				return CheckResult{
					Status:  StatusUnhealthy,
					Message: fmt.Sprintf("未找到OCR引擎 %s，请运行 ldg provision", binary),
					Details: map[string]interface{}{"binary": binary},
					Error:   err,
				}
			}
			return CheckResult{
				Status:  StatusHealthy,
				Message: "OCR引擎已安装",
				Details: map[string]interface{}{"binary": binary, "path": path},
			}
		})
}

// NewEngineVersionCheck 执行版本命令并按最低版本约束校验
func NewEngineVersionCheck(runner provision.CommandRunner, binary string, minVersion string) Checker {
	return NewSimpleChecker("engine-version", "OCR引擎版本", 15*time.Second,
		func(ctx context.Context) CheckResult {
			result, err := runner.Run(ctx, binary, "--version")
			if err != nil {
				return CheckResult{
					Status:  StatusUnhealthy,
					Message: "引擎版本命令执行失败",
					Error:   err,
				}
			}

			raw := provision.ParseEngineVersion(result.Output)
			version, parseErr := semver.NewVersion(raw)
			if parseErr != nil {
				return CheckResult{
					Status:  StatusDegraded,
					Message: fmt.Sprintf("无法解析引擎版本: %q", raw),
					Details: map[string]interface{}{"raw": raw},
				}
			}

			constraint, constraintErr := semver.NewConstraint(minVersion)
			if constraintErr != nil {
				return CheckResult{
					Status:  StatusDegraded,
					Message: fmt.Sprintf("版本约束无效: %q", minVersion),
					Error:   constraintErr,
				}
			}

			details := map[string]interface{}{"version": version.String(), "min_version": minVersion}
			if !constraint.Check(version) {
				return CheckResult{
					Status:  StatusUnhealthy,
					Message: fmt.Sprintf("引擎版本 %s 低于要求 %s", version, minVersion),
					Details: details,
				}
			}
			return CheckResult{
				Status:  StatusHealthy,
				Message: fmt.Sprintf("引擎版本 %s 满足 %s", version, minVersion),
				Details: details,
			}
		})
}

// NewLanguageDataCheck 检查训练数据文件是否齐备
func NewLanguageDataCheck(manager *tessdata.Manager, languages []string) Checker {
	return NewSimpleChecker("language-data", "训练数据文件", 10*time.Second,
		func(ctx context.Context) CheckResult {
			dir, err := manager.Store().Resolve(ctx)
			if err != nil {
				return CheckResult{
					Status:  StatusUnhealthy,
					Message: "无法解析训练数据目录",
					Error:   err,
				}
			}

			missing, err := manager.Verify(ctx, languages)
			if err != nil {
				return CheckResult{
					Status:  StatusUnhealthy,
					Message: "训练数据检查失败",
					Details: map[string]interface{}{"dir": dir},
					Error:   err,
				}
			}

			details := map[string]interface{}{
				"dir":       dir,
				"languages": strings.Join(languages, ","),
			}
			// 带出每个语言文件的数据层级，区分盘上的 fast 与 best
			if installed, instErr := manager.Store().Installed(ctx); instErr == nil {
				var tiers []string
				for _, info := range installed {
					if info.Tier != "" {
						tiers = append(tiers, fmt.Sprintf("%s=%s", info.Language, info.Tier))
					}
				}
				if len(tiers) > 0 {
					details["tiers"] = strings.Join(tiers, ",")
				}
			}
			if len(missing) > 0 {
				details["missing"] = strings.Join(missing, ",")
				return CheckResult{
					Status:  StatusUnhealthy,
					Message: fmt.Sprintf("训练数据缺失: %s，请运行 ldg fetch", strings.Join(missing, ", ")),
					Details: details,
				}
			}
			return CheckResult{Status: StatusHealthy, Message: "训练数据齐备", Details: details}
		})
}

// NewEngineLanguagesCheck 检查引擎实际加载的语言列表。
// 数据文件存在但引擎未加载时通常是 TESSDATA_PREFIX 指向错误
func NewEngineLanguagesCheck(runner provision.CommandRunner, binary string, languages []string) Checker {
	return NewSimpleChecker("engine-languages", "引擎可用语言", 15*time.Second,
		func(ctx context.Context) CheckResult {
			result, err := runner.Run(ctx, binary, "--list-langs")
			if err != nil {
				return CheckResult{
					Status:  StatusDegraded,
					Message: "无法获取引擎语言列表",
					Error:   err,
				}
			}

			available := parseLanguageList(result.Output)
			var missing []string
			for _, lang := range languages {
				if !available[lang] {
					missing = append(missing, lang)
				}
			}

			details := map[string]interface{}{"available": len(available)}
			if len(missing) > 0 {
				details["missing"] = strings.Join(missing, ",")
				return CheckResult{
					Status:  StatusUnhealthy,
					Message: fmt.Sprintf("引擎未加载语言: %s，检查 TESSDATA_PREFIX 指向", strings.Join(missing, ", ")),
					Details: details,
				}
			}
			return CheckResult{Status: StatusHealthy, Message: "所需语言均已加载", Details: details}
		})
}

// parseLanguageList 解析 --list-langs 输出。
// 首行为说明文字，语言代码是不含空格的单个词
func parseLanguageList(output string) map[string]bool {
	langs := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.ContainsAny(line, " :") {
			continue
		}
		langs[line] = true
	}
	return langs
}

// NewRendererCheck 检查PDF渲染器。缺失仅降级，图片识别不受影响
func NewRendererCheck(runner provision.CommandRunner, renderer string) Checker {
	return NewSimpleChecker("pdf-renderer", "PDF渲染器", 5*time.Second,
		func(ctx context.Context) CheckResult {
			path, err := runner.LookPath(renderer)
			if err != nil {
				return CheckResult{
					Status:  StatusDegraded,
					Message: fmt.Sprintf("未找到 %s，PDF识别不可用（图片不受影响），请安装 Ghostscript", renderer),
					Details: map[string]interface{}{"renderer": renderer},
				}
			}
			return CheckResult{
				Status:  StatusHealthy,
				Message: "PDF渲染器已安装",
				Details: map[string]interface{}{"renderer": renderer, "path": path},
			}
		})
}

// NewDiskSpaceCheck 检查数据卷可用空间
func NewDiskSpaceCheck(monitor *system.Monitor, path string, minFreeBytes uint64) Checker {
	if path == "" {
		path = "."
	}
	if minFreeBytes == 0 {
		minFreeBytes = 200 << 20
	}
	return NewSimpleChecker("disk-space", "数据目录磁盘空间", 5*time.Second,
		func(ctx context.Context) CheckResult {
			usage, err := monitor.DiskUsage(path)
			if err != nil {
				return CheckResult{
					Status:  StatusDegraded,
					Message: "磁盘空间检查失败",
					Details: map[string]interface{}{"path": path},
					Error:   err,
				}
			}

			details := map[string]interface{}{
				"path":         path,
				"free_bytes":   usage.Free,
				"used_percent": fmt.Sprintf("%.1f%%", usage.UsedPercent),
			}
			if usage.Free < minFreeBytes {
				return CheckResult{
					Status:  StatusDegraded,
					Message: fmt.Sprintf("可用空间低于 %dMB", minFreeBytes>>20),
					Details: details,
				}
			}
			return CheckResult{Status: StatusHealthy, Message: "磁盘空间充足", Details: details}
		})
}

// NewDataSourceCheck 对训练数据源发HEAD请求探测可达性。
// 不可达仅降级，已下载的数据离线仍可使用
func NewDataSourceCheck(client *http.Client, source *tessdata.Source, probeLang string) Checker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if probeLang == "" {
		probeLang = "eng"
	}
	return NewSimpleChecker("data-source", "训练数据源可达性", 15*time.Second,
		func(ctx context.Context) CheckResult {
			url := source.URLForLanguage(probeLang)
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
			if err != nil {
				return CheckResult{Status: StatusDegraded, Message: "构造探测请求失败", Error: err}
			}

			resp, err := client.Do(req)
			if err != nil {
				return CheckResult{
					Status:  StatusDegraded,
					Message: "数据源不可达，已下载的数据仍可使用",
					Details: map[string]interface{}{"url": url},
					Error:   err,
				}
			}
			defer resp.Body.Close()

			details := map[string]interface{}{"url": url, "status": resp.StatusCode}
			if resp.StatusCode >= 400 {
				return CheckResult{
					Status:  StatusDegraded,
					Message: fmt.Sprintf("数据源返回 %d", resp.StatusCode),
					Details: details,
				}
			}
			return CheckResult{Status: StatusHealthy, Message: "数据源可达", Details: details}
		})
}

// DoctorConfig 标准检查集的参数
type DoctorConfig struct {
	Binary       string
	Renderer     string
	MinVersion   string
	Languages    []string
	DataPath     string
	MinFreeBytes uint64
	ProbeClient  *http.Client
}

// NewDoctorRegistry 注册 ldg doctor 的标准检查集
func NewDoctorRegistry(logger hclog.Logger, runner provision.CommandRunner, manager *tessdata.Manager, monitor *system.Monitor, cfg DoctorConfig) *CheckerRegistry {
	probeLang := "eng"
	if len(cfg.Languages) > 0 {
		probeLang = cfg.Languages[0]
	}

	registry := NewCheckerRegistry(logger)
	registry.RegisterChecker(NewEngineBinaryCheck(runner, cfg.Binary))
	registry.RegisterChecker(NewEngineVersionCheck(runner, cfg.Binary, cfg.MinVersion))
	registry.RegisterChecker(NewLanguageDataCheck(manager, cfg.Languages))
	registry.RegisterChecker(NewEngineLanguagesCheck(runner, cfg.Binary, cfg.Languages))
	registry.RegisterChecker(NewRendererCheck(runner, cfg.Renderer))
	registry.RegisterChecker(NewDiskSpaceCheck(monitor, cfg.DataPath, cfg.MinFreeBytes))
	registry.RegisterChecker(NewDataSourceCheck(cfg.ProbeClient, manager.Source(), probeLang))
	return registry
}
