package provision

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/events"
	"github.com/lomehong/ldg/pkg/tessdata"
)

// 环境准备步骤名称
const (
	StepDetectEngine   = "detect-engine"
	StepInstallEngine  = "install-engine"
	StepResolveDataDir = "resolve-data-dir"
	StepEnsureData     = "ensure-data"
	StepVerify         = "verify"
)

// StepStatus 步骤执行状态
type StepStatus string

// 预定义步骤状态
const (
	StepStatusOK      StepStatus = "ok"      // 执行成功
	StepStatusSkipped StepStatus = "skipped" // 无需执行
	StepStatusPlanned StepStatus = "planned" // 试运行，仅输出计划
	StepStatusFailed  StepStatus = "failed"  // 执行失败
)

// StepResult 单个步骤的执行结果
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Detail   string        `json:"detail"`
	Duration time.Duration `json:"duration"`
}

// Result 一次环境准备的完整结果
type Result struct {
	Steps         []StepResult            `json:"steps"`
	EnginePath    string                  `json:"engine_path,omitempty"`
	EngineVersion string                  `json:"engine_version,omitempty"`
	DataDir       string                  `json:"data_dir,omitempty"`
	Data          []*tessdata.EnsureResult `json:"data,omitempty"`
	Duration      time.Duration           `json:"duration"`
}

// Provisioner 环境准备器，按固定顺序执行各步骤，任一步骤失败立即中止
type Provisioner struct {
	logger       hclog.Logger
	runner       CommandRunner
	data         *tessdata.Manager
	events       *events.EventManager
	installer    Installer
	goos         string
	engineBinary string
	languages    []string
	skipEngine   bool
	dryRun       bool
	installLog   string
}

// ProvisionerOption 环境准备器配置选项
type ProvisionerOption func(*Provisioner)

// WithRunner 设置命令执行器
func WithRunner(runner CommandRunner) ProvisionerOption {
	return func(p *Provisioner) {
		p.runner = runner
	}
}

// WithGOOS 指定目标平台，测试用
func WithGOOS(goos string) ProvisionerOption {
	return func(p *Provisioner) {
		p.goos = goos
	}
}

// WithInstaller 显式指定安装器，跳过平台自动选择
func WithInstaller(installer Installer) ProvisionerOption {
	return func(p *Provisioner) {
		p.installer = installer
	}
}

// WithEventManager 设置事件管理器
func WithEventManager(em *events.EventManager) ProvisionerOption {
	return func(p *Provisioner) {
		p.events = em
	}
}

// WithEngineBinary 设置引擎可执行文件名
func WithEngineBinary(binary string) ProvisionerOption {
	return func(p *Provisioner) {
		if binary != "" {
			p.engineBinary = binary
		}
	}
}

// WithLanguages 设置需要保障的语言列表
func WithLanguages(languages []string) ProvisionerOption {
	return func(p *Provisioner) {
		if len(languages) > 0 {
			p.languages = languages
		}
	}
}

// WithSkipEngine 跳过引擎安装步骤
func WithSkipEngine(skip bool) ProvisionerOption {
	return func(p *Provisioner) {
		p.skipEngine = skip
	}
}

// WithDryRun 试运行，只输出计划不执行变更
func WithDryRun(dryRun bool) ProvisionerOption {
	return func(p *Provisioner) {
		p.dryRun = dryRun
	}
}

// WithInstallLog 设置安装日志路径。命令执行器需通过 WithLogWriter
// 把输出镜像到该文件，安装失败时错误中会提示该路径
func WithInstallLog(path string) ProvisionerOption {
	return func(p *Provisioner) {
		p.installLog = path
	}
}

// NewProvisioner 创建一个环境准备器
func NewProvisioner(logger hclog.Logger, data *tessdata.Manager, options ...ProvisionerOption) *Provisioner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	p := &Provisioner{
		logger:       logger,
		data:         data,
		goos:         runtime.GOOS,
		engineBinary: "tesseract",
		languages:    []string{"kor", "eng"},
	}

	for _, option := range options {
		option(p)
	}

	if p.runner == nil {
		p.runner = NewExecRunner(logger)
	}

	return p
}

// Run 执行完整的环境准备流程：
// 探测引擎 → 安装引擎 → 解析数据目录 → 保障语言数据 → 验证
func (p *Provisioner) Run(ctx context.Context) (*Result, error) {
	return p.execute(ctx, []string{
		StepDetectEngine,
		StepInstallEngine,
		StepResolveDataDir,
		StepEnsureData,
		StepVerify,
	})
}

// FetchData 只保障语言数据，不涉及引擎安装
func (p *Provisioner) FetchData(ctx context.Context) (*Result, error) {
	return p.execute(ctx, []string{
		StepResolveDataDir,
		StepEnsureData,
	})
}

func (p *Provisioner) execute(ctx context.Context, steps []string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var failed error
	for _, name := range steps {
		stepStart := time.Now()
		status, detail, err := p.runStep(ctx, name, result)

		step := StepResult{
			Name:     name,
			Status:   status,
			Detail:   detail,
			Duration: time.Since(stepStart),
		}
		if err != nil {
			step.Status = StepStatusFailed
			step.Detail = err.Error()
		}
		result.Steps = append(result.Steps, step)
		p.publishStep(step)

		if err != nil {
			p.logger.Error("环境准备步骤失败", "step", name, "error", err)
			failed = err
			break
		}
		p.logger.Info("环境准备步骤完成", "step", name, "status", status, "detail", detail)
	}

	result.Duration = time.Since(start)
	p.publishFinished(result, failed)

	return result, failed
}

func (p *Provisioner) runStep(ctx context.Context, name string, result *Result) (StepStatus, string, error) {
	switch name {
	case StepDetectEngine:
		return p.stepDetectEngine(result)
	case StepInstallEngine:
		return p.stepInstallEngine(ctx, result)
	case StepResolveDataDir:
		return p.stepResolveDataDir(ctx, result)
	case StepEnsureData:
		return p.stepEnsureData(ctx, result)
	case StepVerify:
		return p.stepVerify(ctx, result)
	default:
		return StepStatusFailed, "", errors.Newf(errors.ErrorTypeInternal, errors.CodeInternal,
			"未知的环境准备步骤: %s", name)
	}
}

func (p *Provisioner) stepDetectEngine(result *Result) (StepStatus, string, error) {
	path, err := p.runner.LookPath(p.engineBinary)
	if err != nil {
		return StepStatusOK, fmt.Sprintf("未找到引擎 %s", p.engineBinary), nil
	}

	result.EnginePath = path
	return StepStatusOK, fmt.Sprintf("已找到引擎: %s", path), nil
}

func (p *Provisioner) stepInstallEngine(ctx context.Context, result *Result) (StepStatus, string, error) {
	if result.EnginePath != "" {
		return StepStatusSkipped, "引擎已安装，跳过", nil
	}

	if p.skipEngine {
		return StepStatusFailed, "", errors.Newf(errors.ErrorTypeNotFound, errors.CodeEngineNotFound,
			"已跳过引擎安装，但未找到引擎 %s", p.engineBinary)
	}

	installer := p.installer
	if installer == nil {
		selected, err := SelectInstaller(p.goos, p.logger, p.runner)
		if err != nil {
			return StepStatusFailed, "", err
		}
		installer = selected
	}

	if p.dryRun {
		return StepStatusPlanned,
			fmt.Sprintf("计划通过 %s 执行:\n%s", installer.Name(), formatPlan(installer.Plan())), nil
	}

	if err := installer.Install(ctx); err != nil {
		// 只有日志文件确实落盘时才在错误中指路
		if p.installLog != "" && fileExists(p.installLog) {
			var appErr *errors.AppError
			if errors.As(err, &appErr) {
				appErr.WithContext("install_log", p.installLog)
			}
			return StepStatusFailed, "", errors.Wrap(err, errors.ErrorTypeExternal, errors.CodeInstallFailed,
				fmt.Sprintf("引擎安装失败，完整输出见安装日志: %s", p.installLog))
		}
		return StepStatusFailed, "", err
	}

	// 安装成功后必须能找到可执行文件
	path, err := p.runner.LookPath(p.engineBinary)
	if err != nil {
		return StepStatusFailed, "", errors.Newf(errors.ErrorTypePermanent, errors.CodeEngineNotFound,
			"安装完成但仍未找到引擎 %s，可能需要重新打开终端或检查 PATH", p.engineBinary)
	}

	result.EnginePath = path
	return StepStatusOK, fmt.Sprintf("已通过 %s 安装引擎: %s", installer.Name(), path), nil
}

func (p *Provisioner) stepResolveDataDir(ctx context.Context, result *Result) (StepStatus, string, error) {
	dir, err := p.data.Store().Resolve(ctx)
	if err != nil {
		return StepStatusFailed, "", err
	}

	result.DataDir = dir
	return StepStatusOK, fmt.Sprintf("训练数据目录: %s", dir), nil
}

func (p *Provisioner) stepEnsureData(ctx context.Context, result *Result) (StepStatus, string, error) {
	if p.dryRun {
		var lines []string
		for _, lang := range p.languages {
			lines = append(lines, fmt.Sprintf("  %s -> %s",
				p.data.Source().URLForLanguage(lang), result.DataDir))
		}
		return StepStatusPlanned, "计划下载(已存在则跳过):\n" + strings.Join(lines, "\n"), nil
	}

	ensured, err := p.data.EnsureLanguages(ctx, p.languages)
	result.Data = ensured
	if err != nil {
		return StepStatusFailed, "", err
	}

	downloaded := 0
	for _, r := range ensured {
		if r.Downloaded {
			downloaded++
		}
	}
	return StepStatusOK, fmt.Sprintf("语言数据就绪: %d 个语言，本次下载 %d 个", len(ensured), downloaded), nil
}

func (p *Provisioner) stepVerify(ctx context.Context, result *Result) (StepStatus, string, error) {
	if p.dryRun {
		return StepStatusSkipped, "试运行，跳过验证", nil
	}

	// 引擎版本命令必须成功退出
	out, err := p.runner.Run(ctx, p.engineBinary, "--version")
	if err != nil {
		return StepStatusFailed, "", errors.Wrap(err, errors.ErrorTypeExternal, errors.CodeInstallFailed,
			"引擎版本检查失败")
	}
	result.EngineVersion = ParseEngineVersion(out.Output)

	missing, err := p.data.Verify(ctx, p.languages)
	if err != nil {
		return StepStatusFailed, "", err
	}
	if len(missing) > 0 {
		return StepStatusFailed, "", errors.Newf(errors.ErrorTypePermanent, errors.CodeDataInvalid,
			"训练数据缺失: %s", strings.Join(missing, ", "))
	}

	return StepStatusOK, fmt.Sprintf("引擎 %s 可用，语言数据齐备", result.EngineVersion), nil
}

func (p *Provisioner) publishStep(step StepResult) {
	if p.events == nil {
		return
	}
	err := p.events.Publish(events.TypeProvisionStep, "provision",
		fmt.Sprintf("步骤 %s: %s", step.Name, step.Status), map[string]interface{}{
			"step":     step.Name,
			"status":   string(step.Status),
			"detail":   step.Detail,
			"duration": step.Duration.String(),
		})
	if err != nil {
		p.logger.Warn("发布步骤事件失败", "step", step.Name, "error", err)
	}
}

func (p *Provisioner) publishFinished(result *Result, failed error) {
	if p.events == nil {
		return
	}

	data := map[string]interface{}{
		"steps":    len(result.Steps),
		"duration": result.Duration.String(),
		"success":  failed == nil,
	}
	if failed != nil {
		data["error"] = failed.Error()
	}

	if err := p.events.Publish(events.TypeProvisionFinished, "provision", "环境准备结束", data); err != nil {
		p.logger.Warn("发布结束事件失败", "error", err)
	}
}

// fileExists 检查文件存在且非目录
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ParseEngineVersion 从版本命令输出中提取版本号，
// 首行格式通常为 "tesseract 5.3.4"
func ParseEngineVersion(output string) string {
	lines := strings.SplitN(strings.TrimSpace(output), "\n", 2)
	if len(lines) == 0 {
		return "unknown"
	}

	fields := strings.Fields(lines[0])
	if len(fields) >= 2 {
		return strings.TrimPrefix(fields[1], "v")
	}
	return "unknown"
}
