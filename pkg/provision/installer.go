package provision

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/errors"
)

// Installer 平台包管理器的安装抽象
type Installer interface {
	// Name 返回包管理器名称
	Name() string
	// Available 检查包管理器是否可用
	Available() bool
	// Plan 返回将要执行的命令序列
	Plan() [][]string
	// Install 执行安装
	Install(ctx context.Context) error
}

// runPlan 依次执行安装计划中的命令，任一失败即中止
func runPlan(ctx context.Context, runner CommandRunner, logger hclog.Logger, plan [][]string) error {
	for _, cmd := range plan {
		logger.Info("执行安装命令", "command", strings.Join(cmd, " "))
		if _, err := runner.Run(ctx, cmd[0], cmd[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// BrewInstaller 基于 Homebrew 的安装器 (darwin)
type BrewInstaller struct {
	runner CommandRunner
	logger hclog.Logger
}

// NewBrewInstaller 创建 Homebrew 安装器
func NewBrewInstaller(logger hclog.Logger, runner CommandRunner) *BrewInstaller {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &BrewInstaller{runner: runner, logger: logger}
}

// Name 返回包管理器名称
func (i *BrewInstaller) Name() string { return "homebrew" }

// Available 检查 brew 是否可用
func (i *BrewInstaller) Available() bool {
	_, err := i.runner.LookPath("brew")
	return err == nil
}

// Plan 返回安装命令
func (i *BrewInstaller) Plan() [][]string {
	return [][]string{
		{"brew", "install", "tesseract"},
	}
}

// Install 通过 brew 安装引擎
func (i *BrewInstaller) Install(ctx context.Context) error {
	return runPlan(ctx, i.runner, i.logger, i.Plan())
}

// AptInstaller 基于 apt 的安装器 (linux)，非 root 时自动加 sudo
type AptInstaller struct {
	runner CommandRunner
	logger hclog.Logger
	euid   func() int
}

// AptOption apt 安装器配置选项
type AptOption func(*AptInstaller)

// WithEUID 指定有效用户ID探测函数，测试用
func WithEUID(fn func() int) AptOption {
	return func(i *AptInstaller) {
		i.euid = fn
	}
}

// NewAptInstaller 创建 apt 安装器
func NewAptInstaller(logger hclog.Logger, runner CommandRunner, options ...AptOption) *AptInstaller {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	i := &AptInstaller{
		runner: runner,
		logger: logger,
		euid:   os.Geteuid,
	}

	for _, option := range options {
		option(i)
	}

	return i
}

// Name 返回包管理器名称
func (i *AptInstaller) Name() string { return "apt" }

// Available 检查 apt-get 是否可用
func (i *AptInstaller) Available() bool {
	_, err := i.runner.LookPath("apt-get")
	return err == nil
}

// Plan 返回安装命令，包含开发头文件
func (i *AptInstaller) Plan() [][]string {
	plan := [][]string{
		{"apt-get", "update"},
		{"apt-get", "install", "-y", "tesseract-ocr", "libtesseract-dev"},
	}

	if i.euid() != 0 {
		if _, err := i.runner.LookPath("sudo"); err == nil {
			for n, cmd := range plan {
				plan[n] = append([]string{"sudo"}, cmd...)
			}
		} else {
			i.logger.Warn("当前非 root 且 sudo 不可用，安装可能因权限不足失败")
		}
	}

	return plan
}

// Install 通过 apt 安装引擎
func (i *AptInstaller) Install(ctx context.Context) error {
	return runPlan(ctx, i.runner, i.logger, i.Plan())
}

// ChocoInstaller 基于 Chocolatey 的安装器 (windows)
type ChocoInstaller struct {
	runner CommandRunner
	logger hclog.Logger
}

// NewChocoInstaller 创建 Chocolatey 安装器
func NewChocoInstaller(logger hclog.Logger, runner CommandRunner) *ChocoInstaller {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ChocoInstaller{runner: runner, logger: logger}
}

// Name 返回包管理器名称
func (i *ChocoInstaller) Name() string { return "chocolatey" }

// Available 检查 choco 是否可用
func (i *ChocoInstaller) Available() bool {
	_, err := i.runner.LookPath("choco")
	return err == nil
}

// Plan 返回安装命令
func (i *ChocoInstaller) Plan() [][]string {
	return [][]string{
		{"choco", "install", "tesseract", "-y"},
	}
}

// Install 通过 choco 安装引擎
func (i *ChocoInstaller) Install(ctx context.Context) error {
	return runPlan(ctx, i.runner, i.logger, i.Plan())
}

// WingetInstaller 基于 winget 的安装器 (windows 回退)
type WingetInstaller struct {
	runner CommandRunner
	logger hclog.Logger
}

// NewWingetInstaller 创建 winget 安装器
func NewWingetInstaller(logger hclog.Logger, runner CommandRunner) *WingetInstaller {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &WingetInstaller{runner: runner, logger: logger}
}

// Name 返回包管理器名称
func (i *WingetInstaller) Name() string { return "winget" }

// Available 检查 winget 是否可用
func (i *WingetInstaller) Available() bool {
	_, err := i.runner.LookPath("winget")
	return err == nil
}

// Plan 返回安装命令
func (i *WingetInstaller) Plan() [][]string {
	return [][]string{
		{"winget", "install", "--id", "UB-Mannheim.TesseractOCR", "-e",
			"--accept-source-agreements", "--accept-package-agreements"},
	}
}

// Install 通过 winget 安装引擎
func (i *WingetInstaller) Install(ctx context.Context) error {
	return runPlan(ctx, i.runner, i.logger, i.Plan())
}

// SelectInstaller 按平台选择可用的安装器。
// darwin 使用 Homebrew，linux 使用 apt，windows 优先 Chocolatey、回退 winget
func SelectInstaller(goos string, logger hclog.Logger, runner CommandRunner) (Installer, error) {
	switch goos {
	case "darwin":
		installer := NewBrewInstaller(logger, runner)
		if installer.Available() {
			return installer, nil
		}
		return nil, errors.New(errors.ErrorTypePermanent, errors.CodePkgManagerMissing,
			"未找到 Homebrew，请先安装: https://brew.sh")

	case "windows":
		choco := NewChocoInstaller(logger, runner)
		if choco.Available() {
			return choco, nil
		}
		winget := NewWingetInstaller(logger, runner)
		if winget.Available() {
			return winget, nil
		}
		return nil, errors.New(errors.ErrorTypePermanent, errors.CodePkgManagerMissing,
			"未找到 Chocolatey 或 winget，请先安装其中之一")

	case "linux":
		installer := NewAptInstaller(logger, runner)
		if installer.Available() {
			return installer, nil
		}
		return nil, errors.New(errors.ErrorTypePermanent, errors.CodePkgManagerMissing,
			"未找到 apt-get，仅支持基于 Debian 的发行版，其他发行版请手动安装 tesseract-ocr")

	default:
		return nil, errors.Newf(errors.ErrorTypePermanent, errors.CodePkgManagerMissing,
			"不支持的平台: %s", goos)
	}
}

// formatPlan 将安装计划格式化为可读文本
func formatPlan(plan [][]string) string {
	var builder strings.Builder
	for _, cmd := range plan {
		fmt.Fprintf(&builder, "  %s\n", strings.Join(cmd, " "))
	}
	return builder.String()
}
