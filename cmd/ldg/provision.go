package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lomehong/ldg/pkg/config"
	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/provision"
)

var (
	provisionTier       string
	provisionLanguages  []string
	provisionSkipEngine bool
	provisionDryRun     bool
	provisionInstallLog string
)

// provision命令：完整的环境准备流程
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "准备OCR运行环境",
	Long: `按固定顺序准备OCR运行环境：检测引擎 → 按平台包管理器安装引擎 →
解析训练数据目录 → 下载缺失的训练数据 → 执行版本命令验证。
引擎已安装、数据已存在时对应步骤跳过，任一步骤失败立即中止。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProvision(provisionSteps)
	},
}

// fetch命令：仅准备训练数据，不安装引擎
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "下载缺失的训练数据",
	Long: `仅执行训练数据部分：解析训练数据目录并下载缺失的语言文件。
数据已存在时不产生网络请求，重复执行是安全的。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProvision(fetchSteps)
	},
}

type provisionMode int

const (
	provisionSteps provisionMode = iota
	fetchSteps
)

func init() {
	for _, cmd := range []*cobra.Command{provisionCmd, fetchCmd} {
		cmd.Flags().StringVar(&provisionTier, "tier", "", "训练数据层级（fast/best），空时使用配置值")
		cmd.Flags().StringSliceVar(&provisionLanguages, "languages", nil, "识别语言列表，空时使用配置值")
	}
	provisionCmd.Flags().BoolVar(&provisionSkipEngine, "skip-engine", false, "跳过引擎安装步骤")
	provisionCmd.Flags().BoolVar(&provisionDryRun, "dry-run", false, "仅输出将要执行的命令，不实际执行")
	provisionCmd.Flags().StringVar(&provisionInstallLog, "install-log", "", "安装输出日志路径")
}

func runProvision(mode provisionMode) error {
	app, err := newAppContext(func(cfg *config.Config) {
		if provisionTier != "" {
			cfg.Data.Tier = provisionTier
		}
		if len(provisionLanguages) > 0 {
			cfg.Engine.Languages = provisionLanguages
		}
		if provisionSkipEngine {
			cfg.Provision.SkipEngine = true
		}
		if provisionInstallLog != "" {
			cfg.Provision.InstallLog = provisionInstallLog
		}
	})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signalContext()
	defer stop()

	runner := app.runner
	if app.cfg.Provision.InstallLog != "" && mode == provisionSteps && !provisionDryRun {
		// 安装命令的输出镜像写入安装日志，Windows 下排查 choco/winget 失败靠它
		logFile, logErr := openInstallLog(app.cfg.Provision.InstallLog)
		if logErr != nil {
			return logErr
		}
		defer logFile.Close()
		runner = provision.NewExecRunner(app.hc.Named("runner"),
			provision.WithTimeout(app.cfg.Provision.Timeout),
			provision.WithLogWriter(logFile))
	}

	options := []provision.ProvisionerOption{
		provision.WithRunner(runner),
		provision.WithEventManager(app.events),
		provision.WithLanguages(app.cfg.Engine.Languages),
		provision.WithSkipEngine(app.cfg.Provision.SkipEngine),
		provision.WithDryRun(provisionDryRun),
		provision.WithInstallLog(app.cfg.Provision.InstallLog),
	}
	if app.cfg.Engine.Binary != "" {
		options = append(options, provision.WithEngineBinary(app.cfg.Engine.Binary))
	}

	p := provision.NewProvisioner(app.hc.Named("provision"), app.data, options...)

	var result *provision.Result
	switch mode {
	case fetchSteps:
		result, err = p.FetchData(ctx)
	default:
		result, err = p.Run(ctx)
	}

	printProvisionResult(result)

	if err != nil {
		return exitWithCode(errors.ExitMismatch, "环境准备失败: %v", err)
	}
	fmt.Println("环境准备完成。")
	return nil
}

// openInstallLog 创建安装日志文件，父目录不存在时一并创建
func openInstallLog(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建安装日志目录失败: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("创建安装日志文件失败: %w", err)
	}
	return f, nil
}

// printProvisionResult 输出各步骤的执行情况
func printProvisionResult(result *provision.Result) {
	if result == nil {
		return
	}

	for _, step := range result.Steps {
		line := fmt.Sprintf("[%-7s] %-16s", step.Status, step.Name)
		if step.Detail != "" {
			line += " " + step.Detail
		}
		fmt.Println(line)
	}

	if result.EnginePath != "" {
		fmt.Printf("引擎路径: %s\n", result.EnginePath)
	}
	if result.EngineVersion != "" {
		fmt.Printf("引擎版本: %s\n", result.EngineVersion)
	}
	if result.DataDir != "" {
		fmt.Printf("数据目录: %s\n", result.DataDir)
	}
	for _, data := range result.Data {
		state := "已存在"
		if data.Downloaded {
			state = "已下载"
		}
		fmt.Printf("语言 %s: %s (%d 字节, %s)\n", data.Language, state, data.Size, data.Tier)
	}
	fmt.Printf("耗时: %s\n", result.Duration.Round(timeRound))
}
