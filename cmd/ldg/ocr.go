package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lomehong/ldg/pkg/config"
	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/ocr"
	"github.com/lomehong/ldg/pkg/report"
)

var (
	ocrOutput    string
	ocrLang      string
	ocrDPI       int
	ocrPage      int
	ocrPSM       int
	ocrOEM       int
	ocrWorkers   int
	ocrGrayscale bool
)

// ocr命令：识别单个文件或整个目录
var ocrCmd = &cobra.Command{
	Use:   "ocr <path>",
	Short: "对PDF或图片执行OCR",
	Long: `识别单个文件或目录。单个PDF按页渲染后识别，图片直接识别，
结果输出到标准输出或 --output 指定的文件。目录模式要求
--output 为输出目录，每个PDF生成同名的.txt文件。`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

func init() {
	ocrCmd.Flags().StringVarP(&ocrOutput, "output", "o", "", "输出文件或目录（目录模式必填）")
	ocrCmd.Flags().StringVar(&ocrLang, "lang", "", "识别语言，加号分隔（如 kor+eng），空时使用配置值")
	ocrCmd.Flags().IntVar(&ocrDPI, "dpi", 0, "PDF渲染分辨率，空时使用配置值")
	ocrCmd.Flags().IntVar(&ocrPage, "page", 1, "PDF页码，从1开始")
	ocrCmd.Flags().IntVar(&ocrPSM, "psm", -1, "页面分割模式，空时使用配置值")
	ocrCmd.Flags().IntVar(&ocrOEM, "oem", -1, "引擎模式，空时使用配置值")
	ocrCmd.Flags().IntVar(&ocrWorkers, "workers", 0, "目录模式的并发数，空时使用配置值")
	ocrCmd.Flags().BoolVar(&ocrGrayscale, "grayscale", false, "识别前做灰度预处理")
}

func runOCR(cmd *cobra.Command, args []string) error {
	path := args[0]

	app, err := newAppContext(func(cfg *config.Config) {
		if ocrPSM >= 0 {
			cfg.Engine.PSM = ocrPSM
		}
		if ocrOEM >= 0 {
			cfg.Engine.OEM = ocrOEM
		}
		if ocrWorkers > 0 {
			cfg.Validation.Workers = ocrWorkers
		}
	})
	if err != nil {
		return err
	}
	defer app.Close()

	info, statErr := os.Stat(path)
	if statErr != nil {
		return exitWithCode(errors.ExitInputMissing, "输入不存在: %s", path)
	}

	ctx, stop := signalContext()
	defer stop()

	engine := app.newEngine(ocr.WithPreprocess(ocrGrayscale))

	if info.IsDir() {
		return runOCRDirectory(app, ctx, engine, path)
	}
	return runOCRFile(app, ctx, engine, path)
}

// runOCRFile 识别单个文件并输出文本
func runOCRFile(app *appContext, ctx context.Context, engine ocr.Engine, path string) error {
	input := ocr.Input{
		Path: path,
		Page: ocrPage,
		DPI:  ocrDPI,
	}
	if ocrLang != "" {
		input.Languages = strings.Split(ocrLang, "+")
	}
	if ocrPSM > 0 {
		input.PSM = ocrPSM
	}
	if ocrOEM > 0 {
		input.OEM = ocrOEM
	}

	result, err := engine.Recognize(ctx, input)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return exitWithCode(errors.ExitInputMissing, "识别失败: %v", err)
		}
		return exitWithCode(errors.ExitUnexpected, "识别失败: %v", err)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "告警: %s\n", warning)
	}

	if ocrOutput == "" {
		fmt.Println(result.Text)
		return nil
	}

	if err := os.WriteFile(ocrOutput, []byte(result.Text), 0644); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}
	fmt.Printf("识别结果已写入: %s（耗时 %s）\n", ocrOutput, result.Duration.Round(timeRound))
	return nil
}

// runOCRDirectory 批量识别目录下的PDF
func runOCRDirectory(app *appContext, ctx context.Context, engine ocr.Engine, dir string) error {
	if ocrOutput == "" {
		return exitWithCode(errors.ExitUnexpected, "目录模式需要 --output 指定输出目录")
	}

	processor := ocr.NewBatchProcessor(app.hc.Named("batch"), engine,
		ocr.WithWorkers(app.cfg.Validation.Workers),
		ocr.WithEvents(app.events),
	)

	startedAt := time.Now()
	result, err := processor.ProcessDirectory(ctx, dir, ocrOutput)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return exitWithCode(errors.ExitInputMissing, "批量识别失败: %v", err)
		}
		return exitWithCode(errors.ExitUnexpected, "批量识别失败: %v", err)
	}

	if _, saveErr := app.reports.Save(report.NewOCRManifest(startedAt, result)); saveErr != nil {
		app.hc.Warn("运行记录写入失败", "error", saveErr)
	}

	fmt.Printf("共 %d 个文件，成功 %d，失败 %d，耗时 %s\n",
		result.Total, result.Succeeded, result.Failed, result.Duration.Round(timeRound))
	for name, reason := range result.Failures {
		fmt.Printf("  失败 %s: %s\n", name, reason)
	}

	if result.Failed > 0 {
		return exitWithCode(errors.ExitMismatch, "")
	}
	return nil
}
