package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lomehong/ldg/pkg/config"
	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/report"
	"github.com/lomehong/ldg/pkg/validate"
)

var (
	validatePDFDir     string
	validateTruthCSV   string
	validateOutputCSV  string
	validateOutputJSON string
	validateOutputDir  string
	validateWorkers    int
)

// validate命令：按真值表逐行校验OCR结果
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "按真值表校验OCR结果",
	Long: `读取真值表CSV，对其中引用的PDF执行OCR，逐行检查期望文本
是否出现在识别结果中。同一(文件,页码)的识别结果会被缓存，
多行共享一次识别。

退出码：0 全部匹配；1 存在不匹配；2 输入文件或目录不存在；3 意外错误。`,
	RunE: runValidate,
}

// truth命令组
var truthCmd = &cobra.Command{
	Use:   "truth",
	Short: "真值表工具",
}

var (
	truthPDFDir string
	truthOutput string
)

// truth init命令：按PDF文件名生成占位真值表
var truthInitCmd = &cobra.Command{
	Use:   "init",
	Short: "生成占位真值表",
	Long: `扫描PDF目录，为每个文件生成一行占位真值：第1页、字段
FileNameCheck、期望文本为去掉扩展名的文件名。生成后人工
替换为真实的期望字段。`,
	RunE: runTruthInit,
}

func init() {
	validateCmd.Flags().StringVarP(&validatePDFDir, "pdf-dir", "p", "data/pdf", "PDF文件目录")
	validateCmd.Flags().StringVarP(&validateTruthCSV, "truth-csv", "t", "data/truth/truth_sample.csv", "真值表CSV路径")
	validateCmd.Flags().StringVar(&validateOutputCSV, "output-csv", "", "不匹配明细CSV输出路径，相对路径落在输出目录下")
	validateCmd.Flags().StringVar(&validateOutputJSON, "output-json", "", "不匹配明细JSON输出路径，相对路径落在输出目录下")
	validateCmd.Flags().StringVar(&validateOutputDir, "output-dir", "", "报告输出目录，空时使用配置值")
	validateCmd.Flags().IntVar(&validateWorkers, "workers", 0, "并发识别数，空时使用配置值")

	truthInitCmd.Flags().StringVarP(&truthPDFDir, "pdf-dir", "p", "data/pdf", "PDF文件目录")
	truthInitCmd.Flags().StringVarP(&truthOutput, "output", "o", "data/truth/truth_sample.csv", "真值表输出路径")
	truthCmd.AddCommand(truthInitCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(func(cfg *config.Config) {
		if validateOutputDir != "" {
			cfg.Report.Dir = validateOutputDir
		}
		if validateWorkers > 0 {
			cfg.Validation.Workers = validateWorkers
		}
	})
	if err != nil {
		return err
	}
	defer app.Close()

	if info, statErr := os.Stat(validatePDFDir); statErr != nil || !info.IsDir() {
		return exitWithCode(errors.ExitInputMissing, "PDF目录不存在: %s", validatePDFDir)
	}
	if _, statErr := os.Stat(validateTruthCSV); statErr != nil {
		return exitWithCode(errors.ExitInputMissing, "真值表不存在: %s", validateTruthCSV)
	}

	ctx, stop := signalContext()
	defer stop()

	engine := app.newEngine()
	validator := validate.NewValidator(app.hc.Named("validate"), engine,
		validate.WithWorkers(app.cfg.Validation.Workers),
		validate.WithSnippetLength(app.cfg.Validation.SnippetLength),
		validate.WithEventManager(app.events),
	)

	fmt.Printf("开始校验：PDF目录 %s，真值表 %s\n", validatePDFDir, validateTruthCSV)

	result, err := validator.Run(ctx, validatePDFDir, validateTruthCSV)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return exitWithCode(errors.ExitInputMissing, "校验失败: %v", err)
		}
		return exitWithCode(errors.ExitUnexpected, "校验失败: %v", err)
	}

	printMismatches(result.Mismatches)

	artifacts, artifactErr := writeArtifacts(app, result)
	if artifactErr != nil {
		// 报告落盘失败不掩盖校验结论，仅提示
		fmt.Fprintf(os.Stderr, "报告写入失败: %v\n", artifactErr)
	}

	if _, saveErr := app.reports.Save(report.NewValidateManifest(result, artifacts)); saveErr != nil {
		app.hc.Warn("运行记录写入失败", "error", saveErr)
	}

	s := result.Summary
	fmt.Printf("\n共 %d 行，识别 %d 次，匹配 %d，不匹配 %d，缺失PDF %d，识别失败 %d，耗时 %s\n",
		s.Rows, s.OCRCalls, s.Matches, s.Mismatched, s.MissingPDF, s.OCRErrors,
		s.Duration.Round(timeRound))

	if len(result.Mismatches) > 0 {
		return exitWithCode(errors.ExitMismatch, "")
	}
	fmt.Println("校验通过，未发现不匹配项。")
	return nil
}

// printMismatches 按原始工具的格式逐条输出不匹配项
func printMismatches(mismatches []validate.Mismatch) {
	if len(mismatches) == 0 {
		return
	}

	fmt.Printf("\n发现 %d 条不匹配:\n", len(mismatches))
	for i, m := range mismatches {
		fmt.Printf("\n--- 不匹配 %d ---\n", i+1)
		fmt.Printf("  文件: %s\n", m.FileName)
		fmt.Printf("  页码: %d\n", m.Page)
		fmt.Printf("  字段: %s\n", m.FieldName)
		fmt.Printf("  期望文本: %q\n", m.ExpectedText)
		if m.ValidationError != "" {
			fmt.Printf("  校验错误: %s\n", m.ValidationError)
		}
		if m.OCROutputSnippet != "" {
			fmt.Printf("  OCR片段: %q\n", m.OCROutputSnippet)
		}
	}
}

// writeArtifacts 按需写出不匹配明细文件，返回产物路径表
func writeArtifacts(app *appContext, result *validate.Report) (map[string]string, error) {
	artifacts := make(map[string]string)

	resolve := func(path string) string {
		if filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(app.cfg.Report.Dir, path)
	}

	if validateOutputCSV != "" {
		path := resolve(validateOutputCSV)
		if err := report.WriteMismatchCSV(path, result.Mismatches); err != nil {
			return artifacts, err
		}
		artifacts["csv"] = path
		fmt.Printf("不匹配明细已写入CSV: %s\n", path)
	}

	if validateOutputJSON != "" {
		path := resolve(validateOutputJSON)
		if err := report.WriteMismatchJSON(path, result.Mismatches); err != nil {
			return artifacts, err
		}
		artifacts["json"] = path
		fmt.Printf("不匹配明细已写入JSON: %s\n", path)
	}

	return artifacts, nil
}

func runTruthInit(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(nil)
	if err != nil {
		return err
	}
	defer app.Close()

	rows, err := validate.WriteStubTruth(app.hc.Named("truth"), truthPDFDir, truthOutput)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return exitWithCode(errors.ExitInputMissing, "生成真值表失败: %v", err)
		}
		return err
	}

	if rows == 0 {
		fmt.Printf("目录中没有PDF，已写入仅含表头的真值表: %s\n", truthOutput)
	} else {
		fmt.Printf("已为 %d 个PDF生成占位真值表: %s\n", rows, truthOutput)
	}
	return nil
}
