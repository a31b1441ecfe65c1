package validate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/concurrency"
	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/events"
	"github.com/lomehong/ldg/pkg/ocr"
)

// 单行校验结果类别
const (
	outcomeMatch    = "match"
	outcomeMismatch = "mismatch"
	outcomeMissing  = "pdf_not_found"
	outcomeOCRError = "ocr_error"
)

// Mismatch 一条未通过校验的记录。
// JSON字段名与真值表列名保持一致，导出文件可直接比对
type Mismatch struct {
	FileName         string `json:"file_name"`
	Page             int    `json:"page"`
	FieldName        string `json:"field_name"`
	ExpectedText     string `json:"expected_text"`
	ValidationError  string `json:"validation_error"`
	OCROutputSnippet string `json:"ocr_output_snippet,omitempty"`
}

// Summary 一次校验运行的汇总
type Summary struct {
	RunID      string        `json:"run_id"`
	Rows       int           `json:"rows"`
	OCRCalls   int           `json:"ocr_calls"`
	Matches    int           `json:"matches"`
	Mismatched int           `json:"mismatched"`
	MissingPDF int           `json:"missing_pdf"`
	OCRErrors  int           `json:"ocr_errors"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Report 校验结果：汇总加不匹配明细
type Report struct {
	Summary    Summary    `json:"summary"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Validator 将OCR输出与真值表逐行比对。
// 同一(文件,页码)的OCR结果会被缓存，多行共享一次识别
type Validator struct {
	logger     hclog.Logger
	engine     ocr.Engine
	workers    int
	snippetLen int
	events     *events.EventManager
}

// ValidatorOption 校验器配置选项
type ValidatorOption func(*Validator)

// WithWorkers 设置并发识别数
func WithWorkers(workers int) ValidatorOption {
	return func(v *Validator) {
		if workers > 0 {
			v.workers = workers
		}
	}
}

// WithSnippetLength 设置不匹配时记录的OCR输出截断长度
func WithSnippetLength(length int) ValidatorOption {
	return func(v *Validator) {
		if length > 0 {
			v.snippetLen = length
		}
	}
}

// WithEventManager 设置事件管理器
func WithEventManager(em *events.EventManager) ValidatorOption {
	return func(v *Validator) {
		v.events = em
	}
}

// NewValidator 创建校验器
func NewValidator(logger hclog.Logger, engine ocr.Engine, options ...ValidatorOption) *Validator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	v := &Validator{
		logger:     logger,
		engine:     engine,
		workers:    2,
		snippetLen: 200,
	}

	for _, option := range options {
		option(v)
	}

	return v
}

// recognitionUnit 一次识别任务对应的(文件,页码)
type recognitionUnit struct {
	file string
	page int
}

type recognitionResult struct {
	text string
	err  error
}

// Run 对真值表的每一行执行校验。
// 行级问题（PDF缺失、识别失败、文本不匹配）记录为不匹配项，
// 不中止运行；真值文件本身缺失或表头非法才返回错误
func (v *Validator) Run(ctx context.Context, pdfDir string, truthCSV string) (*Report, error) {
	info, err := os.Stat(pdfDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrorTypeNotFound, errors.CodePDFNotFound,
				"PDF目录不存在: %s", pdfDir)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "检查PDF目录失败")
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrorTypeValidation, errors.CodePDFNotFound,
			"PDF路径不是目录: %s", pdfDir)
	}

	rows, err := LoadTruth(v.logger, truthCSV)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{
		Summary: Summary{
			RunID:     uuid.New().String(),
			StartedAt: start,
		},
	}

	v.logger.Info("开始校验",
		"run_id", report.Summary.RunID,
		"pdf_dir", pdfDir,
		"truth_csv", truthCSV,
		"rows", len(rows),
	)

	if len(rows) == 0 {
		v.logger.Warn("真值文件没有数据行", "path", truthCSV)
		report.Summary.Duration = time.Since(start)
		return report, nil
	}

	// 逐文件检查存在性，同一文件只查一次
	exists := make(map[string]bool)
	for _, row := range rows {
		if _, ok := exists[row.FileName]; ok {
			continue
		}
		_, statErr := os.Stat(filepath.Join(pdfDir, row.FileName))
		exists[row.FileName] = statErr == nil
	}

	// 汇总去重后的识别任务，缺失的文件不识别
	var units []recognitionUnit
	seen := make(map[recognitionUnit]bool)
	for _, row := range rows {
		if !exists[row.FileName] {
			continue
		}
		unit := recognitionUnit{file: row.FileName, page: row.Page}
		if !seen[unit] {
			seen[unit] = true
			units = append(units, unit)
		}
	}

	results, ocrCalls := v.recognizeUnits(ctx, pdfDir, units)
	report.Summary.OCRCalls = ocrCalls

	for _, row := range rows {
		report.Summary.Rows++
		v.evaluateRow(pdfDir, row, exists, results, report)
	}

	report.Summary.Duration = time.Since(start)
	v.logger.Info("校验完成",
		"run_id", report.Summary.RunID,
		"rows", report.Summary.Rows,
		"ocr_calls", report.Summary.OCRCalls,
		"matches", report.Summary.Matches,
		"mismatches", len(report.Mismatches),
		"duration", report.Summary.Duration.String(),
	)
	return report, nil
}

// recognizeUnits 并发识别去重后的(文件,页码)，返回各自的文本或错误
func (v *Validator) recognizeUnits(ctx context.Context, pdfDir string, units []recognitionUnit) (map[recognitionUnit]recognitionResult, int) {
	results := make(map[recognitionUnit]recognitionResult, len(units))
	if len(units) == 0 {
		return results, 0
	}

	pool := concurrency.NewWorkerPool("validate", v.workers,
		concurrency.WithLogger(v.logger.Named("pool")),
		concurrency.WithContext(ctx),
		concurrency.WithQueueSize(len(units)+1),
	)
	pool.Start()
	defer pool.Stop()

	var ocrCalls atomic.Int32

	type submission struct {
		unit  recognitionUnit
		index int
		ch    chan concurrency.TaskResult
	}

	texts := make([]string, len(units))
	submissions := make([]submission, 0, len(units))
	for i, unit := range units {
		index := i
		target := unit
		ch, err := pool.SubmitWithContext(
			fmt.Sprintf("%s#%d", target.file, target.page),
			fmt.Sprintf("识别 %s 第%d页", target.file, target.page),
			ctx,
			func(taskCtx context.Context) error {
				ocrCalls.Add(1)
				recognized, recErr := v.engine.Recognize(taskCtx, ocr.Input{
					Path: filepath.Join(pdfDir, target.file),
					Page: target.page,
				})
				if recErr != nil {
					return recErr
				}
				texts[index] = recognized.Text
				return nil
			})
		if err != nil {
			results[target] = recognitionResult{err: err}
			continue
		}
		submissions = append(submissions, submission{unit: target, index: index, ch: ch})
	}

	cancelled := make(map[recognitionUnit]error)
	for _, s := range submissions {
		select {
		case taskResult := <-s.ch:
			if taskResult.Error != nil {
				results[s.unit] = recognitionResult{err: taskResult.Error}
			} else {
				results[s.unit] = recognitionResult{text: texts[s.index]}
			}
		case <-ctx.Done():
			cancelled[s.unit] = errors.Newf(errors.ErrorTypeTemporary, errors.CodeTimeout,
				"已取消: %v", ctx.Err())
		}
	}

	// 等待在飞任务退出后再汇总，避免与任务协程并发读写
	pool.Stop()
	for unit, cancelErr := range cancelled {
		results[unit] = recognitionResult{err: cancelErr}
	}

	return results, int(ocrCalls.Load())
}

// evaluateRow 比对单行并计入汇总
func (v *Validator) evaluateRow(pdfDir string, row TruthRow, exists map[string]bool, results map[recognitionUnit]recognitionResult, report *Report) {
	if !exists[row.FileName] {
		pdfPath := filepath.Join(pdfDir, row.FileName)
		v.logger.Warn("真值表引用的PDF不存在", "file", row.FileName, "line", row.Line)
		report.Summary.MissingPDF++
		report.Mismatches = append(report.Mismatches, v.newMismatch(row, fmt.Sprintf("PDF not found: %s", pdfPath), ""))
		v.publishRow(row, outcomeMissing, pdfPath)
		return
	}

	result := results[recognitionUnit{file: row.FileName, page: row.Page}]
	if result.err != nil {
		v.logger.Error("识别失败", "file", row.FileName, "page", row.Page, "error", result.err)
		report.Summary.OCRErrors++
		report.Mismatches = append(report.Mismatches, v.newMismatch(row, result.err.Error(), ""))
		v.publishRow(row, outcomeOCRError, result.err.Error())
		return
	}

	if !strings.Contains(result.text, row.ExpectedText) {
		v.logger.Warn("文本不匹配",
			"file", row.FileName,
			"page", row.Page,
			"field", row.FieldName,
			"expected", row.ExpectedText,
		)
		report.Summary.Mismatched++
		report.Mismatches = append(report.Mismatches, v.newMismatch(row, "Mismatch", snippet(result.text, v.snippetLen)))
		v.publishRow(row, outcomeMismatch, row.ExpectedText)
		return
	}

	report.Summary.Matches++
	v.publishRow(row, outcomeMatch, "")
}

func (v *Validator) newMismatch(row TruthRow, validationError string, ocrSnippet string) Mismatch {
	return Mismatch{
		FileName:         row.FileName,
		Page:             row.Page,
		FieldName:        row.FieldName,
		ExpectedText:     row.ExpectedText,
		ValidationError:  validationError,
		OCROutputSnippet: ocrSnippet,
	}
}

func (v *Validator) publishRow(row TruthRow, outcome string, detail string) {
	if v.events == nil {
		return
	}

	data := map[string]interface{}{
		"file":    row.FileName,
		"page":    row.Page,
		"field":   row.FieldName,
		"outcome": outcome,
	}
	if detail != "" {
		data["detail"] = detail
	}

	if err := v.events.Publish(events.TypeValidateRow, "validate",
		fmt.Sprintf("校验 %s 第%d页 %s", row.FileName, row.Page, row.FieldName), data); err != nil {
		v.logger.Warn("发布校验事件失败", "file", row.FileName, "error", err)
	}
}

// snippet 截取文本前limit个字符，超长时追加省略号
func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
