package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/concurrency"
	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/events"
)

// BatchResult 批量识别结果
type BatchResult struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  map[string]string `json:"failures,omitempty"`
	OutputDir string            `json:"output_dir"`
	Duration  time.Duration     `json:"duration"`
}

// BatchProcessor 批量识别处理器，通过工作池并发处理目录下的PDF
type BatchProcessor struct {
	logger  hclog.Logger
	engine  Engine
	workers int
	events  *events.EventManager
}

// BatchOption 批量处理器配置选项
type BatchOption func(*BatchProcessor)

// WithWorkers 设置并发工作协程数
func WithWorkers(workers int) BatchOption {
	return func(b *BatchProcessor) {
		if workers > 0 {
			b.workers = workers
		}
	}
}

// WithEvents 设置事件管理器
func WithEvents(em *events.EventManager) BatchOption {
	return func(b *BatchProcessor) {
		b.events = em
	}
}

// NewBatchProcessor 创建批量识别处理器
func NewBatchProcessor(logger hclog.Logger, engine Engine, options ...BatchOption) *BatchProcessor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	b := &BatchProcessor{
		logger:  logger,
		engine:  engine,
		workers: 2,
	}

	for _, option := range options {
		option(b)
	}

	return b
}

// ProcessDirectory 识别目录下所有PDF，文本写入输出目录的 <原名>.txt。
// 单个文件失败不中止整批，失败明细记录在结果中
func (b *BatchProcessor) ProcessDirectory(ctx context.Context, inputDir string, outputDir string) (*BatchResult, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrorTypeNotFound, errors.CodePDFNotFound,
				"输入目录不存在: %s", inputDir)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "检查输入目录失败")
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrorTypeValidation, errors.CodePDFNotFound,
			"输入路径不是目录: %s", inputDir)
	}

	files, err := filepath.Glob(filepath.Join(inputDir, "*.pdf"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "枚举PDF文件失败")
	}

	start := time.Now()
	result := &BatchResult{
		Total:     len(files),
		Failures:  make(map[string]string),
		OutputDir: outputDir,
	}

	if len(files) == 0 {
		b.logger.Warn("输入目录中没有PDF文件", "dir", inputDir)
		result.Duration = time.Since(start)
		return result, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "创建输出目录失败")
	}

	pool := concurrency.NewWorkerPool("ocr-batch", b.workers,
		concurrency.WithLogger(b.logger.Named("pool")),
		concurrency.WithContext(ctx),
		concurrency.WithQueueSize(len(files)+1),
	)
	pool.Start()
	defer pool.Stop()

	type submission struct {
		file string
		ch   chan concurrency.TaskResult
	}

	submissions := make([]submission, 0, len(files))
	for _, file := range files {
		pdf := file
		ch, err := pool.SubmitWithContext(pdf, "识别 "+filepath.Base(pdf), ctx,
			func(taskCtx context.Context) error {
				return b.processFile(taskCtx, pdf, outputDir)
			})
		if err != nil {
			result.Failures[filepath.Base(pdf)] = err.Error()
			continue
		}
		submissions = append(submissions, submission{file: pdf, ch: ch})
	}

	for _, s := range submissions {
		name := filepath.Base(s.file)
		select {
		case taskResult := <-s.ch:
			if taskResult.Error != nil {
				result.Failures[name] = taskResult.Error.Error()
			} else {
				result.Succeeded++
			}
			b.publishFile(name, taskResult.Error, taskResult.Duration)
		case <-ctx.Done():
			result.Failures[name] = fmt.Sprintf("已取消: %v", ctx.Err())
		}
	}

	result.Failed = len(result.Failures)
	result.Duration = time.Since(start)

	b.logger.Info("批量识别完成",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", result.Duration.String(),
	)
	return result, nil
}

// processFile 识别单个PDF并写出文本文件
func (b *BatchProcessor) processFile(ctx context.Context, pdfPath string, outputDir string) error {
	recognized, err := b.engine.Recognize(ctx, Input{Path: pdfPath, Page: 1})
	if err != nil {
		return err
	}

	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	outPath := filepath.Join(outputDir, stem+".txt")
	if err := os.WriteFile(outPath, []byte(recognized.Text), 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal,
			fmt.Sprintf("写出识别文本失败: %s", outPath))
	}

	b.logger.Debug("已写出识别文本", "pdf", filepath.Base(pdfPath), "output", outPath)
	return nil
}

func (b *BatchProcessor) publishFile(name string, taskErr error, duration time.Duration) {
	if b.events == nil {
		return
	}

	data := map[string]interface{}{
		"file":     name,
		"success":  taskErr == nil,
		"duration": duration.String(),
	}
	if taskErr != nil {
		data["error"] = taskErr.Error()
	}

	if err := b.events.Publish(events.TypeOCRFile, "ocr", fmt.Sprintf("识别文件 %s", name), data); err != nil {
		b.logger.Warn("发布识别事件失败", "file", name, "error", err)
	}
}
