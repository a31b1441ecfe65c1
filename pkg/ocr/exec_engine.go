package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/errors"
)

// commandFunc 执行外部命令，分别返回标准输出与标准错误
type commandFunc func(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)

// lookPathFunc 查找可执行文件
type lookPathFunc func(name string) (string, error)

// defaultCommand 基于 os/exec 的命令执行
func defaultCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	var outBuf, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// ExecEngine 基于 tesseract 命令行的OCR引擎。
// PDF 先经 Ghostscript 渲染为 PNG 再识别
type ExecEngine struct {
	logger         hclog.Logger
	binary         string
	renderer       string
	languages      []string
	dpi            int
	psm            int
	oem            int
	preserveSpaces bool
	preprocess     bool
	tessdataDir    string
	timeout        time.Duration
	runCommand     commandFunc
	lookPath       lookPathFunc
}

// ExecEngineOption 引擎配置选项
type ExecEngineOption func(*ExecEngine)

// WithBinary 设置引擎可执行文件
func WithBinary(binary string) ExecEngineOption {
	return func(e *ExecEngine) {
		if binary != "" {
			e.binary = binary
		}
	}
}

// WithRenderer 设置PDF渲染器可执行文件
func WithRenderer(renderer string) ExecEngineOption {
	return func(e *ExecEngine) {
		if renderer != "" {
			e.renderer = renderer
		}
	}
}

// WithLanguages 设置默认识别语言
func WithLanguages(languages []string) ExecEngineOption {
	return func(e *ExecEngine) {
		if len(languages) > 0 {
			e.languages = languages
		}
	}
}

// WithDPI 设置默认渲染分辨率
func WithDPI(dpi int) ExecEngineOption {
	return func(e *ExecEngine) {
		if dpi > 0 {
			e.dpi = dpi
		}
	}
}

// WithPSM 设置页面分割模式
func WithPSM(psm int) ExecEngineOption {
	return func(e *ExecEngine) {
		e.psm = psm
	}
}

// WithOEM 设置引擎模式
func WithOEM(oem int) ExecEngineOption {
	return func(e *ExecEngine) {
		e.oem = oem
	}
}

// WithPreserveSpaces 保留词间空格，韩文文档建议开启
func WithPreserveSpaces(preserve bool) ExecEngineOption {
	return func(e *ExecEngine) {
		e.preserveSpaces = preserve
	}
}

// WithPreprocess 识别前对图像做灰度与对比度预处理
func WithPreprocess(preprocess bool) ExecEngineOption {
	return func(e *ExecEngine) {
		e.preprocess = preprocess
	}
}

// WithTessdataDir 显式指定训练数据目录
func WithTessdataDir(dir string) ExecEngineOption {
	return func(e *ExecEngine) {
		e.tessdataDir = dir
	}
}

// WithRecognizeTimeout 设置单次识别超时
func WithRecognizeTimeout(timeout time.Duration) ExecEngineOption {
	return func(e *ExecEngine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithCommandFunc 注入命令执行函数，测试用
func WithCommandFunc(fn commandFunc) ExecEngineOption {
	return func(e *ExecEngine) {
		e.runCommand = fn
	}
}

// WithLookPathFunc 注入可执行文件查找函数，测试用
func WithLookPathFunc(fn lookPathFunc) ExecEngineOption {
	return func(e *ExecEngine) {
		e.lookPath = fn
	}
}

// defaultRenderer 按平台返回 Ghostscript 可执行文件名
func defaultRenderer(goos string) string {
	if goos == "windows" {
		return "gswin64c"
	}
	return "gs"
}

// NewExecEngine 创建命令行OCR引擎
func NewExecEngine(logger hclog.Logger, options ...ExecEngineOption) *ExecEngine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	e := &ExecEngine{
		logger:         logger,
		binary:         "tesseract",
		renderer:       defaultRenderer(runtime.GOOS),
		languages:      []string{"kor", "eng"},
		dpi:            300,
		psm:            6,
		oem:            3,
		preserveSpaces: true,
		timeout:        2 * time.Minute,
		runCommand:     defaultCommand,
		lookPath:       exec.LookPath,
	}

	for _, option := range options {
		option(e)
	}

	return e
}

// Name 返回引擎名称
func (e *ExecEngine) Name() string {
	return "tesseract-exec"
}

// Available 检查引擎可执行文件是否就绪
func (e *ExecEngine) Available() error {
	if _, err := e.lookPath(e.binary); err != nil {
		return errors.Newf(errors.ErrorTypeNotFound, errors.CodeEngineNotFound,
			"未找到OCR引擎 %s，请先运行 ldg provision", e.binary)
	}
	return nil
}

// RendererAvailable 检查PDF渲染器是否就绪。
// 渲染器缺失只影响PDF识别，图片识别不受影响
func (e *ExecEngine) RendererAvailable() error {
	if _, err := e.lookPath(e.renderer); err != nil {
		return errors.Newf(errors.ErrorTypeNotFound, errors.CodeRenderFailed,
			"未找到PDF渲染器 %s，无法识别PDF（图片不受影响），请安装 Ghostscript", e.renderer)
	}
	return nil
}

// Recognize 识别单个文件
func (e *ExecEngine) Recognize(ctx context.Context, input Input) (*Result, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	if err := statInput(input.Path); err != nil {
		return nil, err
	}
	if err := e.Available(); err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	result := &Result{Engine: e.Name()}

	target := input.Path
	if isPDF(input.Path) {
		rendered, err := e.renderPage(ctx, input)
		if err != nil {
			return nil, err
		}
		defer os.Remove(rendered)
		target = rendered
	}

	if e.preprocess {
		processed, err := preprocessImage(target)
		if err != nil {
			// 预处理失败不阻断识别，记录告警后用原图继续
			e.logger.Warn("图像预处理失败，使用原图识别", "path", target, "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("预处理失败: %v", err))
		} else {
			defer os.Remove(processed)
			target = processed
		}
	}

	text, warnings, err := e.recognizeImage(ctx, target, input)
	if err != nil {
		return nil, err
	}

	result.Text = text
	result.Warnings = append(result.Warnings, warnings...)
	result.Duration = time.Since(start)

	e.logger.Debug("识别完成",
		"path", input.Path,
		"page", input.Page,
		"chars", len(result.Text),
		"duration", result.Duration.String(),
	)
	return result, nil
}

// renderPage 将PDF的指定页渲染为临时PNG文件，返回文件路径。
// 调用方负责删除临时文件
func (e *ExecEngine) renderPage(ctx context.Context, input Input) (string, error) {
	if err := e.RendererAvailable(); err != nil {
		return "", err
	}

	dpi := e.dpi
	if input.DPI > 0 {
		dpi = input.DPI
	}

	e.logger.Debug("渲染PDF页面", "path", input.Path, "page", input.Page, "dpi", dpi)
	return renderPDFPage(ctx, e.runCommand, e.renderer, input.Path, input.Page, dpi)
}

// renderPDFPage 调用 Ghostscript 将 PDF 指定页渲染为临时 PNG，返回文件路径。
// 调用方负责删除临时文件
func renderPDFPage(ctx context.Context, run commandFunc, renderer string, path string, page int, dpi int) (string, error) {
	tmp, err := os.CreateTemp("", "ldg-render-*.png")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeRenderFailed,
			"创建渲染临时文件失败")
	}
	tmpPath := tmp.Name()
	tmp.Close()

	pageArg := strconv.Itoa(page)
	args := []string{
		"-dNOPAUSE", "-dBATCH", "-dSAFER", "-dQUIET",
		"-sDEVICE=png16m",
		"-r" + strconv.Itoa(dpi),
		"-dFirstPage=" + pageArg,
		"-dLastPage=" + pageArg,
		"-sOutputFile=" + tmpPath,
		path,
	}

	_, stderr, err := run(ctx, renderer, args...)
	if err != nil {
		os.Remove(tmpPath)
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), errors.ErrorTypeTemporary, errors.CodeTimeout,
				fmt.Sprintf("渲染超时或取消: %s 第%d页", path, page))
		}
		return "", errors.Newf(errors.ErrorTypeExternal, errors.CodeRenderFailed,
			"渲染PDF失败: %s 第%d页: %s", path, page, firstLines(stderr, 3))
	}

	// 渲染产物为空说明页码超界或PDF损坏
	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		os.Remove(tmpPath)
		return "", errors.Newf(errors.ErrorTypeExternal, errors.CodeRenderFailed,
			"渲染PDF无输出，页码可能超出范围: %s 第%d页", path, page)
	}

	return tmpPath, nil
}

// recognizeImage 对图像执行识别，返回文本与非致命告警
func (e *ExecEngine) recognizeImage(ctx context.Context, imagePath string, input Input) (string, []string, error) {
	languages := e.languages
	if len(input.Languages) > 0 {
		languages = input.Languages
	}

	psm := e.psm
	if input.PSM > 0 {
		psm = input.PSM
	}
	oem := e.oem
	if input.OEM > 0 {
		oem = input.OEM
	}

	args := []string{imagePath, "stdout", "-l", strings.Join(languages, "+")}
	if e.tessdataDir != "" {
		args = append(args, "--tessdata-dir", e.tessdataDir)
	}
	args = append(args, "--psm", strconv.Itoa(psm), "--oem", strconv.Itoa(oem))
	if e.preserveSpaces {
		args = append(args, "-c", "preserve_interword_spaces=1")
	}

	stdout, stderr, err := e.runCommand(ctx, e.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTemporary, errors.CodeTimeout,
				fmt.Sprintf("识别超时或取消: %s", input.Path))
		}
		return "", nil, errors.Newf(errors.ErrorTypeExternal, errors.CodeOCRFailed,
			"识别失败: %s: %s", input.Path, firstLines(stderr, 3))
	}

	var warnings []string
	if msg := strings.TrimSpace(stderr); msg != "" {
		warnings = append(warnings, msg)
	}

	return stdout, warnings, nil
}

// firstLines 取输出前若干行用于错误信息
func firstLines(output string, n int) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return "(无输出)"
	}

	lines := strings.Split(output, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
