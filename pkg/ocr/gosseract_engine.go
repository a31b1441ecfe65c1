//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/otiai10/gosseract/v2"

	"github.com/lomehong/ldg/pkg/errors"
)

// GosseractEngine 进程内 Tesseract 引擎，免去每次识别的进程启动开销
type GosseractEngine struct {
	logger        hclog.Logger
	config        GosseractConfig
	clientFactory func() *gosseract.Client
}

// NewGosseractEngine 创建进程内OCR引擎
func NewGosseractEngine(logger hclog.Logger, config GosseractConfig) Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &GosseractEngine{
		logger:        logger,
		config:        config.withDefaults(runtime.GOOS),
		clientFactory: gosseract.NewClient,
	}
}

// Name 返回引擎名称
func (e *GosseractEngine) Name() string {
	return "gosseract"
}

// Available 检查本机 Tesseract 库是否可用
func (e *GosseractEngine) Available() (err error) {
	// 库缺失时 NewClient 会 panic
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrorTypeNotFound, errors.CodeEngineNotFound,
				"本机 Tesseract 库不可用: %v，请先运行 ldg provision", r)
		}
	}()

	client := e.clientFactory()
	defer client.Close()
	return nil
}

// Recognize 识别单个文件
func (e *GosseractEngine) Recognize(ctx context.Context, input Input) (*Result, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	if err := statInput(input.Path); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{Engine: e.Name()}

	target := input.Path
	if isPDF(input.Path) {
		dpi := e.config.DPI
		if input.DPI > 0 {
			dpi = input.DPI
		}
		rendered, err := renderPDFPage(ctx, defaultCommand, e.config.Renderer, input.Path, input.Page, dpi)
		if err != nil {
			return nil, err
		}
		defer os.Remove(rendered)
		target = rendered
	}

	text, err := e.recognizeImage(target, input)
	if err != nil {
		return nil, err
	}

	result.Text = text
	result.Duration = time.Since(start)

	e.logger.Debug("识别完成",
		"path", input.Path,
		"page", input.Page,
		"chars", len(result.Text),
		"duration", result.Duration.String(),
	)
	return result, nil
}

func (e *GosseractEngine) recognizeImage(imagePath string, input Input) (string, error) {
	client := e.clientFactory()
	defer client.Close()

	languages := e.config.Languages
	if len(input.Languages) > 0 {
		languages = input.Languages
	}
	if err := client.SetLanguage(languages...); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeExternal, errors.CodeOCRFailed,
			fmt.Sprintf("设置识别语言失败: %s", strings.Join(languages, "+")))
	}

	if e.config.TessdataDir != "" {
		if err := client.SetTessdataPrefix(e.config.TessdataDir); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeExternal, errors.CodeOCRFailed,
				"设置训练数据目录失败")
		}
	}

	psm := e.config.PSM
	if input.PSM > 0 {
		psm = input.PSM
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeExternal, errors.CodeOCRFailed,
			"设置页面分割模式失败")
	}

	if e.config.PreserveSpaces {
		if err := client.SetVariable("preserve_interword_spaces", "1"); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeExternal, errors.CodeOCRFailed,
				"设置词间空格保留失败")
		}
	}

	if err := client.SetImage(imagePath); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeExternal, errors.CodeOCRFailed,
			fmt.Sprintf("加载图像失败: %s", imagePath))
	}

	text, err := client.Text()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeExternal, errors.CodeOCRFailed,
			fmt.Sprintf("识别失败: %s", input.Path))
	}

	return text, nil
}
