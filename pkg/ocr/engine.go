package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lomehong/ldg/pkg/errors"
)

// Engine OCR引擎抽象
type Engine interface {
	// Name 返回引擎名称
	Name() string
	// Available 检查引擎是否可用，不可用时返回带指引的错误
	Available() error
	// Recognize 识别单个文件（PDF按页渲染后识别，图片直接识别）
	Recognize(ctx context.Context, input Input) (*Result, error)
}

// Input 识别输入
type Input struct {
	// Path 文件路径，支持 PDF 与常见图片格式
	Path string
	// Page PDF 页码，从1开始；0 表示第1页；图片忽略
	Page int
	// Languages 覆盖引擎默认语言
	Languages []string
	// DPI 覆盖引擎默认渲染分辨率
	DPI int
	// PSM 大于0时覆盖引擎默认页面分割模式
	PSM int
	// OEM 大于0时覆盖引擎默认识别模式
	OEM int
}

// normalize 校验并补全输入
func (in *Input) normalize() error {
	if in.Path == "" {
		return errors.New(errors.ErrorTypeValidation, errors.CodeOCRFailed, "识别输入路径不能为空")
	}
	if in.Page < 0 {
		return errors.Newf(errors.ErrorTypeValidation, errors.CodeOCRFailed,
			"页码必须大于等于1: %d", in.Page)
	}
	if in.Page == 0 {
		in.Page = 1
	}
	return nil
}

// Result 识别结果
type Result struct {
	// Text 识别出的纯文本
	Text string
	// Engine 产生结果的引擎名称
	Engine string
	// Duration 识别耗时
	Duration time.Duration
	// Warnings 引擎产生的非致命告警
	Warnings []string
}

// isPDF 按扩展名判断是否为PDF
func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// statInput 检查输入文件存在
func statInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Newf(errors.ErrorTypeNotFound, errors.CodePDFNotFound,
				"文件不存在: %s", path)
		}
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeOCRFailed, "检查输入文件失败")
	}
	if info.IsDir() {
		return errors.Newf(errors.ErrorTypeValidation, errors.CodeOCRFailed,
			"输入是目录而非文件: %s", path)
	}
	return nil
}
