//go:build !gosseract

package ocr

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/errors"
)

// NewGosseractEngine 返回不可用的占位引擎。
// 进程内引擎需要用 -tags gosseract 构建并安装本机 libtesseract
func NewGosseractEngine(logger hclog.Logger, config GosseractConfig) Engine {
	return &gosseractStub{}
}

type gosseractStub struct{}

func (e *gosseractStub) Name() string {
	return "gosseract"
}

func (e *gosseractStub) Available() error {
	return errors.New(errors.ErrorTypePermanent, errors.CodeEngineNotFound,
		"此构建未包含进程内引擎，请使用 -tags gosseract 重新构建，或改用默认的命令行引擎")
}

func (e *gosseractStub) Recognize(ctx context.Context, input Input) (*Result, error) {
	return nil, e.Available()
}
