package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lomehong/ldg/pkg/errors"
)

// fakeCall 一次外部命令调用记录
type fakeCall struct {
	name string
	args []string
}

// fakeCommands 脚本化的外部命令执行，按命令名返回预设结果
type fakeCommands struct {
	mu        sync.Mutex
	calls     []fakeCall
	gsErr     error
	gsStderr  string
	gsNoWrite bool
	ocrText   string
	ocrStderr string
	ocrErr    error
}

func (f *fakeCommands) run(ctx context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{name: name, args: args})
	f.mu.Unlock()

	if name == "tesseract" {
		if f.ocrErr != nil {
			return "", f.ocrStderr, f.ocrErr
		}
		return f.ocrText, f.ocrStderr, nil
	}

	// 渲染器分支：向 -sOutputFile= 指定的路径写入渲染产物
	if f.gsErr != nil {
		return "", f.gsStderr, f.gsErr
	}
	if !f.gsNoWrite {
		for _, arg := range args {
			if strings.HasPrefix(arg, "-sOutputFile=") {
				out := strings.TrimPrefix(arg, "-sOutputFile=")
				if err := os.WriteFile(out, []byte("fake-png"), 0o644); err != nil {
					return "", "", err
				}
			}
		}
	}
	return "", f.gsStderr, nil
}

func (f *fakeCommands) recorded() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]fakeCall, len(f.calls))
	copy(calls, f.calls)
	return calls
}

// fakeLookPath 仅认可列表内的可执行文件
func fakeLookPath(available ...string) lookPathFunc {
	return func(name string) (string, error) {
		for _, a := range available {
			if a == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", fmt.Errorf("未找到可执行文件: %s", name)
	}
}

func newFakeExecEngine(fake *fakeCommands, available []string, options ...ExecEngineOption) *ExecEngine {
	base := []ExecEngineOption{
		WithBinary("tesseract"),
		WithRenderer("gs"),
		WithCommandFunc(fake.run),
		WithLookPathFunc(fakeLookPath(available...)),
	}
	return NewExecEngine(nil, append(base, options...)...)
}

func writeInputFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("input-bytes"), 0o644))
	return path
}

// hasArgPair 判断参数列表中是否存在相邻的 flag value 对
func hasArgPair(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

// TestExecEngineRecognizeImage 测试图像识别的命令组装
func TestExecEngineRecognizeImage(t *testing.T) {
	fake := &fakeCommands{ocrText: "안녕하세요 hello"}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"})
	image := writeInputFile(t, "scan.png")

	result, err := engine.Recognize(context.Background(), Input{Path: image})
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요 hello", result.Text)
	assert.Equal(t, "tesseract-exec", result.Engine)
	assert.Empty(t, result.Warnings)

	calls := fake.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "tesseract", calls[0].name)
	require.GreaterOrEqual(t, len(calls[0].args), 4)
	assert.Equal(t, image, calls[0].args[0])
	assert.Equal(t, "stdout", calls[0].args[1])
	assert.True(t, hasArgPair(calls[0].args, "-l", "kor+eng"))
	assert.True(t, hasArgPair(calls[0].args, "--psm", "6"))
	assert.True(t, hasArgPair(calls[0].args, "--oem", "3"))
	assert.True(t, hasArgPair(calls[0].args, "-c", "preserve_interword_spaces=1"))
}

// TestExecEngineRecognizePDF 测试PDF先渲染后识别，且清理渲染临时文件
func TestExecEngineRecognizePDF(t *testing.T) {
	fake := &fakeCommands{ocrText: "계약서 본문"}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"})
	pdf := writeInputFile(t, "contract.pdf")

	result, err := engine.Recognize(context.Background(), Input{Path: pdf, Page: 2, DPI: 150})
	require.NoError(t, err)
	assert.Equal(t, "계약서 본문", result.Text)

	calls := fake.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "gs", calls[0].name)
	assert.Contains(t, calls[0].args, "-r150")
	assert.Contains(t, calls[0].args, "-dFirstPage=2")
	assert.Contains(t, calls[0].args, "-dLastPage=2")
	assert.Contains(t, calls[0].args, "-sDEVICE=png16m")
	assert.Equal(t, pdf, calls[0].args[len(calls[0].args)-1])

	// 识别对象是渲染出的临时PNG，识别结束后应已删除
	assert.Equal(t, "tesseract", calls[1].name)
	rendered := calls[1].args[0]
	assert.Contains(t, rendered, "ldg-render-")
	assert.True(t, strings.HasSuffix(rendered, ".png"))
	_, statErr := os.Stat(rendered)
	assert.True(t, os.IsNotExist(statErr))
}

// TestExecEngineEngineMissing 测试引擎缺失时快速失败
func TestExecEngineEngineMissing(t *testing.T) {
	fake := &fakeCommands{}
	engine := newFakeExecEngine(fake, []string{"gs"})
	image := writeInputFile(t, "scan.png")

	_, err := engine.Recognize(context.Background(), Input{Path: image})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeEngineNotFound))
	assert.Contains(t, err.Error(), "ldg provision")
	assert.Empty(t, fake.recorded())
}

// TestExecEngineRendererMissing 测试渲染器缺失只影响PDF，图像识别不受影响
func TestExecEngineRendererMissing(t *testing.T) {
	fake := &fakeCommands{ocrText: "text"}
	engine := newFakeExecEngine(fake, []string{"tesseract"})

	pdf := writeInputFile(t, "doc.pdf")
	_, err := engine.Recognize(context.Background(), Input{Path: pdf})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRenderFailed))
	assert.Contains(t, err.Error(), "Ghostscript")

	image := writeInputFile(t, "doc.png")
	result, err := engine.Recognize(context.Background(), Input{Path: image})
	require.NoError(t, err)
	assert.Equal(t, "text", result.Text)
}

// TestExecEngineRenderFailure 测试渲染失败时携带渲染器输出
func TestExecEngineRenderFailure(t *testing.T) {
	fake := &fakeCommands{
		gsErr:    fmt.Errorf("exit status 1"),
		gsStderr: "GPL Ghostscript: Unrecoverable error\nexit code 1",
	}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"})
	pdf := writeInputFile(t, "broken.pdf")

	_, err := engine.Recognize(context.Background(), Input{Path: pdf})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRenderFailed))
	assert.Contains(t, err.Error(), "GPL Ghostscript")
}

// TestExecEngineRenderEmptyOutput 测试渲染产物为空时报页码超界
func TestExecEngineRenderEmptyOutput(t *testing.T) {
	fake := &fakeCommands{gsNoWrite: true}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"})
	pdf := writeInputFile(t, "short.pdf")

	_, err := engine.Recognize(context.Background(), Input{Path: pdf, Page: 99})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRenderFailed))
	assert.Contains(t, err.Error(), "页码可能超出范围")
}

// TestExecEngineOCRFailure 测试识别失败时携带引擎错误输出
func TestExecEngineOCRFailure(t *testing.T) {
	fake := &fakeCommands{
		ocrErr:    fmt.Errorf("exit status 1"),
		ocrStderr: "Error opening data file /usr/share/tessdata/kor.traineddata",
	}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"})
	image := writeInputFile(t, "scan.png")

	_, err := engine.Recognize(context.Background(), Input{Path: image})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeOCRFailed))
	assert.Contains(t, err.Error(), "Error opening data file")
}

// TestExecEngineContextCancelled 测试上下文取消被归类为超时
func TestExecEngineContextCancelled(t *testing.T) {
	fake := &fakeCommands{ocrErr: fmt.Errorf("signal: killed")}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"})
	image := writeInputFile(t, "scan.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Recognize(ctx, Input{Path: image})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeTimeout))
	assert.True(t, errors.IsRetriable(err))
}

// TestExecEngineLanguageOverride 测试按次覆盖识别语言
func TestExecEngineLanguageOverride(t *testing.T) {
	fake := &fakeCommands{ocrText: "english only"}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"})
	image := writeInputFile(t, "scan.png")

	_, err := engine.Recognize(context.Background(), Input{Path: image, Languages: []string{"eng"}})
	require.NoError(t, err)

	calls := fake.recorded()
	require.Len(t, calls, 1)
	assert.True(t, hasArgPair(calls[0].args, "-l", "eng"))
}

// TestExecEnginePerInputModes 测试单次输入的PSM/OEM覆盖引擎默认值
func TestExecEnginePerInputModes(t *testing.T) {
	fake := &fakeCommands{ocrText: "text"}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"},
		WithPSM(6), WithOEM(3))
	image := writeInputFile(t, "scan.png")

	_, err := engine.Recognize(context.Background(), Input{Path: image, PSM: 11, OEM: 1})
	require.NoError(t, err)

	calls := fake.recorded()
	require.Len(t, calls, 1)
	assert.True(t, hasArgPair(calls[0].args, "--psm", "11"))
	assert.True(t, hasArgPair(calls[0].args, "--oem", "1"))

	// 零值不覆盖，沿用引擎配置
	_, err = engine.Recognize(context.Background(), Input{Path: image})
	require.NoError(t, err)

	calls = fake.recorded()
	require.Len(t, calls, 2)
	assert.True(t, hasArgPair(calls[1].args, "--psm", "6"))
	assert.True(t, hasArgPair(calls[1].args, "--oem", "3"))
}

// TestExecEngineTessdataDir 测试显式训练数据目录传递给引擎
func TestExecEngineTessdataDir(t *testing.T) {
	fake := &fakeCommands{ocrText: "text"}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"},
		WithTessdataDir("/opt/tessdata"))
	image := writeInputFile(t, "scan.png")

	_, err := engine.Recognize(context.Background(), Input{Path: image})
	require.NoError(t, err)

	calls := fake.recorded()
	require.Len(t, calls, 1)
	assert.True(t, hasArgPair(calls[0].args, "--tessdata-dir", "/opt/tessdata"))
}

// TestExecEngineStderrWarnings 测试识别成功时标准错误输出转为告警
func TestExecEngineStderrWarnings(t *testing.T) {
	fake := &fakeCommands{
		ocrText:   "text",
		ocrStderr: "Estimating resolution as 300",
	}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"})
	image := writeInputFile(t, "scan.png")

	result, err := engine.Recognize(context.Background(), Input{Path: image})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Estimating resolution")
}

// TestExecEnginePreprocessFallback 测试预处理失败时退回原图继续识别
func TestExecEnginePreprocessFallback(t *testing.T) {
	fake := &fakeCommands{ocrText: "text"}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"},
		WithPreprocess(true))
	// 内容不是合法图像，预处理必然失败
	image := writeInputFile(t, "scan.png")

	result, err := engine.Recognize(context.Background(), Input{Path: image})
	require.NoError(t, err)
	assert.Equal(t, "text", result.Text)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "预处理失败")

	calls := fake.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, image, calls[0].args[0])
}

// TestExecEngineInputMissing 测试输入文件不存在
func TestExecEngineInputMissing(t *testing.T) {
	fake := &fakeCommands{}
	engine := newFakeExecEngine(fake, []string{"tesseract", "gs"})

	_, err := engine.Recognize(context.Background(), Input{Path: filepath.Join(t.TempDir(), "missing.pdf")})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePDFNotFound))
	assert.Empty(t, fake.recorded())
}

// TestFirstLines 测试错误输出截断
func TestFirstLines(t *testing.T) {
	assert.Equal(t, "(无输出)", firstLines("", 3))
	assert.Equal(t, "(无输出)", firstLines("  \n ", 3))
	assert.Equal(t, "one", firstLines("one", 3))
	assert.Equal(t, "a\nb\nc", firstLines("a\nb\nc\nd\ne", 3))
}

// TestDefaultRenderer 测试按平台选择渲染器
func TestDefaultRenderer(t *testing.T) {
	assert.Equal(t, "gswin64c", defaultRenderer("windows"))
	assert.Equal(t, "gs", defaultRenderer("linux"))
	assert.Equal(t, "gs", defaultRenderer("darwin"))
}
