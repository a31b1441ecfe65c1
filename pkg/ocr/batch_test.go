package ocr

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/events"
)

// fakeEngine 按文件名返回预设文本或错误
type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	texts map[string]string
	fails map[string]error
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Available() error { return nil }

func (f *fakeEngine) Recognize(ctx context.Context, input Input) (*Result, error) {
	name := filepath.Base(input.Path)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	if err, ok := f.fails[name]; ok {
		return nil, err
	}
	return &Result{Text: f.texts[name], Engine: f.Name()}, nil
}

func writeBatchPDFs(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0o644))
	}
}

// TestBatchProcessDirectory 测试批量识别：单文件失败不中止整批
func TestBatchProcessDirectory(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "out")
	writeBatchPDFs(t, inputDir, "a.pdf", "b.pdf", "c.pdf")

	engine := &fakeEngine{
		texts: map[string]string{
			"a.pdf": "문서 A",
			"c.pdf": "문서 C",
		},
		fails: map[string]error{
			"b.pdf": errors.New(errors.ErrorTypeExternal, errors.CodeOCRFailed, "识别失败"),
		},
	}
	processor := NewBatchProcessor(nil, engine, WithWorkers(2))

	result, err := processor.ProcessDirectory(context.Background(), inputDir, outputDir)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Failures["b.pdf"], "识别失败")

	data, err := os.ReadFile(filepath.Join(outputDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "문서 A", string(data))

	data, err = os.ReadFile(filepath.Join(outputDir, "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "문서 C", string(data))

	_, err = os.Stat(filepath.Join(outputDir, "b.txt"))
	assert.True(t, os.IsNotExist(err))

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Len(t, engine.calls, 3)
}

// TestBatchProcessDirectoryEmpty 测试空目录直接返回且不创建输出目录
func TestBatchProcessDirectoryEmpty(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "out")

	processor := NewBatchProcessor(nil, &fakeEngine{})
	result, err := processor.ProcessDirectory(context.Background(), inputDir, outputDir)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, result.Failed)

	_, err = os.Stat(outputDir)
	assert.True(t, os.IsNotExist(err))
}

// TestBatchProcessDirectoryMissing 测试输入目录不存在
func TestBatchProcessDirectoryMissing(t *testing.T) {
	processor := NewBatchProcessor(nil, &fakeEngine{})

	_, err := processor.ProcessDirectory(context.Background(), filepath.Join(t.TempDir(), "none"), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePDFNotFound))
}

// TestBatchProcessDirectoryNotDir 测试输入路径是文件而非目录
func TestBatchProcessDirectoryNotDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "input.pdf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	processor := NewBatchProcessor(nil, &fakeEngine{})
	_, err := processor.ProcessDirectory(context.Background(), file, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

// TestBatchProcessDirectoryEvents 测试每个文件发布一条识别事件
func TestBatchProcessDirectoryEvents(t *testing.T) {
	inputDir := t.TempDir()
	writeBatchPDFs(t, inputDir, "a.pdf", "b.pdf")

	em := events.NewEventManager(nil, events.WithMaxEvents(16))
	engine := &fakeEngine{
		texts: map[string]string{"a.pdf": "A"},
		fails: map[string]error{
			"b.pdf": errors.New(errors.ErrorTypeExternal, errors.CodeOCRFailed, "识别失败"),
		},
	}
	processor := NewBatchProcessor(nil, engine, WithEvents(em))

	_, err := processor.ProcessDirectory(context.Background(), inputDir, filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	published := em.GetEvents(0, 0, events.TypeOCRFile, "")
	require.Len(t, published, 2)
	for _, event := range published {
		assert.Equal(t, "ocr", event.Source)
		assert.Contains(t, event.Data, "success")
	}
}
