package tessdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lomehong/ldg/pkg/errors"
)

func emptyGetenv(string) string { return "" }

// TestStoreResolveOverride 测试显式配置目录优先
func TestStoreResolveOverride(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil, WithDir(dir), WithGetenv(emptyGetenv))

	resolved, err := store.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dir, resolved)
}

// TestStoreResolveTessdataPrefix 测试 TESSDATA_PREFIX 解析
func TestStoreResolveTessdataPrefix(t *testing.T) {
	// 直接指向 tessdata 目录
	direct := filepath.Join(t.TempDir(), "tessdata")
	require.NoError(t, os.MkdirAll(direct, 0o755))

	store := NewStore(nil, WithGetenv(func(key string) string {
		if key == "TESSDATA_PREFIX" {
			return direct
		}
		return ""
	}))
	resolved, err := store.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, direct, resolved)

	// 指向父目录时取其下的 tessdata 子目录
	parent := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(parent, "tessdata"), 0o755))

	store = NewStore(nil, WithGetenv(func(key string) string {
		if key == "TESSDATA_PREFIX" {
			return parent
		}
		return ""
	}))
	resolved, err = store.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(parent, "tessdata"), resolved)
}

// TestStoreResolveDarwinBrew 测试 darwin 下通过 brew 前缀解析
func TestStoreResolveDarwinBrew(t *testing.T) {
	store := NewStore(nil,
		WithGOOS("darwin"),
		WithGetenv(emptyGetenv),
		WithBrewPrefix(func(ctx context.Context) (string, error) {
			return "/opt/homebrew", nil
		}),
	)

	resolved, err := store.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/opt/homebrew", "share", "tessdata"), resolved)
}

// TestStoreResolveLinuxMissing 测试 linux 下候选目录均不存在时报错
func TestStoreResolveLinuxMissing(t *testing.T) {
	if dirExists("/usr/share/tessdata") ||
		dirExists("/usr/share/tesseract-ocr/5/tessdata") ||
		dirExists("/usr/share/tesseract-ocr/4.00/tessdata") {
		t.Skip("本机已安装 tesseract，跳过未安装场景")
	}

	store := NewStore(nil, WithGOOS("linux"), WithGetenv(emptyGetenv))

	_, err := store.Resolve(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDataDirUnresolved))
}

// TestStoreResolveWindows 测试 windows 下的固定安装目录
func TestStoreResolveWindows(t *testing.T) {
	store := NewStore(nil,
		WithGOOS("windows"),
		WithGetenv(func(key string) string {
			if key == "ProgramFiles" {
				return `C:\Program Files`
			}
			return ""
		}),
	)

	resolved, err := store.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(`C:\Program Files`, "Tesseract-OCR", "tessdata"), resolved)
}

// TestStoreHasAndInstalled 测试语言文件的存在性检查与列举
func TestStoreHasAndInstalled(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil, WithDir(dir), WithGetenv(emptyGetenv))
	ctx := context.Background()

	has, err := store.Has(ctx, "kor")
	require.NoError(t, err)
	assert.False(t, has)

	// 空文件不算已安装
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kor.traineddata"), nil, 0o644))
	has, err = store.Has(ctx, "kor")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "kor.traineddata"), []byte("数据"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eng.traineddata"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644))

	has, err = store.Has(ctx, "kor")
	require.NoError(t, err)
	assert.True(t, has)

	installed, err := store.Installed(ctx)
	require.NoError(t, err)
	require.Len(t, installed, 2)
	assert.Equal(t, "eng", installed[0].Language)
	assert.Equal(t, "kor", installed[1].Language)
	assert.Greater(t, installed[1].Size, int64(0))
}

// TestStoreTierRecords 测试层级记录的写入与读取
func TestStoreTierRecords(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil, WithDir(dir), WithGetenv(emptyGetenv))
	ctx := context.Background()

	tier, err := store.TierFor(ctx, "kor")
	require.NoError(t, err)
	assert.Equal(t, Tier(""), tier)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "kor.traineddata"), []byte("数据"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eng.traineddata"), []byte("data"), 0o644))
	require.NoError(t, store.RecordTier(ctx, "kor", TierFast))

	tier, err = store.TierFor(ctx, "kor")
	require.NoError(t, err)
	assert.Equal(t, TierFast, tier)

	// 记录文件不计入已安装列表，目录外部放入的文件没有层级
	installed, err := store.Installed(ctx)
	require.NoError(t, err)
	require.Len(t, installed, 2)
	assert.Equal(t, "eng", installed[0].Language)
	assert.Equal(t, Tier(""), installed[0].Tier)
	assert.Equal(t, "kor", installed[1].Language)
	assert.Equal(t, TierFast, installed[1].Tier)
}

// TestStoreRemove 测试删除语言文件
func TestStoreRemove(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil, WithDir(dir), WithGetenv(emptyGetenv))
	ctx := context.Background()

	path := filepath.Join(dir, "kor.traineddata")
	require.NoError(t, os.WriteFile(path, []byte("数据"), 0o644))

	require.NoError(t, store.Remove(ctx, "kor"))
	assert.NoFileExists(t, path)

	// 再次删除返回未找到错误
	err := store.Remove(ctx, "kor")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
