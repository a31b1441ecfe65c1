package tessdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lomehong/ldg/pkg/errors"
)

// TestDownloaderDownload 测试下载写入目标路径
func TestDownloaderDownload(t *testing.T) {
	payload := strings.Repeat("k", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "tessdata", "kor.traineddata")
	d := NewDownloader(nil, WithMinSize(1024), WithRetry(0, time.Millisecond))

	require.NoError(t, d.Download(context.Background(), server.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	// 临时文件已清理
	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// TestDownloaderTooSmall 测试过小的响应被拒绝且不落盘
func TestDownloaderTooSmall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>error</html>"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "kor.traineddata")
	d := NewDownloader(nil, WithMinSize(1024), WithRetry(3, time.Millisecond))

	err := d.Download(context.Background(), server.URL, dest)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDataInvalid))
	assert.NoFileExists(t, dest)
}

// TestDownloaderNotFound 测试404不重试
func TestDownloaderNotFound(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "kor.traineddata")
	d := NewDownloader(nil, WithMinSize(1), WithRetry(3, time.Millisecond))

	err := d.Download(context.Background(), server.URL, dest)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDownloadFailed))
	assert.Equal(t, int32(1), attempts.Load())
}

// TestDownloaderRetriesServerError 测试服务端错误按退避重试
func TestDownloaderRetriesServerError(t *testing.T) {
	payload := strings.Repeat("k", 2048)
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "internal", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(payload))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "kor.traineddata")
	d := NewDownloader(nil, WithMinSize(1024), WithRetry(3, time.Millisecond))

	require.NoError(t, d.Download(context.Background(), server.URL, dest))
	assert.Equal(t, int32(3), attempts.Load())
	assert.FileExists(t, dest)
}

// TestDownloaderRateLimit 测试限速下载仍能完成
func TestDownloaderRateLimit(t *testing.T) {
	payload := strings.Repeat("k", 2048)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "kor.traineddata")
	d := NewDownloader(nil,
		WithMinSize(1024),
		WithRetry(0, time.Millisecond),
		WithRateLimit(1<<20),
	)

	require.NoError(t, d.Download(context.Background(), server.URL, dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), info.Size())
}

// TestDownloaderSetRateLimit 测试运行中调整限速
func TestDownloaderSetRateLimit(t *testing.T) {
	payload := strings.Repeat("k", 2048)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	d := NewDownloader(nil, WithMinSize(1024), WithRetry(0, time.Millisecond))

	d.SetRateLimit(1 << 20)
	dest := filepath.Join(t.TempDir(), "kor.traineddata")
	require.NoError(t, d.Download(context.Background(), server.URL, dest))

	// 取消限速后继续可用
	d.SetRateLimit(0)
	dest = filepath.Join(t.TempDir(), "eng.traineddata")
	require.NoError(t, d.Download(context.Background(), server.URL, dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), info.Size())
}

// TestDownloaderContextCancelled 测试取消上下文中止下载
func TestDownloaderContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("k", 2048)))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "kor.traineddata")
	d := NewDownloader(nil, WithMinSize(1), WithRetry(2, time.Millisecond))

	err := d.Download(ctx, server.URL, dest)
	require.Error(t, err)
	assert.NoFileExists(t, dest)
}
