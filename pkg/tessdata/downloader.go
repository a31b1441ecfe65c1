package tessdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/lomehong/ldg/pkg/errors"
)

// 限速器的突发窗口下限，避免单次读取超过突发量导致永久阻塞
const minBurstBytes = 64 * 1024

// Downloader 负责下载训练数据文件，失败时按退避策略重试
type Downloader struct {
	logger     hclog.Logger
	client     *http.Client
	minSize    int64
	maxRetries int
	retryDelay time.Duration

	mu      sync.RWMutex
	limiter *rate.Limiter
}

// DownloaderOption 下载器配置选项
type DownloaderOption func(*Downloader)

// WithHTTPClient 设置HTTP客户端
func WithHTTPClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRateLimit 设置下载限速，单位字节每秒，0表示不限速
func WithRateLimit(bytesPerSecond int) DownloaderOption {
	return func(d *Downloader) {
		d.limiter = newRateLimiter(bytesPerSecond)
	}
}

// newRateLimiter 按字节速率构造限速器，非正数返回nil
func newRateLimiter(bytesPerSecond int) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := bytesPerSecond
	if burst < minBurstBytes {
		burst = minBurstBytes
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

// WithMinSize 设置文件最小字节数，低于该值视为无效下载
func WithMinSize(minSize int64) DownloaderOption {
	return func(d *Downloader) {
		d.minSize = minSize
	}
}

// WithRetry 设置重试次数与初始退避时间
func WithRetry(maxRetries int, retryDelay time.Duration) DownloaderOption {
	return func(d *Downloader) {
		d.maxRetries = maxRetries
		d.retryDelay = retryDelay
	}
}

// NewDownloader 创建一个训练数据下载器
func NewDownloader(logger hclog.Logger, options ...DownloaderOption) *Downloader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	d := &Downloader{
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Minute},
		minSize:    1 << 20,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
	}

	for _, option := range options {
		option(d)
	}

	return d
}

// SetRateLimit 运行中调整下载限速，单位字节每秒，0表示取消限速。
// 配置热加载时由监听器调用
func (d *Downloader) SetRateLimit(bytesPerSecond int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limiter = newRateLimiter(bytesPerSecond)
}

func (d *Downloader) rateLimiter() *rate.Limiter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.limiter
}

// Download 下载文件到目标路径，先写入临时文件再原子重命名，
// 目标路径上不会出现不完整的文件
func (d *Downloader) Download(ctx context.Context, url string, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypePermanent, errors.CodeDataDirUnresolved,
			"无法创建训练数据目录")
	}

	return errors.RetryWithBackoff(ctx, d.logger, "下载训练数据", d.maxRetries, d.retryDelay, func() error {
		return d.downloadOnce(ctx, url, dest)
	})
}

func (d *Downloader) downloadOnce(ctx context.Context, url string, dest string) error {
	start := time.Now()
	d.logger.Info("开始下载训练数据", "url", url, "dest", dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypePermanent, errors.CodeDownloadFailed,
			"构造下载请求失败")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeTemporary, errors.CodeDownloadFailed,
			"下载请求失败")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return errors.Newf(errors.ErrorTypeTemporary, errors.CodeDownloadFailed,
			"下载失败，服务端错误: %s", resp.Status)
	default:
		return errors.Newf(errors.ErrorTypePermanent, errors.CodeDownloadFailed,
			"下载失败: %s (%s)", resp.Status, url)
	}

	written, err := d.writeTemp(ctx, resp.Body, dest)
	if err != nil {
		return err
	}

	d.logger.Info("训练数据下载完成",
		"dest", dest,
		"size", written,
		"duration", time.Since(start).String(),
	)
	return nil
}

// writeTemp 将响应体写入同目录临时文件，校验通过后重命名到目标路径
func (d *Downloader) writeTemp(ctx context.Context, body io.Reader, dest string) (int64, error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".tmp-*")
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypePermanent, errors.CodeDownloadFailed,
			"创建临时文件失败")
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	reader := body
	if limiter := d.rateLimiter(); limiter != nil {
		reader = &throttledReader{ctx: ctx, r: body, limiter: limiter}
	}

	written, err := io.Copy(tmp, reader)
	if err != nil {
		cleanup()
		return 0, errors.Wrap(err, errors.ErrorTypeTemporary, errors.CodeDownloadFailed,
			"写入训练数据失败")
	}

	if d.minSize > 0 && written < d.minSize {
		cleanup()
		return 0, errors.Newf(errors.ErrorTypePermanent, errors.CodeDataInvalid,
			"下载的文件过小 (%d 字节，至少 %d 字节)，可能是错误页面", written, d.minSize)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, errors.Wrap(err, errors.ErrorTypeTemporary, errors.CodeDownloadFailed,
			"关闭临时文件失败")
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, errors.Wrap(err, errors.ErrorTypePermanent, errors.CodeDownloadFailed,
			"重命名训练数据文件失败")
	}

	return written, nil
}

// throttledReader 按限速器节流的读取器
type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	// 单次读取不超过突发量，否则 WaitN 永远无法满足
	if burst := tr.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := tr.r.Read(p)
	if n > 0 {
		if werr := tr.limiter.WaitN(tr.ctx, n); werr != nil {
			return n, fmt.Errorf("下载限速等待失败: %w", werr)
		}
	}
	return n, err
}
