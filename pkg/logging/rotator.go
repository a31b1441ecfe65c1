package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogRotator 日志轮转器，按大小轮转并按数量和保留时间清理备份
type LogRotator struct {
	filePath   string        // 日志文件路径
	maxSize    int64         // 日志文件最大大小（字节）
	maxBackups int           // 日志文件最大备份数量
	maxAge     time.Duration // 日志文件最大保留时间
	size       int64         // 当前文件大小
	file       *os.File      // 当前文件
	mu         sync.Mutex
}

// NewLogRotator 创建一个新的日志轮转器
func NewLogRotator(filePath string, maxSize int64, maxBackups int, maxAge time.Duration) *LogRotator {
	return &LogRotator{
		filePath:   filePath,
		maxSize:    maxSize,
		maxBackups: maxBackups,
		maxAge:     maxAge,
	}
}

// Write 实现io.Writer接口
func (r *LogRotator) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	n, err = r.file.Write(p)
	if err != nil {
		return n, err
	}
	r.size += int64(n)

	if r.maxSize > 0 && r.size >= r.maxSize {
		if err := r.rotate(); err != nil {
			return n, err
		}
	}

	return n, nil
}

// Close 关闭日志轮转器
func (r *LogRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// openFile 打开日志文件
func (r *LogRotator) openFile() error {
	if err := os.MkdirAll(filepath.Dir(r.filePath), 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	file, err := os.OpenFile(r.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("获取日志文件信息失败: %w", err)
	}

	r.file = file
	r.size = info.Size()
	return nil
}

// rotate 轮转当前文件并清理旧备份
func (r *LogRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("关闭日志文件失败: %w", err)
		}
		r.file = nil
	}

	// 按时间戳重命名当前文件
	ext := filepath.Ext(r.filePath)
	base := strings.TrimSuffix(r.filePath, ext)
	backupPath := fmt.Sprintf("%s.%s%s", base, time.Now().Format("20060102-150405"), ext)
	if err := os.Rename(r.filePath, backupPath); err != nil {
		return fmt.Errorf("重命名日志文件失败: %w", err)
	}

	if err := r.cleanBackups(); err != nil {
		return fmt.Errorf("清理旧日志文件失败: %w", err)
	}

	return r.openFile()
}

// cleanBackups 删除超过数量或保留时间的备份文件
func (r *LogRotator) cleanBackups() error {
	dir := filepath.Dir(r.filePath)
	base := filepath.Base(r.filePath)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("读取日志目录失败: %w", err)
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	var backups []backup
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == base || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{
			path:    filepath.Join(dir, name),
			modTime: info.ModTime(),
		})
	}

	// 新文件在前
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.After(backups[j].modTime)
	})

	// 超出数量的删除
	if r.maxBackups > 0 && len(backups) > r.maxBackups {
		for _, b := range backups[r.maxBackups:] {
			if err := os.Remove(b.path); err != nil {
				return fmt.Errorf("删除旧日志文件失败: %w", err)
			}
		}
		backups = backups[:r.maxBackups]
	}

	// 超过保留时间的删除
	if r.maxAge > 0 {
		cutoff := time.Now().Add(-r.maxAge)
		for _, b := range backups {
			if b.modTime.Before(cutoff) {
				if err := os.Remove(b.path); err != nil {
					return fmt.Errorf("删除过期日志文件失败: %w", err)
				}
			}
		}
	}

	return nil
}

// MultiWriter 多输出写入器，用于命令输出同时写入日志文件和终端
type MultiWriter struct {
	writers []io.Writer
}

// NewMultiWriter 创建一个新的多输出写入器
func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write 实现io.Writer接口
func (w *MultiWriter) Write(p []byte) (n int, err error) {
	for _, writer := range w.writers {
		n, err = writer.Write(p)
		if err != nil {
			return n, err
		}
	}
	return len(p), nil
}

// Close 关闭所有可关闭的输出
func (w *MultiWriter) Close() error {
	var lastErr error
	for _, writer := range w.writers {
		if closer, ok := writer.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}
