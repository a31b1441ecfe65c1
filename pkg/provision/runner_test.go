package provision

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lomehong/ldg/pkg/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("本机没有 sh，跳过")
	}
}

// TestExecRunnerCapturesOutput 测试命令输出捕获
func TestExecRunnerCapturesOutput(t *testing.T) {
	requireShell(t)

	runner := NewExecRunner(nil)
	result, err := runner.Run(context.Background(), "sh", "-c", "echo hello; echo world 1>&2")
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "hello")
	assert.Contains(t, result.Output, "world")
}

// TestExecRunnerNonZeroExit 测试非零退出码返回错误
func TestExecRunnerNonZeroExit(t *testing.T) {
	requireShell(t)

	runner := NewExecRunner(nil)
	result, err := runner.Run(context.Background(), "sh", "-c", "echo boom; exit 3")
	require.Error(t, err)

	assert.Equal(t, 3, result.ExitCode)
	assert.True(t, errors.IsCode(err, errors.CodeInstallFailed))
	assert.Contains(t, err.Error(), "boom")
}

// TestExecRunnerTimeout 测试命令超时
func TestExecRunnerTimeout(t *testing.T) {
	requireShell(t)

	runner := NewExecRunner(nil, WithTimeout(100*time.Millisecond))
	_, err := runner.Run(context.Background(), "sh", "-c", "sleep 5")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeTimeout))
}

// TestExecRunnerLogWriter 测试命令输出镜像到日志写入器
func TestExecRunnerLogWriter(t *testing.T) {
	requireShell(t)

	var log bytes.Buffer
	runner := NewExecRunner(nil, WithLogWriter(&log))

	_, err := runner.Run(context.Background(), "sh", "-c", "echo installed")
	require.NoError(t, err)

	assert.Contains(t, log.String(), "$ sh -c echo installed")
	assert.Contains(t, log.String(), "installed")
}

// TestExecRunnerLookPath 测试可执行文件查找
func TestExecRunnerLookPath(t *testing.T) {
	requireShell(t)

	runner := NewExecRunner(nil)
	path, err := runner.LookPath("sh")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	_, err = runner.LookPath("ldg-definitely-not-a-binary")
	assert.Error(t, err)
}

// TestTailLines 测试输出截断
func TestTailLines(t *testing.T) {
	assert.Equal(t, "(无输出)", tailLines("", 3))
	assert.Equal(t, "a\nb", tailLines("a\nb", 3))
	assert.Equal(t, "c\nd\ne", tailLines("a\nb\nc\nd\ne", 3))
}
