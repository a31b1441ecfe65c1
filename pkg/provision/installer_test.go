package provision

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lomehong/ldg/pkg/errors"
)

// fakeRunner 受控的命令执行器，记录执行历史并返回脚本化结果
type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	outputs  map[string]string
	failures map[string]error
	paths    map[string]string
	onRun    func(command string)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs:  make(map[string]string),
		failures: make(map[string]error),
		paths:    make(map[string]string),
	}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	f.mu.Lock()
	command := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.commands = append(f.commands, command)
	hook := f.onRun
	f.mu.Unlock()

	if hook != nil {
		hook(command)
	}

	result := &CommandResult{Name: name, Args: args, Output: f.outputs[command]}
	if err, ok := f.failures[command]; ok {
		result.ExitCode = 1
		return result, err
	}
	return result, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path, ok := f.paths[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("未找到可执行文件: %s", name)
}

func (f *fakeRunner) setPath(name, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths[name] = path
}

func (f *fakeRunner) ran(command string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if c == command {
			return true
		}
	}
	return false
}

// TestBrewInstaller 测试 Homebrew 安装器
func TestBrewInstaller(t *testing.T) {
	runner := newFakeRunner()
	installer := NewBrewInstaller(nil, runner)

	assert.Equal(t, "homebrew", installer.Name())
	assert.False(t, installer.Available())

	runner.setPath("brew", "/opt/homebrew/bin/brew")
	assert.True(t, installer.Available())

	require.NoError(t, installer.Install(context.Background()))
	assert.True(t, runner.ran("brew install tesseract"))
}

// TestAptInstallerSudo 测试非 root 时 apt 命令加 sudo 前缀
func TestAptInstallerSudo(t *testing.T) {
	runner := newFakeRunner()
	runner.setPath("apt-get", "/usr/bin/apt-get")
	runner.setPath("sudo", "/usr/bin/sudo")

	installer := NewAptInstaller(nil, runner, WithEUID(func() int { return 1000 }))
	require.True(t, installer.Available())

	plan := installer.Plan()
	require.Len(t, plan, 2)
	assert.Equal(t, []string{"sudo", "apt-get", "update"}, plan[0])
	assert.Equal(t, []string{"sudo", "apt-get", "install", "-y", "tesseract-ocr", "libtesseract-dev"}, plan[1])

	require.NoError(t, installer.Install(context.Background()))
	assert.True(t, runner.ran("sudo apt-get update"))
	assert.True(t, runner.ran("sudo apt-get install -y tesseract-ocr libtesseract-dev"))
}

// TestAptInstallerRoot 测试 root 下不加 sudo
func TestAptInstallerRoot(t *testing.T) {
	runner := newFakeRunner()
	runner.setPath("apt-get", "/usr/bin/apt-get")

	installer := NewAptInstaller(nil, runner, WithEUID(func() int { return 0 }))
	plan := installer.Plan()
	assert.Equal(t, []string{"apt-get", "update"}, plan[0])
}

// TestAptInstallerFailFast 测试首条命令失败即中止
func TestAptInstallerFailFast(t *testing.T) {
	runner := newFakeRunner()
	runner.setPath("apt-get", "/usr/bin/apt-get")
	runner.failures["apt-get update"] = errors.New(errors.ErrorTypeExternal, errors.CodeInstallFailed, "更新索引失败")

	installer := NewAptInstaller(nil, runner, WithEUID(func() int { return 0 }))
	err := installer.Install(context.Background())
	require.Error(t, err)

	assert.True(t, runner.ran("apt-get update"))
	assert.False(t, runner.ran("apt-get install -y tesseract-ocr libtesseract-dev"))
}

// TestSelectInstaller 测试平台安装器选择
func TestSelectInstaller(t *testing.T) {
	// darwin 无 brew
	runner := newFakeRunner()
	_, err := SelectInstaller("darwin", nil, runner)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePkgManagerMissing))

	// darwin 有 brew
	runner.setPath("brew", "/usr/local/bin/brew")
	installer, err := SelectInstaller("darwin", nil, runner)
	require.NoError(t, err)
	assert.Equal(t, "homebrew", installer.Name())

	// windows 优先 choco
	runner = newFakeRunner()
	runner.setPath("choco", `C:\ProgramData\chocolatey\bin\choco.exe`)
	runner.setPath("winget", `C:\Windows\winget.exe`)
	installer, err = SelectInstaller("windows", nil, runner)
	require.NoError(t, err)
	assert.Equal(t, "chocolatey", installer.Name())

	// windows 无 choco 回退 winget
	runner = newFakeRunner()
	runner.setPath("winget", `C:\Windows\winget.exe`)
	installer, err = SelectInstaller("windows", nil, runner)
	require.NoError(t, err)
	assert.Equal(t, "winget", installer.Name())

	// windows 两者皆无
	runner = newFakeRunner()
	_, err = SelectInstaller("windows", nil, runner)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePkgManagerMissing))

	// 不支持的平台
	_, err = SelectInstaller("plan9", nil, newFakeRunner())
	require.Error(t, err)
}

// TestWingetPlan 测试 winget 安装命令包含确认参数
func TestWingetPlan(t *testing.T) {
	installer := NewWingetInstaller(nil, newFakeRunner())
	plan := installer.Plan()
	require.Len(t, plan, 1)
	assert.Contains(t, plan[0], "--accept-package-agreements")
	assert.Contains(t, plan[0], "UB-Mannheim.TesseractOCR")
}
