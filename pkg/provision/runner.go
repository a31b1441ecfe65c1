package provision

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/logging"
)

// CommandResult 外部命令的执行结果
type CommandResult struct {
	Name     string
	Args     []string
	Output   string
	ExitCode int
	Duration time.Duration
}

// Command 返回完整的命令行表示
func (r *CommandResult) Command() string {
	if len(r.Args) == 0 {
		return r.Name
	}
	return r.Name + " " + strings.Join(r.Args, " ")
}

// CommandRunner 执行外部命令，可注入用于测试
type CommandRunner interface {
	// Run 执行命令并捕获合并输出，命令退出码非零时返回错误
	Run(ctx context.Context, name string, args ...string) (*CommandResult, error)
	// LookPath 查找可执行文件
	LookPath(name string) (string, error)
}

// ExecRunner 基于 os/exec 的命令执行器
type ExecRunner struct {
	logger    hclog.Logger
	timeout   time.Duration
	logWriter io.Writer
}

// RunnerOption 命令执行器配置选项
type RunnerOption func(*ExecRunner)

// WithTimeout 设置单条命令的默认超时
func WithTimeout(timeout time.Duration) RunnerOption {
	return func(r *ExecRunner) {
		r.timeout = timeout
	}
}

// WithLogWriter 设置命令输出的镜像写入器，用于安装日志留存
func WithLogWriter(w io.Writer) RunnerOption {
	return func(r *ExecRunner) {
		r.logWriter = w
	}
}

// NewExecRunner 创建一个命令执行器
func NewExecRunner(logger hclog.Logger, options ...RunnerOption) *ExecRunner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	r := &ExecRunner{
		logger:  logger,
		timeout: 15 * time.Minute,
	}

	for _, option := range options {
		option(r)
	}

	return r
}

// Run 执行命令。合并 stdout/stderr 捕获，设置了镜像写入器时同步落盘
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.logger.Debug("执行命令", "command", name, "args", args)

	var buf bytes.Buffer
	var out io.Writer = &buf
	if r.logWriter != nil {
		fmt.Fprintf(r.logWriter, "$ %s %s\n", name, strings.Join(args, " "))
		out = logging.NewMultiWriter(&buf, r.logWriter)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	err := cmd.Run()
	duration := time.Since(start)

	result := &CommandResult{
		Name:     name,
		Args:     args,
		Output:   buf.String(),
		ExitCode: 0,
		Duration: duration,
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, errors.Wrap(ctx.Err(), errors.ErrorTypeTemporary, errors.CodeTimeout,
				fmt.Sprintf("命令执行超时或取消: %s", result.Command()))
		}
		return result, errors.Wrap(err, errors.ErrorTypeExternal, errors.CodeInstallFailed,
			fmt.Sprintf("命令执行失败: %s: %s", result.Command(), tailLines(result.Output, 5)))
	}

	r.logger.Debug("命令执行完成", "command", result.Command(), "duration", duration.String())
	return result, nil
}

// LookPath 查找可执行文件
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// tailLines 取输出末尾若干行，用于错误信息，避免淹没日志
func tailLines(output string, n int) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return "(无输出)"
	}

	lines := strings.Split(output, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
