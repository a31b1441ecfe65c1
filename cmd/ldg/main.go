package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lomehong/ldg/pkg/errors"
)

// 版本信息，构建时通过 -ldflags 注入
var version = "0.1.0"

// timeRound 终端输出的耗时精度
const timeRound = 10 * time.Millisecond

var (
	cfgFile  string
	logLevel string
	logFile  string

	rootCmd = &cobra.Command{
		Use:   "ldg",
		Short: "物流单据OCR校验工具",
		Long: `Logistics Document Guardian (LDG)，一个基于Go的跨平台OCR校验工具。
负责准备Tesseract识别环境与韩文训练数据，对PDF单据按页执行OCR，
并按真值表逐行校验识别结果，输出不匹配明细与运行报告。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// 初始化函数，设置cobra命令
func init() {
	// 全局标志
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别（trace/debug/info/warn/error）")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "日志文件路径，设置时日志写入文件")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(ocrCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(truthCmd)
	rootCmd.AddCommand(consoleCmd)
}

// version命令
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ldg v%s\n", version)
	},
}

// exitCodeError 携带明确退出码的错误。
// 校验发现不匹配（1）、输入缺失（2）等结果通过它传递给main
type exitCodeError struct {
	code    int
	message string
}

func (e *exitCodeError) Error() string {
	return e.message
}

// exitWithCode 构造带退出码的错误，message可为空
func exitWithCode(code int, format string, args ...interface{}) error {
	return &exitCodeError{code: code, message: fmt.Sprintf(format, args...)}
}

// signalContext 返回随终止信号取消的上下文
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	// 命令实现中的panic统一转为退出码3，不向终端抛堆栈
	err := errors.SafeExec(func() error {
		return rootCmd.Execute()
	})
	if err != nil {
		var ec *exitCodeError
		if stderrors.As(err, &ec) {
			if ec.message != "" {
				fmt.Fprintln(os.Stderr, ec.message)
			}
			os.Exit(ec.code)
		}

		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}
