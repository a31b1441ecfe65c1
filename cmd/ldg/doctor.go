package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/health"
)

// doctor命令：诊断OCR运行环境
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "诊断OCR运行环境",
	Long: `执行标准检查集：引擎可执行文件、引擎版本约束、训练数据文件、
引擎已加载语言、PDF渲染器、数据目录磁盘空间、训练数据源可达性。
存在不健康项时退出码为1，仅降级项不影响退出码。`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(nil)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signalContext()
	defer stop()

	registry := health.NewDoctorRegistry(app.hc.Named("doctor"),
		app.runner, app.data, app.monitor, app.doctorConfig())

	snapshot := registry.RunChecks(ctx)

	fmt.Printf("环境诊断（%s）\n\n", snapshot.Timestamp.Format("2006-01-02 15:04:05"))
	for _, result := range snapshot.Results {
		fmt.Printf("[%-9s] %-16s %s\n", result.Status, result.Name, result.Message)
	}

	status := app.monitor.Status()
	if rt, ok := status["runtime"].(map[string]interface{}); ok {
		fmt.Printf("\n主机: %v/%v, CPU %v 核, %v\n",
			rt["go_os"], rt["go_arch"], rt["cpu_cores"], rt["go_version"])
	}
	fmt.Printf("总体状态: %s（耗时 %s）\n", snapshot.Overall, snapshot.Duration.Round(timeRound))

	if snapshot.Overall == health.StatusUnhealthy {
		return exitWithCode(errors.ExitMismatch, "")
	}
	return nil
}
