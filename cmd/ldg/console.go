package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lomehong/ldg/pkg/config"
	"github.com/lomehong/ldg/pkg/console"
	"github.com/lomehong/ldg/pkg/health"
	"github.com/lomehong/ldg/pkg/logging"
	"github.com/lomehong/ldg/pkg/system"
)

var (
	consoleHost string
	consolePort int
)

// console命令：启动本地运行控制台
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "启动本地运行控制台",
	Long: `启动HTTP控制台，暴露健康检查、环境状态、历史运行记录与事件：
/api/health /api/status /api/metrics /api/runs /api/runs/:id /api/events。
默认仅监听本机地址，配置访问令牌后启用鉴权。Ctrl+C 优雅退出。`,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().StringVar(&consoleHost, "host", "", "监听地址，空时使用配置值")
	consoleCmd.Flags().IntVar(&consolePort, "port", 0, "监听端口，空时使用配置值")
}

func runConsole(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(func(cfg *config.Config) {
		if consoleHost != "" {
			cfg.Console.Host = consoleHost
		}
		if consolePort > 0 {
			cfg.Console.Port = consolePort
		}
	})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signalContext()
	defer stop()

	// 控制台长期运行，配置文件变更时热应用可调参数
	app.cfgMgr.AddChangeListener(func(oldCfg, newCfg *config.Config) error {
		app.logger.SetLevel(logging.ParseLevel(newCfg.Log.Level))
		app.downloader.SetRateLimit(int(newCfg.Data.RateLimit))
		app.hc.Info("已热应用配置变更",
			"log_level", newCfg.Log.Level,
			"rate_limit", newCfg.Data.RateLimit)
		return nil
	})
	if err := app.cfgMgr.Watch(); err != nil {
		// 没有配置文件时不支持热加载，按当前配置继续运行
		app.hc.Debug("配置热加载未启用", "error", err)
	}

	registry := health.NewDoctorRegistry(app.hc.Named("health"),
		app.runner, app.data, app.monitor, app.doctorConfig())

	metrics := system.NewMetricsCollector(app.hc.Named("metrics"), app.monitor, 30*time.Second)
	metrics.Start()
	defer metrics.Stop()

	c, err := console.NewConsole(app.hc.Named("console"),
		console.FromAppConfig(app.cfg.Console, app.cfg.Log.Level),
		console.Sources{
			Health:  registry,
			Monitor: app.monitor,
			Metrics: metrics,
			Data:    app.data,
			Runs:    app.reports,
			Events:  app.events,
			Engine:  app.newEngine(),
		})
	if err != nil {
		return err
	}

	if err := c.Init(); err != nil {
		return err
	}
	if err := c.Start(); err != nil {
		return err
	}

	fmt.Printf("控制台已启动: http://%s:%d\n", app.cfg.Console.Host, app.cfg.Console.Port)
	fmt.Println("按 Ctrl+C 退出。")

	<-ctx.Done()
	return c.Stop(context.Background())
}
