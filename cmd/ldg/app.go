package main

import (
	"context"
	"net/http"
	"runtime"

	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/config"
	"github.com/lomehong/ldg/pkg/events"
	"github.com/lomehong/ldg/pkg/health"
	"github.com/lomehong/ldg/pkg/logging"
	"github.com/lomehong/ldg/pkg/ocr"
	"github.com/lomehong/ldg/pkg/provision"
	"github.com/lomehong/ldg/pkg/report"
	"github.com/lomehong/ldg/pkg/system"
	"github.com/lomehong/ldg/pkg/tessdata"
)

// appContext 各命令共享的运行时依赖，按配置一次性装配
type appContext struct {
	cfg        *config.Config
	cfgMgr     *config.Manager
	logger     logging.Logger
	hc         hclog.Logger
	events     *events.EventManager
	runner     *provision.ExecRunner
	data       *tessdata.Manager
	downloader *tessdata.Downloader
	monitor    *system.Monitor
	reports    *report.Store
}

// newAppContext 加载配置并装配运行时依赖。
// override在配置加载后、依赖装配前执行，命令行标志覆盖走这里
func newAppContext(override func(cfg *config.Config)) (*appContext, error) {
	var managerOptions []config.ManagerOption
	if cfgFile != "" {
		managerOptions = append(managerOptions, config.WithConfigFile(cfgFile))
	}

	cfgMgr := config.NewManager(managerOptions...)
	if err := cfgMgr.Load(); err != nil {
		return nil, err
	}
	cfg := cfgMgr.Config()

	// 全局标志覆盖
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.Output = "file"
		cfg.Log.File = logFile
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = logging.ParseLevel(cfg.Log.Level)
	logCfg.Format = logging.LogFormat(cfg.Log.Format)
	logCfg.Output = logging.LogOutput(cfg.Log.Output)
	logCfg.FilePath = cfg.Log.File

	logger, err := logging.NewEnhancedLogger(logCfg)
	if err != nil {
		return nil, err
	}
	hc := logger.GetHCLogger()

	em := events.NewEventManager(logger.Named("events"))

	runner := provision.NewExecRunner(hc.Named("runner"),
		provision.WithTimeout(cfg.Provision.Timeout))

	tier, err := tessdata.ParseTier(cfg.Data.Tier)
	if err != nil {
		return nil, err
	}
	var sourceOptions []tessdata.SourceOption
	if cfg.Data.BaseURL != "" {
		sourceOptions = append(sourceOptions, tessdata.WithBaseURL(cfg.Data.BaseURL))
	}
	source := tessdata.NewSource(tier, sourceOptions...)

	var storeOptions []tessdata.StoreOption
	if cfg.Data.Dir != "" {
		storeOptions = append(storeOptions, tessdata.WithDir(cfg.Data.Dir))
	}
	store := tessdata.NewStore(hc.Named("tessdata"), storeOptions...)

	downloaderOptions := []tessdata.DownloaderOption{
		tessdata.WithHTTPClient(&http.Client{Timeout: cfg.Data.Timeout}),
		tessdata.WithMinSize(cfg.Data.MinSize),
		tessdata.WithRetry(cfg.Data.MaxRetries, cfg.Data.RetryDelay),
	}
	if cfg.Data.RateLimit > 0 {
		downloaderOptions = append(downloaderOptions, tessdata.WithRateLimit(int(cfg.Data.RateLimit)))
	}
	downloader := tessdata.NewDownloader(hc.Named("downloader"), downloaderOptions...)

	data := tessdata.NewManager(hc.Named("data"), source, store, downloader,
		tessdata.WithEventManager(em))

	return &appContext{
		cfg:        cfg,
		cfgMgr:     cfgMgr,
		logger:     logger,
		hc:         hc,
		events:     em,
		runner:     runner,
		data:       data,
		downloader: downloader,
		monitor:    system.NewMonitor(hc.Named("system"), version),
		reports:    report.NewStore(hc.Named("report"), cfg.Report.Dir),
	}, nil
}

// Close 释放运行时资源
func (a *appContext) Close() {
	if a.cfgMgr != nil {
		a.cfgMgr.Close()
	}
	if a.logger != nil {
		a.logger.Close()
	}
}

// newEngine 按配置构建OCR引擎。engine.type 为 gosseract 时使用
// 进程内引擎（需 -tags gosseract 构建，否则引擎不可用并报错指引），
// extra 仅对默认的命令行引擎生效
func (a *appContext) newEngine(extra ...ocr.ExecEngineOption) ocr.Engine {
	if a.cfg.Engine.Type == "gosseract" {
		return ocr.NewGosseractEngine(a.hc.Named("ocr"), ocr.GosseractConfig{
			Languages:      a.cfg.Engine.Languages,
			PSM:            a.cfg.Engine.PSM,
			DPI:            a.cfg.Engine.DPI,
			PreserveSpaces: a.cfg.Engine.PreserveInterwordSpaces,
			TessdataDir:    a.cfg.Data.Dir,
			Renderer:       a.cfg.Engine.Renderer,
		})
	}

	options := []ocr.ExecEngineOption{
		ocr.WithLanguages(a.cfg.Engine.Languages),
		ocr.WithDPI(a.cfg.Engine.DPI),
		ocr.WithPSM(a.cfg.Engine.PSM),
		ocr.WithOEM(a.cfg.Engine.OEM),
		ocr.WithPreserveSpaces(a.cfg.Engine.PreserveInterwordSpaces),
		ocr.WithRecognizeTimeout(a.cfg.Engine.Timeout),
	}
	if a.cfg.Engine.Binary != "" {
		options = append(options, ocr.WithBinary(a.cfg.Engine.Binary))
	}
	if a.cfg.Engine.Renderer != "" {
		options = append(options, ocr.WithRenderer(a.cfg.Engine.Renderer))
	}
	if a.cfg.Data.Dir != "" {
		options = append(options, ocr.WithTessdataDir(a.cfg.Data.Dir))
	}
	options = append(options, extra...)
	return ocr.NewExecEngine(a.hc.Named("ocr"), options...)
}

// engineBinary 返回配置的引擎可执行文件名
func (a *appContext) engineBinary() string {
	if a.cfg.Engine.Binary != "" {
		return a.cfg.Engine.Binary
	}
	return "tesseract"
}

// rendererBinary 返回配置的PDF渲染器可执行文件名
func (a *appContext) rendererBinary() string {
	if a.cfg.Engine.Renderer != "" {
		return a.cfg.Engine.Renderer
	}
	if runtime.GOOS == "windows" {
		return "gswin64c"
	}
	return "gs"
}

// doctorConfig 由应用配置构建标准检查集参数
func (a *appContext) doctorConfig() health.DoctorConfig {
	dataPath := a.cfg.Data.Dir
	if dataPath == "" {
		if dir, err := a.data.Store().Resolve(context.Background()); err == nil {
			dataPath = dir
		}
	}

	return health.DoctorConfig{
		Binary:     a.engineBinary(),
		Renderer:   a.rendererBinary(),
		MinVersion: a.cfg.Engine.MinVersion,
		Languages:  a.cfg.Engine.Languages,
		DataPath:   dataPath,
	}
}
