package ocr

// GosseractConfig 进程内引擎配置。
// 进程内引擎通过 CGO 链接本机 libtesseract，仅在带 gosseract
// 构建标签的二进制中可用，默认构建返回不可用占位引擎
type GosseractConfig struct {
	// Languages 识别语言，默认 kor+eng
	Languages []string
	// PSM 页面分割模式
	PSM int
	// DPI PDF渲染分辨率
	DPI int
	// PreserveSpaces 保留词间空格
	PreserveSpaces bool
	// TessdataDir 训练数据目录，空则用系统默认
	TessdataDir string
	// Renderer PDF渲染器可执行文件，空则按平台默认
	Renderer string
}

// withDefaults 补全零值配置
func (c GosseractConfig) withDefaults(goos string) GosseractConfig {
	if len(c.Languages) == 0 {
		c.Languages = []string{"kor", "eng"}
	}
	if c.PSM == 0 {
		c.PSM = 6
	}
	if c.DPI == 0 {
		c.DPI = 300
	}
	if c.Renderer == "" {
		c.Renderer = defaultRenderer(goos)
	}
	return c
}
