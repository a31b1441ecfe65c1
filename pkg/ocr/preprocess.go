package ocr

import (
	"fmt"
	"os"

	"github.com/disintegration/imaging"
)

// preprocessImage 对图像做灰度化、对比度增强与锐化，生成临时文件。
// 扫描质量差的物流单据经预处理后识别率明显更高。
// 调用方负责删除返回的临时文件
func preprocessImage(path string) (string, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", fmt.Errorf("打开图像失败: %w", err)
	}

	processed := imaging.Grayscale(img)
	processed = imaging.AdjustContrast(processed, 20)
	processed = imaging.Sharpen(processed, 1.0)

	tmp, err := os.CreateTemp("", "ldg-pre-*.png")
	if err != nil {
		return "", fmt.Errorf("创建预处理临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := imaging.Save(processed, tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("保存预处理图像失败: %w", err)
	}

	return tmpPath, nil
}
