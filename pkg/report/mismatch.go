// Package report 负责校验与批量识别结果的落盘：不匹配明细的CSV/JSON导出，
// 以及供控制台检索的运行记录
package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/validate"
)

// mismatchColumns 不匹配明细CSV的列，前四列与真值表保持一致
var mismatchColumns = []string{
	"file_name", "page", "field_name", "expected_text",
	"validation_error", "ocr_output_snippet",
}

// WriteMismatchCSV 将不匹配明细写为CSV文件
func WriteMismatchCSV(path string, mismatches []validate.Mismatch) error {
	if err := ensureParent(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal,
			"创建CSV输出文件失败: "+path)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(mismatchColumns); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "写出CSV表头失败")
	}

	for _, m := range mismatches {
		record := []string{
			m.FileName,
			strconv.Itoa(m.Page),
			m.FieldName,
			m.ExpectedText,
			m.ValidationError,
			m.OCROutputSnippet,
		}
		if err := writer.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "写出CSV行失败")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal,
			"写出CSV文件失败: "+path)
	}
	return nil
}

// WriteMismatchJSON 将不匹配明细写为JSON文件。
// 缩进输出且不转义非ASCII字符，韩文内容保持原样
func WriteMismatchJSON(path string, mismatches []validate.Mismatch) error {
	if err := ensureParent(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal,
			"创建JSON输出文件失败: "+path)
	}
	defer f.Close()

	if mismatches == nil {
		mismatches = []validate.Mismatch{}
	}

	encoder := json.NewEncoder(f)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(mismatches); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal,
			"写出JSON文件失败: "+path)
	}
	return nil
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal,
			"创建输出目录失败: "+dir)
	}
	return nil
}
