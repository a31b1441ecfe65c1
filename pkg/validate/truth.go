package validate

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/errors"
)

// truthColumns 真值表的必需列，顺序即输出顺序
var truthColumns = []string{"file_name", "page", "field_name", "expected_text"}

// TruthRow 真值表中的一行
type TruthRow struct {
	FileName     string `json:"file_name"`
	Page         int    `json:"page"`
	FieldName    string `json:"field_name"`
	ExpectedText string `json:"expected_text"`

	// Line 是CSV中的行号，用于告警定位
	Line int `json:"-"`
}

// LoadTruth 读取真值CSV。
// 表头必须包含 file_name、page、field_name、expected_text 四列，
// 页码无效的行回退到第1页并告警
func LoadTruth(logger hclog.Logger, path string) ([]TruthRow, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrorTypeNotFound, errors.CodeTruthInvalid,
				"真值文件不存在: %s", path)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeTruthInvalid,
			"打开真值文件失败: "+path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.CodeTruthInvalid,
			"真值文件为空或表头无法解析: "+path)
	}

	// 兼容带BOM的CSV
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, col := range truthColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.Newf(errors.ErrorTypeValidation, errors.CodeTruthInvalid,
			"真值文件缺少必需列: %s", strings.Join(missing, ", "))
	}

	field := func(record []string, col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return record[i]
	}

	var rows []TruthRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.CodeTruthInvalid,
				"解析真值文件失败: "+path)
		}

		row := TruthRow{
			FileName:     field(record, "file_name"),
			FieldName:    field(record, "field_name"),
			ExpectedText: field(record, "expected_text"),
			Line:         line,
		}

		pageRaw := strings.TrimSpace(field(record, "page"))
		page, convErr := strconv.Atoi(pageRaw)
		if convErr != nil {
			logger.Warn("页码无效，回退到第1页", "file", row.FileName, "page", pageRaw, "line", line)
			page = 1
		}
		row.Page = page

		rows = append(rows, row)
	}

	logger.Debug("已加载真值文件", "path", path, "rows", len(rows))
	return rows, nil
}

// WriteStubTruth 扫描PDF目录生成桩真值CSV：每个PDF一行，
// 页码1、字段 FileNameCheck、期望文本为文件名去掉扩展名。
// 目录为空时仅写出表头。返回写出的数据行数
func WriteStubTruth(logger hclog.Logger, pdfDir string, outPath string) (int, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	info, err := os.Stat(pdfDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Newf(errors.ErrorTypeNotFound, errors.CodePDFNotFound,
				"PDF目录不存在: %s", pdfDir)
		}
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "检查PDF目录失败")
	}
	if !info.IsDir() {
		return 0, errors.Newf(errors.ErrorTypeValidation, errors.CodePDFNotFound,
			"PDF路径不是目录: %s", pdfDir)
	}

	files, err := filepath.Glob(filepath.Join(pdfDir, "*.pdf"))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "枚举PDF文件失败")
	}
	if len(files) == 0 {
		logger.Warn("目录中没有PDF文件，仅写出表头", "dir", pdfDir)
	}

	if dir := filepath.Dir(outPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "创建真值目录失败")
		}
	}

	f, err := os.Create(outPath)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal,
			"创建真值文件失败: "+outPath)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(truthColumns); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "写出真值表头失败")
	}

	for _, file := range files {
		name := filepath.Base(file)
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if err := writer.Write([]string{name, "1", "FileNameCheck", stem}); err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "写出真值行失败")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "写出真值文件失败")
	}

	logger.Info("桩真值已生成", "path", outPath, "rows", len(files))
	return len(files), nil
}
