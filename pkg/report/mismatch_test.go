package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lomehong/ldg/pkg/validate"
)

func sampleMismatches() []validate.Mismatch {
	return []validate.Mismatch{
		{
			FileName:         "inv_0001.pdf",
			Page:             1,
			FieldName:        "Total",
			ExpectedText:     "99,000",
			ValidationError:  "Mismatch",
			OCROutputSnippet: "합계 88,000원...",
		},
		{
			FileName:        "missing.pdf",
			Page:            2,
			FieldName:       "Consignee",
			ExpectedText:    "김철수",
			ValidationError: "PDF not found: data/pdf/missing.pdf",
		},
	}
}

// TestWriteMismatchCSV 测试不匹配明细CSV导出
func TestWriteMismatchCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "mismatches.csv")
	require.NoError(t, WriteMismatchCSV(path, sampleMismatches()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, mismatchColumns, records[0])
	assert.Equal(t, []string{"inv_0001.pdf", "1", "Total", "99,000", "Mismatch", "합계 88,000원..."}, records[1])
	assert.Equal(t, "PDF not found: data/pdf/missing.pdf", records[2][4])
	assert.Equal(t, "", records[2][5])
}

// TestWriteMismatchCSVEmpty 测试无不匹配时仅写出表头
func TestWriteMismatchCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mismatches.csv")
	require.NoError(t, WriteMismatchCSV(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(mismatchColumns, ",")+"\n", string(data))
}

// TestWriteMismatchJSON 测试JSON导出保持韩文原样
func TestWriteMismatchJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mismatches.json")
	require.NoError(t, WriteMismatchJSON(path, sampleMismatches()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "합계 88,000원")
	assert.Contains(t, string(data), "김철수")
	assert.NotContains(t, string(data), `\u`)

	var decoded []validate.Mismatch
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sampleMismatches(), decoded)
}

// TestWriteMismatchJSONEmpty 测试空明细写出空数组
func TestWriteMismatchJSONEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mismatches.json")
	require.NoError(t, WriteMismatchJSON(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(data)))
}
