package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lomehong/ldg/pkg/errors"
)

// TestInputNormalize 测试输入校验与补全
func TestInputNormalize(t *testing.T) {
	in := Input{Path: "doc.pdf"}
	require.NoError(t, in.normalize())
	assert.Equal(t, 1, in.Page)

	in = Input{Path: "doc.pdf", Page: 3}
	require.NoError(t, in.normalize())
	assert.Equal(t, 3, in.Page)

	in = Input{Path: ""}
	err := in.normalize()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	in = Input{Path: "doc.pdf", Page: -1}
	err = in.normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "页码")
}

// TestIsPDF 测试PDF扩展名判断
func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("a.pdf"))
	assert.True(t, isPDF("A.PDF"))
	assert.False(t, isPDF("a.png"))
	assert.False(t, isPDF("pdf"))
}
