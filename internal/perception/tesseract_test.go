// internal/perception/tesseract_test.go
package perception

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t120\t40\t60\t18\t96.5\tFile\n" +
	"5\t1\t1\t1\t1\t2\t190\t40\t58\t18\t91.0\tEdit\n" +
	"5\t1\t1\t1\t1\t3\t260\t40\t70\t18\t35.2\tsmudge\n" +
	"5\t1\t1\t1\t2\t1\t120\t80\t90\t20\t88.0\tSave\n"

func TestParseTSV(t *testing.T) {
	t.Parallel()

	tess := NewTesseract("tesseract", 0.6, zap.NewNop())
	res := tess.parseTSV(sampleTSV)

	// The low-confidence word and the -1 layout row are dropped.
	require.Len(t, res.Words, 3)
	assert.Equal(t, "File Edit Save", res.Text)

	assert.Equal(t, "File", res.Words[0].Text)
	assert.Equal(t, 120, res.Words[0].BBox.X)
	assert.Equal(t, 40, res.Words[0].BBox.Y)
	assert.Equal(t, 60, res.Words[0].BBox.Width)
	assert.Equal(t, 18, res.Words[0].BBox.Height)
	assert.InDelta(t, 0.965, res.Words[0].Confidence, 1e-9)

	// Mean of the surviving confidences.
	assert.InDelta(t, (0.965+0.91+0.88)/3, res.Confidence, 1e-9)
}

func TestParseTSVEmpty(t *testing.T) {
	t.Parallel()

	tess := NewTesseract("tesseract", 0.6, zap.NewNop())

	res := tess.parseTSV("level\tpage_num\n")
	assert.Empty(t, res.Words)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
}

func TestParseTSVConfidenceFloor(t *testing.T) {
	t.Parallel()

	// With the floor at zero nothing is filtered.
	tess := NewTesseract("tesseract", 0, zap.NewNop())
	res := tess.parseTSV(sampleTSV)
	require.Len(t, res.Words, 4)
	assert.True(t, strings.Contains(res.Text, "smudge"))
}
