// internal/perception/tesseract.go
package perception

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// OCRResult is the text layer extracted from one frame.
type OCRResult struct {
	Text       string
	Words      []schemas.Word
	Confidence float64
}

// TextReader extracts screen text. The production implementation shells out
// to the tesseract binary; tests substitute their own.
type TextReader interface {
	Read(ctx context.Context, img image.Image) (OCRResult, error)
}

// Tesseract reads text by invoking the tesseract CLI in TSV mode. TSV gives
// per-word confidences and boxes, which the element matcher needs; plain
// `-psm` text output would lose both.
type Tesseract struct {
	binary        string
	minConfidence float64
	logger        *zap.Logger
}

var _ TextReader = (*Tesseract)(nil)

// NewTesseract builds the adapter. binary may be a bare name resolved via
// PATH or an absolute path.
func NewTesseract(binary string, minConfidence float64, logger *zap.Logger) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	return &Tesseract{
		binary:        binary,
		minConfidence: minConfidence,
		logger:        logger.Named("perception.ocr"),
	}
}

// Read runs tesseract over the frame and returns the filtered word list.
// Words under the confidence floor are dropped from both the word list and
// the joined text.
func (t *Tesseract) Read(ctx context.Context, img image.Image) (OCRResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return OCRResult{}, fmt.Errorf("frame encode failed: %w", err)
	}

	// stdin in, tsv out: no temp files to clean up.
	cmd := exec.CommandContext(ctx, t.binary, "stdin", "stdout", "tsv")
	cmd.Stdin = &buf
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.Error); ok || err == exec.ErrNotFound {
			return OCRResult{}, fmt.Errorf("tesseract binary %q not found: %w", t.binary, err)
		}
		return OCRResult{}, fmt.Errorf("tesseract failed: %w (stderr: %s)", err, strings.TrimSpace(errOut.String()))
	}

	result := t.parseTSV(out.String())
	t.logger.Debug("OCR pass complete",
		zap.Int("words", len(result.Words)),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}

// parseTSV walks tesseract's TSV output. Columns:
// level page block par line word left top width height conf text
func (t *Tesseract) parseTSV(tsv string) OCRResult {
	var (
		words    []schemas.Word
		fragment []string
		confSum  float64
	)

	lines := strings.Split(tsv, "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue // conf -1 marks non-word rows
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		confidence := conf / 100.0
		if confidence < t.minConfidence {
			continue
		}

		left, _ := strconv.Atoi(cols[6])
		top, _ := strconv.Atoi(cols[7])
		width, _ := strconv.Atoi(cols[8])
		height, _ := strconv.Atoi(cols[9])

		words = append(words, schemas.Word{
			Text:       text,
			Confidence: confidence,
			BBox:       schemas.BBox{X: left, Y: top, Width: width, Height: height},
		})
		fragment = append(fragment, text)
		confSum += confidence
	}

	result := OCRResult{
		Text:  strings.Join(fragment, " "),
		Words: words,
	}
	if len(words) > 0 {
		result.Confidence = confSum / float64(len(words))
	}
	return result
}

// Available reports whether the tesseract binary can be found. Used at
// startup to degrade the pipeline early instead of failing every frame.
func (t *Tesseract) Available() bool {
	if strings.ContainsRune(t.binary, os.PathSeparator) {
		_, err := os.Stat(t.binary)
		return err == nil
	}
	_, err := exec.LookPath(t.binary)
	return err == nil
}
