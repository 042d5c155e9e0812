// Package perception turns raw frames into structured ScreenContexts: the
// text layer, detected UI elements, and an optional scene description, each
// produced by an independent analyzer so one failing does not blind the
// agent entirely.
package perception

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/surface"
)

// Error reports a perception failure with the stage that produced it.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string { return "perception: " + e.Stage + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Perceiver runs the capture-and-analyze cycle.
type Perceiver struct {
	screen   surface.ScreenSource
	reader   TextReader
	detector ElementDetector
	scene    SceneDescriber // nil disables scene description

	screenshotsDir string
	timeout        time.Duration
	logger         *zap.Logger

	mu   sync.Mutex
	last *schemas.ScreenContext
}

// New wires the perceiver. scene may be nil when no vision model is
// available; disabled analyzers are dropped here so Perceive never has to
// consult the config.
func New(
	screen surface.ScreenSource,
	reader TextReader,
	detector ElementDetector,
	scene SceneDescriber,
	cfg config.PerceptionConfig,
	storage config.StorageConfig,
	logger *zap.Logger,
) *Perceiver {
	if !cfg.SceneEnabled {
		scene = nil
	}
	if !cfg.ElementsEnabled {
		detector = nil
	}
	return &Perceiver{
		screen:         screen,
		reader:         reader,
		detector:       detector,
		scene:          scene,
		screenshotsDir: storage.ScreenshotsDir,
		timeout:        cfg.Timeout,
		logger:         logger.Named("perception"),
	}
}

// Perceive captures one frame and runs every analyzer over it. Analyzer
// failures degrade the result rather than abort it: the returned context
// carries whatever succeeded, with the overall confidence reflecting the
// gaps. Only a capture failure is fatal.
func (p *Perceiver) Perceive(ctx context.Context) (*schemas.ScreenContext, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	img, err := p.screen.Capture(ctx)
	if err != nil {
		return nil, &Error{Stage: "capture", Err: err}
	}
	captured := time.Now().UTC()

	sc := &schemas.ScreenContext{
		Timestamp: captured,
		Resolution: schemas.Resolution{
			Width:  img.Bounds().Dx(),
			Height: img.Bounds().Dy(),
		},
	}

	// Screenshot persistence happens inline; the analyzers race in the
	// group below.
	if p.screenshotsDir != "" {
		if path, err := p.persistFrame(img, captured); err != nil {
			p.logger.Warn("Screenshot persistence failed", zap.Error(err))
		} else {
			sc.ScreenshotPath = path
		}
	}

	var (
		ocr      OCRResult
		ocrOK    bool
		elements []schemas.UIElement
		scene    string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := p.reader.Read(gctx, img)
		if err != nil {
			p.logger.Warn("OCR analyzer failed", zap.Error(err))
			return nil // degrade, don't abort
		}
		ocr = res
		ocrOK = true
		return nil
	})

	if p.detector != nil {
		g.Go(func() error {
			els, err := p.detector.Detect(gctx, img)
			if err != nil {
				p.logger.Warn("Element analyzer failed", zap.Error(err))
				return nil
			}
			elements = els
			return nil
		})
	}

	if p.scene != nil {
		g.Go(func() error {
			desc, err := p.scene.Describe(gctx, img)
			if err != nil {
				p.logger.Warn("Scene analyzer failed", zap.Error(err))
				return nil
			}
			scene = desc
			return nil
		})
	}

	// Analyzers swallow their own errors, so Wait only fails on context
	// cancellation.
	if err := g.Wait(); err != nil {
		return nil, &Error{Stage: "analyze", Err: err}
	}

	sc.OCRText = ocr.Text
	sc.Words = ocr.Words
	sc.UIElements = elements
	sc.SceneDescription = scene
	sc.OverallConfidence = schemas.ComputeOverallConfidence(ocr.Confidence, ocrOK, elements, scene)

	p.mu.Lock()
	p.last = sc
	p.mu.Unlock()

	p.logger.Info("Perception cycle complete",
		zap.Int("words", len(sc.Words)),
		zap.Int("elements", len(sc.UIElements)),
		zap.Bool("scene", scene != ""),
		zap.Float64("confidence", sc.OverallConfidence))
	return sc, nil
}

// Last returns the most recent context, or nil before the first cycle.
func (p *Perceiver) Last() *schemas.ScreenContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// persistFrame writes the frame as a timestamped PNG.
func (p *Perceiver) persistFrame(img image.Image, at time.Time) (string, error) {
	if err := os.MkdirAll(p.screenshotsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.screenshotsDir, fmt.Sprintf("screen_%s.png", at.Format("20060102_150405.000")))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
