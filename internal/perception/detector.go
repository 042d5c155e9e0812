// internal/perception/detector.go
package perception

import (
	"context"
	"image"
	"sort"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// ElementDetector finds interactable regions in a frame.
type ElementDetector interface {
	Detect(ctx context.Context, img image.Image) ([]schemas.UIElement, error)
}

// EdgeDetector locates UI elements by luminance discontinuities: buttons,
// inputs, and icons all draw borders, and borders are where the gradient
// spikes. Connected high-gradient pixels are grouped into regions and the
// regions classified by their geometry.
type EdgeDetector struct {
	// gradientThreshold is the minimum luminance delta (0-255 scale)
	// treated as an edge.
	gradientThreshold float64
	maxElements       int
	logger            *zap.Logger
}

var _ ElementDetector = (*EdgeDetector)(nil)

// NewEdgeDetector builds the detector. maxElements caps the returned list;
// the highest-confidence regions win.
func NewEdgeDetector(maxElements int, logger *zap.Logger) *EdgeDetector {
	if maxElements <= 0 {
		maxElements = 50
	}
	return &EdgeDetector{
		gradientThreshold: 30,
		maxElements:       maxElements,
		logger:            logger.Named("perception.elements"),
	}
}

// Detect runs the full pass: luminance plane, gradient mask, connected
// components, classification.
func (d *EdgeDetector) Detect(ctx context.Context, img image.Image) ([]schemas.UIElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return nil, nil
	}

	lum := luminancePlane(img)
	mask := d.gradientMask(lum, w, h)
	regions := connectedRegions(mask, w, h)

	elements := make([]schemas.UIElement, 0, len(regions))
	for _, r := range regions {
		area := float64(r.Width * r.Height)
		aspect := 0.0
		if r.Height > 0 {
			aspect = float64(r.Width) / float64(r.Height)
		}
		kind := schemas.ClassifyElement(area, aspect, r.Width, r.Height)
		if kind == schemas.ElementUnknown {
			continue
		}
		confidence := area / 10000.0
		if confidence > 1 {
			confidence = 1
		}
		elements = append(elements, schemas.UIElement{
			Type:       kind,
			BBox:       r,
			Confidence: confidence,
		})
	}

	sort.SliceStable(elements, func(i, j int) bool {
		return elements[i].Confidence > elements[j].Confidence
	})
	if len(elements) > d.maxElements {
		elements = elements[:d.maxElements]
	}

	d.logger.Debug("Element detection complete",
		zap.Int("regions", len(regions)),
		zap.Int("elements", len(elements)))
	return elements, nil
}

// luminancePlane flattens the frame to one brightness byte per pixel.
func luminancePlane(img image.Image) []uint8 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	lum := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// ITU-R BT.601 weights, on 16-bit channel values.
			v := (299*r + 587*g + 114*b) / 1000
			lum[y*w+x] = uint8(v >> 8)
		}
	}
	return lum
}

// gradientMask marks pixels whose horizontal or vertical luminance delta
// exceeds the threshold.
func (d *EdgeDetector) gradientMask(lum []uint8, w, h int) []bool {
	mask := make([]bool, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			dx := int(lum[i+1]) - int(lum[i-1])
			dy := int(lum[i+w]) - int(lum[i-w])
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			if float64(dx) >= d.gradientThreshold || float64(dy) >= d.gradientThreshold {
				mask[i] = true
			}
		}
	}
	return mask
}

// connectedRegions groups adjacent mask pixels into bounding boxes using an
// iterative flood fill (4-connectivity). Tiny specks are discarded.
func connectedRegions(mask []bool, w, h int) []schemas.BBox {
	const minPixels = 20

	visited := make([]bool, len(mask))
	var regions []schemas.BBox
	var stack []int

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}

		minX, minY := w, h
		maxX, maxY := 0, 0
		count := 0

		stack = stack[:0]
		stack = append(stack, start)
		visited[start] = true

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			count++

			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			for _, n := range [4]int{i - 1, i + 1, i - w, i + w} {
				if n < 0 || n >= len(mask) || visited[n] || !mask[n] {
					continue
				}
				// Horizontal neighbors must stay on the same row.
				if (n == i-1 || n == i+1) && n/w != y {
					continue
				}
				visited[n] = true
				stack = append(stack, n)
			}
		}

		if count < minPixels {
			continue
		}
		regions = append(regions, schemas.BBox{
			X:      minX,
			Y:      minY,
			Width:  maxX - minX + 1,
			Height: maxY - minY + 1,
		})
	}
	return regions
}
