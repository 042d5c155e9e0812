// Package schemas defines the shared data model for the kestrel agent: the
// perception snapshot, the action vocabulary, and the task/session records.
// Everything here is plain data; no package in the repository sits below it.
package schemas

import (
	"strings"
	"time"
)

// BBox is an axis-aligned bounding box in captured-image pixel space.
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the pixel at the middle of the box, the natural click target
// for a detected element.
func (b BBox) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Within reports whether the box lies entirely inside a capture of the given
// resolution.
func (b BBox) Within(width, height int) bool {
	if b.X < 0 || b.Y < 0 || b.Width < 0 || b.Height < 0 {
		return false
	}
	return b.X+b.Width <= width && b.Y+b.Height <= height
}

// Word is a single OCR token with its recognition confidence and location.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// ElementType classifies a detected interactive region.
type ElementType string

const (
	ElementButton   ElementType = "button"
	ElementInput    ElementType = "input"
	ElementIcon     ElementType = "icon"
	ElementPanel    ElementType = "panel"
	ElementLink     ElementType = "link"
	ElementMenuItem ElementType = "menu_item"
	ElementUnknown  ElementType = "unknown"
)

// UIElement is a candidate interactive region found by the element detector.
type UIElement struct {
	Type       ElementType `json:"type"`
	BBox       BBox        `json:"bbox"`
	Confidence float64     `json:"confidence"`
	Text       string      `json:"text,omitempty"`
}

// Clickable reports whether the element type is one the agent would target
// with a pointer action.
func (e UIElement) Clickable() bool {
	switch e.Type {
	case ElementButton, ElementLink, ElementMenuItem, ElementIcon:
		return true
	}
	return false
}

// ClassifyElement maps region geometry to an element type. The rules are
// ordered; the first match wins. Regions smaller than 100 px² are noise and
// classified as ElementUnknown with the expectation that the caller discards
// them.
func ClassifyElement(area, aspect float64, width, height int) ElementType {
	if area < 100 {
		return ElementUnknown
	}
	if area > 1000 && area < 50000 && aspect > 0.2 && aspect < 5 &&
		width > 20 && width < 400 && height > 15 && height < 100 {
		return ElementButton
	}
	if area > 500 && area < 100000 && aspect > 2 && height < 50 {
		return ElementInput
	}
	if area > 400 && area < 10000 && aspect > 0.5 && aspect < 2 {
		return ElementIcon
	}
	if area > 50000 {
		return ElementPanel
	}
	return ElementUnknown
}

// Resolution is the pixel size of a screen capture.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ScreenContext is one perception cycle's aggregated snapshot of the display.
// It is immutable after construction and owned by the cycle that produced it
// until the reasoning step consumes it.
type ScreenContext struct {
	Timestamp        time.Time   `json:"timestamp"`
	ScreenshotPath   string      `json:"screenshot_path"`
	OCRText          string      `json:"ocr_text"`
	Words            []Word      `json:"words"`
	UIElements       []UIElement `json:"ui_elements"`
	SceneDescription string      `json:"scene_description,omitempty"`
	Resolution       Resolution  `json:"resolution"`

	// OverallConfidence is the mean of the sub-scores that were actually
	// computed this cycle; see ComputeOverallConfidence.
	OverallConfidence float64 `json:"overall_confidence"`
}

// ElementByText returns the first element whose text contains the given
// fragment, case-insensitively. Returns nil when nothing matches.
func (c *ScreenContext) ElementByText(fragment string) *UIElement {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return nil
	}
	for i := range c.UIElements {
		if strings.Contains(strings.ToLower(c.UIElements[i].Text), needle) {
			return &c.UIElements[i]
		}
	}
	return nil
}

// ClickableElements filters the snapshot down to elements worth pointing at.
func (c *ScreenContext) ClickableElements() []UIElement {
	out := make([]UIElement, 0, len(c.UIElements))
	for _, e := range c.UIElements {
		if e.Clickable() {
			out = append(out, e)
		}
	}
	return out
}

// ComputeOverallConfidence folds the per-analyzer scores into one number.
// Only scores that were produced contribute; an analyzer that was disabled or
// returned nothing is excluded from the mean rather than counted as zero. A
// non-empty scene description contributes a fixed 0.8.
func ComputeOverallConfidence(ocrConfidence float64, hasOCR bool, elements []UIElement, sceneDescription string) float64 {
	var scores []float64
	if hasOCR && ocrConfidence > 0 {
		scores = append(scores, min1(ocrConfidence))
	}
	if len(elements) > 0 {
		var sum float64
		for _, e := range elements {
			sum += e.Confidence
		}
		scores = append(scores, min1(sum/float64(len(elements))))
	}
	if sceneDescription != "" {
		scores = append(scores, 0.8)
	}
	if len(scores) == 0 {
		return 0
	}
	var total float64
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores))
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
