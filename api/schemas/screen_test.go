package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBBox(t *testing.T) {
	t.Parallel()

	b := BBox{X: 10, Y: 20, Width: 100, Height: 40}
	x, y := b.Center()
	assert.Equal(t, 60, x)
	assert.Equal(t, 40, y)

	assert.True(t, b.Within(1920, 1080))
	assert.False(t, b.Within(100, 50))
	assert.False(t, BBox{X: -1, Y: 0, Width: 10, Height: 10}.Within(1920, 1080))
}

func TestElementByText(t *testing.T) {
	t.Parallel()

	sc := &ScreenContext{
		UIElements: []UIElement{
			{Type: ElementButton, Text: "Cancel"},
			{Type: ElementButton, Text: "Save As..."},
		},
	}

	el := sc.ElementByText("save")
	require.NotNil(t, el)
	assert.Equal(t, "Save As...", el.Text)

	assert.Nil(t, sc.ElementByText("quit"))
	assert.Nil(t, sc.ElementByText(""))
}

func TestClickableElements(t *testing.T) {
	t.Parallel()

	sc := &ScreenContext{
		UIElements: []UIElement{
			{Type: ElementButton},
			{Type: ElementPanel},
			{Type: ElementLink},
			{Type: ElementUnknown},
		},
	}
	assert.Len(t, sc.ClickableElements(), 2)
}

func TestComputeOverallConfidence(t *testing.T) {
	t.Parallel()

	elements := []UIElement{{Confidence: 0.6}, {Confidence: 1.0}}

	cases := []struct {
		name     string
		ocr      float64
		hasOCR   bool
		elements []UIElement
		scene    string
		want     float64
	}{
		{
			name:   "all analyzers present",
			ocr:    0.9,
			hasOCR: true, elements: elements, scene: "a desktop",
			want: (0.9 + 0.8 + 0.8) / 3,
		},
		{
			name: "ocr only",
			ocr:  0.7, hasOCR: true,
			want: 0.7,
		},
		{
			name:  "scene only",
			scene: "a browser window",
			want:  0.8,
		},
		{
			name: "nothing produced",
			want: 0,
		},
		{
			name: "zero ocr confidence excluded",
			ocr:  0, hasOCR: true, scene: "something",
			want: 0.8,
		},
		{
			name: "ocr clamped to one",
			ocr:  3.0, hasOCR: true,
			want: 1.0,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ComputeOverallConfidence(tc.ocr, tc.hasOCR, tc.elements, tc.scene)
			assert.InDelta(t, tc.want, got, 0.0001)
		})
	}
}

func TestClassifyElementRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		width, height int
		want          ElementType
	}{
		{"noise", 5, 5, ElementUnknown},
		{"button", 120, 40, ElementButton},
		{"input field", 300, 30, ElementInput},
		{"icon", 24, 24, ElementIcon},
		{"panel", 600, 400, ElementPanel},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			area := float64(tc.width * tc.height)
			aspect := float64(tc.width) / float64(tc.height)
			assert.Equal(t, tc.want, ClassifyElement(area, aspect, tc.width, tc.height))
		})
	}
}
