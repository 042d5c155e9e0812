// internal/engine/interpret.go
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// InterpretStep lowers one step description into concrete actions, using
// the current screen context to resolve click targets. The rules mirror
// the vocabulary the planner emits; free-form step text that matches no
// rule is an error, not a guess.
func InterpretStep(step schemas.Step, screen *schemas.ScreenContext) ([]schemas.Action, error) {
	text := strings.ToLower(strings.TrimSpace(step.Description))

	switch {
	case strings.HasPrefix(text, "wait"):
		return []schemas.Action{schemas.Wait{Duration: 2 * time.Second}}, nil

	case strings.HasPrefix(text, "press "):
		key := normalizeKey(strings.TrimPrefix(text, "press "))
		return []schemas.Action{schemas.KeyPress{Key: key}}, nil

	case strings.HasPrefix(text, "type "):
		content := strings.TrimPrefix(text, "type ")
		// "type X into the search box" carries the target as prose; the
		// actual typing goes wherever focus is.
		for _, sep := range []string{" into ", " in "} {
			if cut := strings.Index(content, sep); cut >= 0 {
				content = content[:cut]
			}
		}
		return []schemas.Action{schemas.TypeText{Text: strings.TrimSpace(content)}}, nil

	case strings.HasPrefix(text, "go to "), strings.HasPrefix(text, "navigate to "):
		target := strings.TrimPrefix(strings.TrimPrefix(text, "go to "), "navigate to ")
		target = strings.Trim(target, ".,!? ")
		// Focus the address bar, type the URL, commit.
		return []schemas.Action{
			schemas.KeyPress{Key: "ctrl+l"},
			schemas.TypeText{Text: target},
			schemas.KeyPress{Key: "enter"},
		}, nil

	case strings.HasPrefix(text, "open "), strings.HasPrefix(text, "launch "), strings.HasPrefix(text, "start "):
		name := text
		for _, verb := range []string{"open ", "launch ", "start "} {
			name = strings.TrimPrefix(name, verb)
		}
		name = strings.TrimPrefix(name, "the ")
		name = strings.TrimSuffix(name, " application")
		name = strings.Trim(name, ".,!? ")
		return []schemas.Action{schemas.LaunchApp{Name: name}}, nil

	case strings.HasPrefix(text, "close "):
		name := strings.TrimPrefix(text, "close ")
		name = strings.TrimPrefix(name, "the ")
		name = strings.Trim(name, ".,!? ")
		return []schemas.Action{schemas.CloseApp{Name: name}}, nil

	case strings.HasPrefix(text, "scroll up"):
		return []schemas.Action{schemas.Scroll{Direction: "up"}}, nil

	case strings.HasPrefix(text, "scroll"):
		return []schemas.Action{schemas.Scroll{Direction: "down"}}, nil

	case strings.HasPrefix(text, "click "):
		return interpretClick(text, screen)
	}

	return nil, fmt.Errorf("no rule matches step %q", step.Description)
}

// interpretClick resolves the click target against the perceived screen.
func interpretClick(text string, screen *schemas.ScreenContext) ([]schemas.Action, error) {
	target := strings.TrimPrefix(text, "click ")
	target = strings.TrimPrefix(target, "on ")
	target = strings.TrimPrefix(target, "the ")
	target = strings.Trim(target, ".,!? ")
	for _, noun := range []string{" button", " link", " icon", " menu"} {
		target = strings.TrimSuffix(target, noun)
	}

	if screen == nil {
		return nil, fmt.Errorf("click target %q needs a screen context", target)
	}

	// "first result" clicks the top clickable element below the browser
	// chrome rather than text-matching.
	if strings.Contains(target, "first result") {
		if el := firstResultElement(screen); el != nil {
			x, y := el.BBox.Center()
			return []schemas.Action{schemas.Click{X: x, Y: y}}, nil
		}
		return nil, fmt.Errorf("no clickable result element on screen")
	}

	// Try matching element text, then the OCR word layer.
	if el := screen.ElementByText(target); el != nil {
		x, y := el.BBox.Center()
		return []schemas.Action{schemas.Click{X: x, Y: y}}, nil
	}
	if w := wordMatch(screen, target); w != nil {
		x, y := w.BBox.Center()
		return []schemas.Action{schemas.Click{X: x, Y: y}}, nil
	}
	return nil, fmt.Errorf("click target %q not found on screen", target)
}

// firstResultElement picks the topmost clickable element below the top
// fifth of the screen, where browser chrome lives.
func firstResultElement(screen *schemas.ScreenContext) *schemas.UIElement {
	chrome := screen.Resolution.Height / 5
	var best *schemas.UIElement
	for i := range screen.UIElements {
		el := &screen.UIElements[i]
		if !el.Clickable() || el.BBox.Y < chrome {
			continue
		}
		if best == nil || el.BBox.Y < best.BBox.Y {
			best = el
		}
	}
	return best
}

// wordMatch finds the first OCR word containing the target fragment.
func wordMatch(screen *schemas.ScreenContext, target string) *schemas.Word {
	needle := strings.ToLower(target)
	for i := range screen.Words {
		if strings.Contains(strings.ToLower(screen.Words[i].Text), needle) {
			return &screen.Words[i]
		}
	}
	return nil
}

// normalizeKey folds spoken key names onto driver key names.
func normalizeKey(key string) string {
	key = strings.Trim(key, ".,!? ")
	key = strings.ReplaceAll(key, " key", "")
	switch key {
	case "return":
		return "enter"
	case "escape key", "esc":
		return "escape"
	}
	return strings.ReplaceAll(key, " ", "+")
}
