package schemas

import (
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
)

// ActionType enumerates the atomic operations the agent can perform.
type ActionType string

const (
	ActionClick         ActionType = "click"
	ActionTypeText      ActionType = "type_text"
	ActionKeyPress      ActionType = "key_press"
	ActionScroll        ActionType = "scroll"
	ActionDrag          ActionType = "drag"
	ActionMoveMouse     ActionType = "move_mouse"
	ActionLaunchApp     ActionType = "launch_app"
	ActionCloseApp      ActionType = "close_app"
	ActionWait          ActionType = "wait"
	ActionFileOperation ActionType = "file_operation"
	ActionSystemCommand ActionType = "system_command"
	ActionPasswordEntry ActionType = "password_entry"
)

// Safety levels rank how dangerous an action class is. Level 3 always
// requires confirmation before execution.
const (
	SafetyBenign    = 0
	SafetyLow       = 1
	SafetyElevated  = 2
	SafetyConfirmed = 3
)

// Action is a tagged variant: one concrete type per action kind, each
// carrying exactly the parameters that kind requires. This replaces the
// loosely-typed parameter maps the reasoning oracle emits; DecodeAction is
// the single place where missing parameters can surface.
type Action interface {
	Type() ActionType
	// SafetyLevel ranks the action class from 0 (benign) to 3 (always
	// confirmed).
	SafetyLevel() int
	// Describe renders the action and its parameters as the text the
	// sensitive-keyword scan runs against.
	Describe() string
}

// Click presses a mouse button at absolute screen coordinates.
type Click struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Button string `json:"button,omitempty"` // defaults to "left"
	Clicks int    `json:"clicks,omitempty"` // defaults to 1
}

func (a Click) Type() ActionType { return ActionClick }
func (a Click) SafetyLevel() int { return SafetyBenign }
func (a Click) Describe() string {
	return fmt.Sprintf("click %s at (%d,%d)", a.ButtonOrDefault(), a.X, a.Y)
}

// ButtonOrDefault returns the configured button, defaulting to left.
func (a Click) ButtonOrDefault() string {
	if a.Button == "" {
		return "left"
	}
	return a.Button
}

// ClicksOrDefault returns the click count, defaulting to a single click.
func (a Click) ClicksOrDefault() int {
	if a.Clicks <= 0 {
		return 1
	}
	return a.Clicks
}

// TypeText injects a string through the keyboard.
type TypeText struct {
	Text     string        `json:"text"`
	Interval time.Duration `json:"interval,omitempty"` // per-keystroke pacing
}

func (a TypeText) Type() ActionType { return ActionTypeText }
func (a TypeText) SafetyLevel() int { return SafetyLow }
func (a TypeText) Describe() string { return "type " + a.Text }

// KeyPress taps a key or a "+"-joined combination, e.g. "ctrl+l".
type KeyPress struct {
	Key     string `json:"key"`
	Presses int    `json:"presses,omitempty"`
}

func (a KeyPress) Type() ActionType { return ActionKeyPress }
func (a KeyPress) SafetyLevel() int { return SafetyLow }
func (a KeyPress) Describe() string { return "press " + a.Key }

// PressesOrDefault returns the repeat count, defaulting to one.
func (a KeyPress) PressesOrDefault() int {
	if a.Presses <= 0 {
		return 1
	}
	return a.Presses
}

// Scroll moves the wheel in a direction by a number of notches.
type Scroll struct {
	Direction string `json:"direction"` // "up" or "down"
	Amount    int    `json:"amount,omitempty"`
}

func (a Scroll) Type() ActionType { return ActionScroll }
func (a Scroll) SafetyLevel() int { return SafetyBenign }
func (a Scroll) Describe() string { return "scroll " + a.Direction }

// AmountOrDefault returns the notch count, defaulting to three.
func (a Scroll) AmountOrDefault() int {
	if a.Amount <= 0 {
		return 3
	}
	return a.Amount
}

// Drag holds the primary button from the start point to the end point.
type Drag struct {
	StartX   int           `json:"start_x"`
	StartY   int           `json:"start_y"`
	EndX     int           `json:"end_x"`
	EndY     int           `json:"end_y"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (a Drag) Type() ActionType { return ActionDrag }
func (a Drag) SafetyLevel() int { return SafetyLow }
func (a Drag) Describe() string {
	return fmt.Sprintf("drag (%d,%d) to (%d,%d)", a.StartX, a.StartY, a.EndX, a.EndY)
}

// MoveMouse repositions the pointer without clicking.
type MoveMouse struct {
	X        int           `json:"x"`
	Y        int           `json:"y"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (a MoveMouse) Type() ActionType { return ActionMoveMouse }
func (a MoveMouse) SafetyLevel() int { return SafetyLow }
func (a MoveMouse) Describe() string { return fmt.Sprintf("move mouse to (%d,%d)", a.X, a.Y) }

// LaunchApp starts an application by name or explicit executable path.
type LaunchApp struct {
	Name string `json:"app_name"`
	Path string `json:"app_path,omitempty"`
}

func (a LaunchApp) Type() ActionType { return ActionLaunchApp }
func (a LaunchApp) SafetyLevel() int { return SafetyLow }
func (a LaunchApp) Describe() string { return "launch " + a.Name + " " + a.Path }

// CloseApp terminates an application previously launched by the agent.
type CloseApp struct {
	Name string `json:"app_name"`
}

func (a CloseApp) Type() ActionType { return ActionCloseApp }
func (a CloseApp) SafetyLevel() int { return SafetyLow }
func (a CloseApp) Describe() string { return "close " + a.Name }

// Wait pauses for a duration without touching the desktop.
type Wait struct {
	Duration time.Duration `json:"duration"`
}

func (a Wait) Type() ActionType { return ActionWait }
func (a Wait) SafetyLevel() int { return SafetyBenign }
func (a Wait) Describe() string { return "wait " + a.Duration.String() }

// FileOperation manipulates the filesystem on the user's behalf. Always
// confirmed; delete/format outside the safe zones is rejected outright.
type FileOperation struct {
	Operation string `json:"operation"` // delete, move, copy, format, ...
	Path      string `json:"path"`
}

func (a FileOperation) Type() ActionType { return ActionFileOperation }
func (a FileOperation) SafetyLevel() int { return SafetyConfirmed }
func (a FileOperation) Describe() string { return a.Operation + " " + a.Path }

// SystemCommand runs a shell command. Always confirmed.
type SystemCommand struct {
	Command string `json:"command"`
}

func (a SystemCommand) Type() ActionType { return ActionSystemCommand }
func (a SystemCommand) SafetyLevel() int { return SafetyConfirmed }
func (a SystemCommand) Describe() string { return a.Command }

// PasswordEntry types into a credential field. Always confirmed; the value
// itself never travels through the action, only the field label.
type PasswordEntry struct {
	Field string `json:"field"`
}

func (a PasswordEntry) Type() ActionType { return ActionPasswordEntry }
func (a PasswordEntry) SafetyLevel() int { return SafetyConfirmed }
func (a PasswordEntry) Describe() string { return "password entry " + a.Field }

// DecodeError reports a structurally invalid action envelope: an unknown
// type tag or a missing required parameter.
type DecodeError struct {
	ActionType ActionType
	Reason     string
}

func (e *DecodeError) Error() string {
	if e.ActionType == "" {
		return "invalid action: " + e.Reason
	}
	return fmt.Sprintf("invalid %s action: %s", e.ActionType, e.Reason)
}

var jsonAPI = json.ConfigCompatibleWithStandardLibrary

// requiredParams lists the envelope keys that must be present per action
// type. Presence is checked on the raw document so that a zero value (e.g.
// x=0) is still a valid, explicit parameter.
var requiredParams = map[ActionType][]string{
	ActionClick:         {"x", "y"},
	ActionTypeText:      {"text"},
	ActionKeyPress:      {"key"},
	ActionScroll:        {"direction"},
	ActionDrag:          {"start_x", "start_y", "end_x", "end_y"},
	ActionMoveMouse:     {"x", "y"},
	ActionLaunchApp:     {"app_name"},
	ActionCloseApp:      {"app_name"},
	ActionWait:          {"duration"},
	ActionFileOperation: {"operation", "path"},
	ActionSystemCommand: {"command"},
	ActionPasswordEntry: {"field"},
}

// DecodeAction parses a JSON envelope of the form {"type": ..., <params>}
// into the matching variant. Unknown types and missing required parameters
// are returned as *DecodeError so the validator can reject them uniformly.
func DecodeAction(data []byte) (Action, error) {
	var raw map[string]json.RawMessage
	if err := jsonAPI.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}

	var kind ActionType
	if tag, ok := raw["type"]; ok {
		if err := jsonAPI.Unmarshal(tag, &kind); err != nil {
			return nil, &DecodeError{Reason: "unreadable type tag"}
		}
	}
	kind = ActionType(strings.ToLower(strings.TrimSpace(string(kind))))
	if kind == "type" { // common oracle shorthand
		kind = ActionTypeText
	}

	required, known := requiredParams[kind]
	if !known {
		return nil, &DecodeError{ActionType: kind, Reason: "unsupported action type"}
	}
	for _, key := range required {
		if _, ok := raw[key]; !ok {
			return nil, &DecodeError{ActionType: kind, Reason: "missing parameter " + key}
		}
	}

	decode := func(dst Action) (Action, error) {
		if err := jsonAPI.Unmarshal(data, dst); err != nil {
			return nil, &DecodeError{ActionType: kind, Reason: err.Error()}
		}
		return deref(dst), nil
	}

	switch kind {
	case ActionClick:
		return decode(&Click{})
	case ActionTypeText:
		return decode(&TypeText{})
	case ActionKeyPress:
		return decode(&KeyPress{})
	case ActionScroll:
		return decode(&Scroll{})
	case ActionDrag:
		return decode(&Drag{})
	case ActionMoveMouse:
		return decode(&MoveMouse{})
	case ActionLaunchApp:
		return decode(&LaunchApp{})
	case ActionCloseApp:
		return decode(&CloseApp{})
	case ActionWait:
		return decode(&Wait{})
	case ActionFileOperation:
		return decode(&FileOperation{})
	case ActionSystemCommand:
		return decode(&SystemCommand{})
	case ActionPasswordEntry:
		return decode(&PasswordEntry{})
	}
	return nil, &DecodeError{ActionType: kind, Reason: "unsupported action type"}
}

// EncodeAction renders an action back into its JSON envelope form, used for
// the audit trail and the result echo.
func EncodeAction(a Action) ([]byte, error) {
	body, err := jsonAPI.Marshal(a)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := jsonAPI.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = a.Type()
	return jsonAPI.Marshal(fields)
}

// deref unwraps the pointer handed to decode so callers always hold value
// variants, keeping Action comparisons and copies cheap.
func deref(a Action) Action {
	switch v := a.(type) {
	case *Click:
		return *v
	case *TypeText:
		return *v
	case *KeyPress:
		return *v
	case *Scroll:
		return *v
	case *Drag:
		return *v
	case *MoveMouse:
		return *v
	case *LaunchApp:
		return *v
	case *CloseApp:
		return *v
	case *Wait:
		return *v
	case *FileOperation:
		return *v
	case *PasswordEntry:
		return *v
	case *SystemCommand:
		return *v
	}
	return a
}
