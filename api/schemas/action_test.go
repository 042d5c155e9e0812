package schemas

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		json string
		want Action
	}{
		{
			name: "click",
			json: `{"type": "click", "x": 100, "y": 200}`,
			want: Click{X: 100, Y: 200},
		},
		{
			name: "click at origin is valid",
			json: `{"type": "click", "x": 0, "y": 0, "button": "right", "clicks": 2}`,
			want: Click{Button: "right", Clicks: 2},
		},
		{
			name: "type shorthand",
			json: `{"type": "type", "text": "hello"}`,
			want: TypeText{Text: "hello"},
		},
		{
			name: "type tag is case-insensitive",
			json: `{"type": "Key_Press", "key": "enter"}`,
			want: KeyPress{Key: "enter"},
		},
		{
			name: "drag",
			json: `{"type": "drag", "start_x": 1, "start_y": 2, "end_x": 3, "end_y": 4}`,
			want: Drag{StartX: 1, StartY: 2, EndX: 3, EndY: 4},
		},
		{
			name: "launch app",
			json: `{"type": "launch_app", "app_name": "firefox"}`,
			want: LaunchApp{Name: "firefox"},
		},
		{
			name: "wait",
			json: `{"type": "wait", "duration": 2000000000}`,
			want: Wait{Duration: 2000000000},
		},
		{
			name: "file operation",
			json: `{"type": "file_operation", "operation": "delete", "path": "/tmp/x"}`,
			want: FileOperation{Operation: "delete", Path: "/tmp/x"},
		},
		{
			name: "password entry",
			json: `{"type": "password_entry", "field": "login form"}`,
			want: PasswordEntry{Field: "login form"},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeAction([]byte(tc.json))
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("decoded action mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeActionErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		json   string
		reason string
	}{
		{
			name:   "unknown type",
			json:   `{"type": "levitate", "x": 1}`,
			reason: "unsupported action type",
		},
		{
			name:   "missing type tag",
			json:   `{"x": 1, "y": 2}`,
			reason: "unsupported action type",
		},
		{
			name:   "missing required parameter",
			json:   `{"type": "click", "x": 100}`,
			reason: "missing parameter y",
		},
		{
			name:   "missing command",
			json:   `{"type": "system_command"}`,
			reason: "missing parameter command",
		},
		{
			name:   "malformed document",
			json:   `{"type": "click"`,
			reason: "",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeAction([]byte(tc.json))
			require.Error(t, err)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			if tc.reason != "" {
				assert.Contains(t, decodeErr.Reason, tc.reason)
			}
		})
	}
}

func TestEncodeActionRoundTrip(t *testing.T) {
	t.Parallel()

	original := Drag{StartX: 10, StartY: 20, EndX: 30, EndY: 40}
	data, err := EncodeAction(original)
	require.NoError(t, err)

	decoded, err := DecodeAction(data)
	require.NoError(t, err)
	if diff := cmp.Diff(Action(original), decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestActionDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "left", Click{}.ButtonOrDefault())
	assert.Equal(t, "middle", Click{Button: "middle"}.ButtonOrDefault())
	assert.Equal(t, 1, Click{}.ClicksOrDefault())
	assert.Equal(t, 1, KeyPress{}.PressesOrDefault())
	assert.Equal(t, 3, Scroll{}.AmountOrDefault())
	assert.Equal(t, 5, Scroll{Amount: 5}.AmountOrDefault())
}

func TestSafetyLevels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SafetyBenign, Click{}.SafetyLevel())
	assert.Equal(t, SafetyLow, TypeText{}.SafetyLevel())
	assert.Equal(t, SafetyConfirmed, FileOperation{}.SafetyLevel())
	assert.Equal(t, SafetyConfirmed, SystemCommand{}.SafetyLevel())
	assert.Equal(t, SafetyConfirmed, PasswordEntry{}.SafetyLevel())
}
