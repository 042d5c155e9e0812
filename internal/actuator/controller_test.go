// internal/actuator/controller_test.go
package actuator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/safety"
)

// fakeSurface records calls and can fail on demand.
type fakeSurface struct {
	width, height int
	calls         []string
	failWith      error
}

func (f *fakeSurface) record(format string, args ...interface{}) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.failWith
}

func (f *fakeSurface) Capture(context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, f.width, f.height)), nil
}

func (f *fakeSurface) Bounds() (int, int, error) { return f.width, f.height, nil }
func (f *fakeSurface) MoveMouse(_ context.Context, x, y int, _ time.Duration) error {
	return f.record("move %d,%d", x, y)
}
func (f *fakeSurface) Click(_ context.Context, x, y int, button string, clicks int) error {
	return f.record("click %d,%d %s x%d", x, y, button, clicks)
}
func (f *fakeSurface) TypeText(_ context.Context, text string, _ time.Duration) error {
	return f.record("type %s", text)
}
func (f *fakeSurface) PressKey(_ context.Context, key string, presses int) error {
	return f.record("key %s x%d", key, presses)
}
func (f *fakeSurface) Scroll(_ context.Context, direction string, amount int) error {
	return f.record("scroll %s %d", direction, amount)
}
func (f *fakeSurface) Drag(_ context.Context, sx, sy, ex, ey int, _ time.Duration) error {
	return f.record("drag %d,%d->%d,%d", sx, sy, ex, ey)
}
func (f *fakeSurface) LaunchApp(_ context.Context, name, _ string) error {
	return f.record("launch %s", name)
}
func (f *fakeSurface) CloseApp(_ context.Context, name string) error {
	return f.record("close %s", name)
}

type alwaysYes struct{}

func (alwaysYes) Ask(context.Context, string) (bool, error) { return true, nil }

type alwaysNo struct{}

func (alwaysNo) Ask(context.Context, string) (bool, error) { return false, nil }

// nilSource is a KeySource that never fires.
type nilSource struct{}

func (nilSource) Events(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out
}

func newTestController(surf *fakeSurface, prompter safety.Prompter, cfg config.ExecutorConfig) (*Controller, *safety.StopMonitor) {
	logger := zap.NewNop()
	safetyCfg := config.SafetyConfig{
		SafeMode:                true,
		ConfirmSensitiveActions: true,
		ConfirmTimeout:          time.Second,
	}
	validator := safety.NewValidator(safetyCfg, logger)
	gate := safety.NewGate(prompter, safetyCfg, logger)
	estop := safety.NewStopMonitor(nilSource{}, logger)
	return NewController(surf, validator, gate, estop, nil, nil, cfg, 100, logger), estop
}

func TestExecuteBenignAction(t *testing.T) {
	t.Parallel()

	surf := &fakeSurface{width: 1920, height: 1080}
	ctrl, _ := newTestController(surf, alwaysNo{}, config.ExecutorConfig{DisplayScaling: 1.0})

	res := ctrl.Execute(context.Background(), schemas.Click{X: 100, Y: 200})
	assert.True(t, res.Success)
	assert.Equal(t, schemas.ActionClick, res.ActionType)
	require.Len(t, surf.calls, 1)
	assert.Equal(t, "click 100,200 left x1", surf.calls[0])

	// The result landed in history.
	assert.Equal(t, 1, ctrl.History().Len())
}

func TestExecuteAppliesDisplayScaling(t *testing.T) {
	t.Parallel()

	surf := &fakeSurface{width: 3840, height: 2160}
	ctrl, _ := newTestController(surf, alwaysNo{}, config.ExecutorConfig{DisplayScaling: 2.0})

	res := ctrl.Execute(context.Background(), schemas.Click{X: 100, Y: 200})
	require.True(t, res.Success)
	assert.Equal(t, "click 200,400 left x1", surf.calls[0])
}

func TestExecuteRefusesOutOfBounds(t *testing.T) {
	t.Parallel()

	surf := &fakeSurface{width: 800, height: 600}
	ctrl, _ := newTestController(surf, alwaysNo{}, config.ExecutorConfig{DisplayScaling: 1.0})

	res := ctrl.Execute(context.Background(), schemas.Click{X: 900, Y: 100})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "outside surface")
	// Never clamped, never dispatched.
	assert.Empty(t, surf.calls)
}

func TestExecuteConfirmationFlow(t *testing.T) {
	t.Parallel()

	sensitive := schemas.TypeText{Text: "my password is hunter2"}

	t.Run("approved runs", func(t *testing.T) {
		t.Parallel()
		surf := &fakeSurface{width: 800, height: 600}
		ctrl, _ := newTestController(surf, alwaysYes{}, config.ExecutorConfig{})

		res := ctrl.Execute(context.Background(), sensitive)
		assert.True(t, res.Success)
		require.Len(t, surf.calls, 1)
	})

	t.Run("denied does not run", func(t *testing.T) {
		t.Parallel()
		surf := &fakeSurface{width: 800, height: 600}
		ctrl, _ := newTestController(surf, alwaysNo{}, config.ExecutorConfig{})

		res := ctrl.Execute(context.Background(), sensitive)
		assert.False(t, res.Success)
		assert.True(t, res.ConfirmationRequired)
		assert.Empty(t, surf.calls)
	})

	t.Run("confirm flag off runs without prompting", func(t *testing.T) {
		t.Parallel()
		surf := &fakeSurface{width: 800, height: 600}
		logger := zap.NewNop()
		safetyCfg := config.SafetyConfig{
			SafeMode:                true,
			ConfirmSensitiveActions: false,
			ConfirmTimeout:          time.Second,
		}
		validator := safety.NewValidator(safetyCfg, logger)
		// A prompter that would deny: it must never be consulted.
		gate := safety.NewGate(alwaysNo{}, safetyCfg, logger)
		ctrl := NewController(surf, validator, gate, nil, nil, nil, config.ExecutorConfig{}, 100, logger)

		res := ctrl.Execute(context.Background(), sensitive)
		assert.True(t, res.Success)
		require.Len(t, surf.calls, 1)
	})
}

func TestExecuteRejectedAction(t *testing.T) {
	t.Parallel()

	surf := &fakeSurface{width: 800, height: 600}
	ctrl, _ := newTestController(surf, alwaysYes{}, config.ExecutorConfig{})

	res := ctrl.Execute(context.Background(), schemas.SystemCommand{Command: "rm -rf /"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "rejected")
	assert.Empty(t, surf.calls)
}

func TestExecuteEmergencyStop(t *testing.T) {
	t.Parallel()

	surf := &fakeSurface{width: 800, height: 600}
	ctrl, estop := newTestController(surf, alwaysYes{}, config.ExecutorConfig{})

	estop.Trigger()
	res := ctrl.Execute(context.Background(), schemas.Click{X: 1, Y: 1})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "emergency stop")
	assert.Empty(t, surf.calls)
}

func TestExecuteSurfaceFailureBecomesResult(t *testing.T) {
	t.Parallel()

	surf := &fakeSurface{width: 800, height: 600, failWith: errors.New("input device busy")}
	ctrl, _ := newTestController(surf, alwaysNo{}, config.ExecutorConfig{})

	res := ctrl.Execute(context.Background(), schemas.KeyPress{Key: "enter"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "input device busy")
}

func TestHistoryBounded(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Append(schemas.ActionResult{Details: fmt.Sprintf("r%d", i)})
	}
	all := h.All()
	require.Len(t, all, 3)
	assert.Equal(t, "r2", all[0].Details)
	assert.Equal(t, "r4", all[2].Details)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "r4", last.Details)
}
