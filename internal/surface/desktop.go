// internal/surface/desktop.go
package surface

import (
	"context"
	"fmt"
	"image"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Desktop drives the primary display through OS-level input injection.
type Desktop struct {
	logger *zap.Logger
}

var _ Surface = (*Desktop)(nil)

// NewDesktop builds the desktop surface.
func NewDesktop(logger *zap.Logger) *Desktop {
	return &Desktop{logger: logger.Named("surface.desktop")}
}

// Capture grabs the primary display.
func (d *Desktop) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if screenshot.NumActiveDisplays() == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	img, err := screenshot.CaptureDisplay(0)
	if err != nil {
		return nil, fmt.Errorf("display capture failed: %w", err)
	}
	return img, nil
}

// Bounds reports the primary display size.
func (d *Desktop) Bounds() (int, int, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return 0, 0, fmt.Errorf("no active displays")
	}
	b := screenshot.GetDisplayBounds(0)
	return b.Dx(), b.Dy(), nil
}

// MoveMouse glides the pointer to (x, y). A zero duration jumps directly.
func (d *Desktop) MoveMouse(ctx context.Context, x, y int, duration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if duration <= 0 {
		robotgo.Move(x, y)
		return nil
	}
	robotgo.MoveSmooth(x, y, 1.0, float64(duration.Milliseconds())/1000.0)
	return nil
}

// Click presses the given button at (x, y).
func (d *Desktop) Click(ctx context.Context, x, y int, button string, clicks int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Move(x, y)
	double := clicks >= 2
	robotgo.Click(button, double)
	d.logger.Debug("Mouse click dispatched",
		zap.Int("x", x), zap.Int("y", y),
		zap.String("button", button), zap.Int("clicks", clicks))
	return nil
}

// TypeText injects the string one keystroke at a time.
func (d *Desktop) TypeText(ctx context.Context, text string, interval time.Duration) error {
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		robotgo.TypeStr(string(r))
		if interval > 0 {
			time.Sleep(interval)
		}
	}
	return nil
}

// PressKey taps a key or combination like "ctrl+shift+t".
func (d *Desktop) PressKey(ctx context.Context, key string, presses int) error {
	parts := strings.Split(strings.ToLower(key), "+")
	main := parts[len(parts)-1]
	mods := make([]interface{}, 0, len(parts)-1)
	for _, m := range parts[:len(parts)-1] {
		mods = append(mods, m)
	}
	for i := 0; i < presses; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := robotgo.KeyTap(main, mods...); err != nil {
			return fmt.Errorf("key tap %q failed: %w", key, err)
		}
	}
	return nil
}

// Scroll turns the wheel; positive amounts only, direction selects the sign.
func (d *Desktop) Scroll(ctx context.Context, direction string, amount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch strings.ToLower(direction) {
	case "up":
		robotgo.Scroll(0, amount)
	case "down":
		robotgo.Scroll(0, -amount)
	default:
		return fmt.Errorf("unknown scroll direction %q", direction)
	}
	return nil
}

// Drag holds the primary button from start to end.
func (d *Desktop) Drag(ctx context.Context, startX, startY, endX, endY int, duration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Move(startX, startY)
	robotgo.Toggle("left", "down")
	if duration <= 0 {
		robotgo.Move(endX, endY)
	} else {
		robotgo.MoveSmooth(endX, endY, 1.0, float64(duration.Milliseconds())/1000.0)
	}
	robotgo.Toggle("left", "up")
	return nil
}

// LaunchApp starts the application and does not wait for it to exit.
func (d *Desktop) LaunchApp(ctx context.Context, name, path string) error {
	target := path
	if target == "" {
		target = name
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", "-a", target)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/C", "start", "", target)
	default:
		cmd = exec.CommandContext(ctx, target)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %q failed: %w", target, err)
	}
	d.logger.Info("Application launched", zap.String("app", target), zap.Int("pid", cmd.Process.Pid))
	// Detach; the process outlives the action.
	go func() { _ = cmd.Wait() }()
	return nil
}

// CloseApp terminates processes whose name matches. Matching is
// case-insensitive on the executable name.
func (d *Desktop) CloseApp(ctx context.Context, name string) error {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return fmt.Errorf("process listing failed: %w", err)
	}
	needle := strings.ToLower(name)
	var terminated int
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !strings.Contains(strings.ToLower(pname), needle) {
			continue
		}
		if err := p.TerminateWithContext(ctx); err != nil {
			d.logger.Warn("Failed to terminate process",
				zap.Int32("pid", p.Pid), zap.String("name", pname), zap.Error(err))
			continue
		}
		terminated++
	}
	if terminated == 0 {
		return fmt.Errorf("no process matching %q", name)
	}
	d.logger.Info("Application closed", zap.String("app", name), zap.Int("processes", terminated))
	return nil
}
