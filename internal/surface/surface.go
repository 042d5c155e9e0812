// Package surface abstracts the machine the agent operates: where pixels
// come from and where input events go. Two implementations exist, the real
// desktop and a Chrome tab driven over CDP; the rest of the agent is blind to
// which one is wired in.
package surface

import (
	"context"
	"image"
	"time"
)

// ScreenSource yields the current frame of the controlled surface.
type ScreenSource interface {
	// Capture grabs the current frame. The returned image is owned by the
	// caller.
	Capture(ctx context.Context) (image.Image, error)
	// Bounds reports the surface dimensions in logical pixels.
	Bounds() (width, height int, err error)
}

// InputDriver delivers input events to the controlled surface. Coordinates
// are logical pixels; display scaling is applied by the caller before the
// driver sees them.
type InputDriver interface {
	MoveMouse(ctx context.Context, x, y int, duration time.Duration) error
	Click(ctx context.Context, x, y int, button string, clicks int) error
	TypeText(ctx context.Context, text string, interval time.Duration) error
	// PressKey taps a key or a "+"-joined combination such as "ctrl+l".
	PressKey(ctx context.Context, key string, presses int) error
	Scroll(ctx context.Context, direction string, amount int) error
	Drag(ctx context.Context, startX, startY, endX, endY int, duration time.Duration) error
	LaunchApp(ctx context.Context, name, path string) error
	CloseApp(ctx context.Context, name string) error
}

// Surface bundles the two halves most callers need together.
type Surface interface {
	ScreenSource
	InputDriver
}
