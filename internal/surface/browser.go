// internal/surface/browser.go
package surface

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Browser drives a single Chrome tab over CDP. It exists for environments
// where the agent is not allowed to own the whole desktop: the tab becomes
// the surface, and every action lands inside it.
type Browser struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

var _ Surface = (*Browser)(nil)

// NewBrowser allocates a headful Chrome instance and opens a blank tab.
// Close must be called to reap the browser process.
func NewBrowser(parent context.Context, logger *zap.Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-infobars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("browser startup failed: %w", err)
	}

	cancel := func() {
		tabCancel()
		allocCancel()
	}
	return &Browser{ctx: tabCtx, cancel: cancel, logger: logger.Named("surface.browser")}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.cancel()
}

// run executes chromedp actions against the tab, honoring the caller's ctx.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(b.ctx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Capture screenshots the viewport.
func (b *Browser) Capture(ctx context.Context) (image.Image, error) {
	var buf []byte
	if err := b.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("viewport capture failed: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("screenshot decode failed: %w", err)
	}
	return img, nil
}

// Bounds reports the viewport size.
func (b *Browser) Bounds() (int, int, error) {
	var dims []int
	err := b.run(context.Background(),
		chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &dims))
	if err != nil || len(dims) != 2 {
		return 0, 0, fmt.Errorf("viewport bounds unavailable: %w", err)
	}
	return dims[0], dims[1], nil
}

// MoveMouse dispatches a mouseMoved event.
func (b *Browser) MoveMouse(ctx context.Context, x, y int, _ time.Duration) error {
	p := input.DispatchMouseEvent(input.MouseMoved, float64(x), float64(y))
	return b.run(ctx, p)
}

// Click dispatches a press/release pair at (x, y).
func (b *Browser) Click(ctx context.Context, x, y int, button string, clicks int) error {
	btn := input.MouseButton(button)
	if button == "" {
		btn = input.Left
	}
	fx, fy := float64(x), float64(y)
	down := input.DispatchMouseEvent(input.MousePressed, fx, fy).
		WithButton(btn).WithClickCount(int64(clicks))
	up := input.DispatchMouseEvent(input.MouseReleased, fx, fy).
		WithButton(btn).WithClickCount(int64(clicks))
	return b.run(ctx, down, up)
}

// TypeText sends the string through the CDP keyboard.
func (b *Browser) TypeText(ctx context.Context, text string, interval time.Duration) error {
	if interval <= 0 {
		return b.run(ctx, chromedp.KeyEvent(text))
	}
	for _, r := range text {
		if err := b.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// PressKey dispatches a keyDown/keyUp pair, with modifiers parsed from a
// "+"-joined combination.
func (b *Browser) PressKey(ctx context.Context, key string, presses int) error {
	parts := strings.Split(strings.ToLower(key), "+")
	main := parts[len(parts)-1]

	var mods input.Modifier
	for _, m := range parts[:len(parts)-1] {
		switch m {
		case "ctrl", "control":
			mods |= input.ModifierCtrl
		case "alt":
			mods |= input.ModifierAlt
		case "shift":
			mods |= input.ModifierShift
		case "meta", "cmd", "win":
			mods |= input.ModifierMeta
		default:
			return fmt.Errorf("unknown modifier %q", m)
		}
	}

	keyDown := input.DispatchKeyEvent(input.KeyDown).WithModifiers(mods).WithKey(main)
	keyUp := input.DispatchKeyEvent(input.KeyUp).WithModifiers(mods).WithKey(main)
	for i := 0; i < presses; i++ {
		if err := b.run(ctx, keyDown, keyUp); err != nil {
			return fmt.Errorf("key dispatch %q failed: %w", key, err)
		}
	}
	return nil
}

// Scroll dispatches a wheel event at the viewport center.
func (b *Browser) Scroll(ctx context.Context, direction string, amount int) error {
	w, h, err := b.Bounds()
	if err != nil {
		return err
	}
	var deltaY float64
	switch strings.ToLower(direction) {
	case "up":
		deltaY = -float64(amount) * 100
	case "down":
		deltaY = float64(amount) * 100
	default:
		return fmt.Errorf("unknown scroll direction %q", direction)
	}
	p := input.DispatchMouseEvent(input.MouseWheel, float64(w)/2, float64(h)/2).
		WithDeltaX(0).WithDeltaY(deltaY)
	return b.run(ctx, p)
}

// Drag presses, moves, and releases across the viewport.
func (b *Browser) Drag(ctx context.Context, startX, startY, endX, endY int, _ time.Duration) error {
	down := input.DispatchMouseEvent(input.MousePressed, float64(startX), float64(startY)).
		WithButton(input.Left).WithClickCount(1)
	move := input.DispatchMouseEvent(input.MouseMoved, float64(endX), float64(endY)).
		WithButton(input.Left)
	up := input.DispatchMouseEvent(input.MouseReleased, float64(endX), float64(endY)).
		WithButton(input.Left).WithClickCount(1)
	return b.run(ctx, down, move, up)
}

// LaunchApp navigates the tab; the "application" of a browser surface is a
// URL or an app name resolved to one.
func (b *Browser) LaunchApp(ctx context.Context, name, path string) error {
	target := path
	if target == "" {
		target = name
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	b.logger.Info("Navigating tab", zap.String("url", target))
	return b.run(ctx, chromedp.Navigate(target))
}

// CloseApp blanks the tab.
func (b *Browser) CloseApp(ctx context.Context, _ string) error {
	return b.run(ctx, chromedp.Navigate("about:blank"))
}
