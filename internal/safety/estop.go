// internal/safety/estop.go
package safety

import (
	"context"
	"sync/atomic"

	hook "github.com/robotn/gohook"
	"go.uber.org/zap"
)

// KeySource delivers global key-combination events. The gohook adapter is
// the production source; tests feed a channel directly.
type KeySource interface {
	// Events returns a stream that yields once per trigger-combination
	// press. The stream closes when ctx is done.
	Events(ctx context.Context) <-chan struct{}
}

// StopMonitor latches the emergency stop. Once triggered it stays
// triggered until Reset; every actuation path checks Triggered before
// touching the machine.
type StopMonitor struct {
	triggered atomic.Bool
	source    KeySource
	logger    *zap.Logger
}

// NewStopMonitor builds the monitor around a key source.
func NewStopMonitor(source KeySource, logger *zap.Logger) *StopMonitor {
	return &StopMonitor{source: source, logger: logger.Named("safety.estop")}
}

// Start watches the key source until ctx is done. Non-blocking; without a
// source the monitor can still be tripped via Trigger.
func (m *StopMonitor) Start(ctx context.Context) {
	if m.source == nil {
		return
	}
	events := m.source.Events(ctx)
	go func() {
		for range events {
			if m.triggered.CompareAndSwap(false, true) {
				m.logger.Warn("EMERGENCY STOP triggered")
			}
		}
	}()
}

// Trigger latches the stop programmatically.
func (m *StopMonitor) Trigger() {
	if m.triggered.CompareAndSwap(false, true) {
		m.logger.Warn("EMERGENCY STOP triggered")
	}
}

// Triggered reports whether the stop is latched.
func (m *StopMonitor) Triggered() bool {
	return m.triggered.Load()
}

// Reset clears the latch. Only an explicit operator decision should call
// this.
func (m *StopMonitor) Reset() {
	if m.triggered.CompareAndSwap(true, false) {
		m.logger.Info("Emergency stop reset")
	}
}

// HotkeySource watches the global keyboard for Ctrl+Shift+Q through an OS
// hook. It works even while the agent itself is generating input events.
type HotkeySource struct {
	logger *zap.Logger
}

var _ KeySource = (*HotkeySource)(nil)

// NewHotkeySource builds the source.
func NewHotkeySource(logger *zap.Logger) *HotkeySource {
	return &HotkeySource{logger: logger.Named("safety.hotkey")}
}

// Events starts the OS keyboard hook and yields on every Ctrl+Shift+Q.
func (s *HotkeySource) Events(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)

	hook.Register(hook.KeyDown, []string{"ctrl", "shift", "q"}, func(hook.Event) {
		select {
		case out <- struct{}{}:
		default: // latch pending, drop repeats
		}
	})

	go func() {
		defer close(out)
		s.logger.Info("Emergency stop hotkey armed", zap.String("combo", "ctrl+shift+q"))

		evs := hook.Start()
		done := hook.Process(evs)
		select {
		case <-ctx.Done():
			hook.End()
			<-done
		case <-done:
		}
	}()

	return out
}
