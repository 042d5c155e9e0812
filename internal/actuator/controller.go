// Package actuator executes validated actions against the configured
// surface. Every action runs the same pipeline: emergency stop check,
// safety validation, operator confirmation when required, then dispatch.
// Failures never escape as errors; they come back as failed ActionResults
// so the engine can apply its retry policy uniformly.
package actuator

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/audit"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/safety"
	"github.com/kestrelhq/kestrel/internal/surface"
)

// Controller owns the actuation pipeline.
type Controller struct {
	surface   surface.Surface
	validator *safety.Validator
	gate      *safety.Gate
	estop     *safety.StopMonitor
	auditLog  *audit.Log
	shell     *Shell
	history   *History
	cfg       config.ExecutorConfig
	logger    *zap.Logger

	sessionID string
}

// NewController wires the pipeline. auditLog and shell may be nil; a nil
// shell makes file operations and system commands fail as unexecutable.
func NewController(
	surf surface.Surface,
	validator *safety.Validator,
	gate *safety.Gate,
	estop *safety.StopMonitor,
	auditLog *audit.Log,
	shell *Shell,
	cfg config.ExecutorConfig,
	historySize int,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		surface:   surf,
		validator: validator,
		gate:      gate,
		estop:     estop,
		auditLog:  auditLog,
		shell:     shell,
		history:   NewHistory(historySize),
		cfg:       cfg,
		logger:    logger.Named("actuator"),
	}
}

// SetSession tags subsequent audit records with the session id.
func (c *Controller) SetSession(id string) { c.sessionID = id }

// History returns the bounded action history.
func (c *Controller) History() *History { return c.history }

// Execute runs one action through the full pipeline.
func (c *Controller) Execute(ctx context.Context, action schemas.Action) schemas.ActionResult {
	// Emergency stop is checked first and wins over everything.
	if c.estop != nil && c.estop.Triggered() {
		return c.finish(action, string(safety.StateRejected), "emergency stop active",
			schemas.FailedResult(action, "emergency stop active"))
	}

	decision := c.validator.Validate(action)
	switch decision.State {
	case safety.StateRejected:
		c.logger.Warn("Action rejected",
			zap.String("action", string(action.Type())),
			zap.String("reason", decision.Reason))
		return c.finish(action, string(decision.State), decision.Reason,
			schemas.FailedResult(action, "rejected: "+decision.Reason))

	case safety.StateConfirmationPending:
		state := c.gate.Confirm(ctx, action, decision.Reason)
		if state != safety.StateApproved {
			result := schemas.FailedResult(action, "denied: "+decision.Reason)
			result.ConfirmationRequired = true
			return c.finish(action, string(state), decision.Reason, result)
		}
		// fall through to dispatch as approved
		decision.State = safety.StateApproved
	}

	if c.cfg.ActionDelay > 0 {
		select {
		case <-time.After(c.cfg.ActionDelay):
		case <-ctx.Done():
			return c.finish(action, string(decision.State), "context canceled",
				schemas.FailedResult(action, ctx.Err().Error()))
		}
	}

	result := c.dispatch(ctx, action)
	return c.finish(action, string(decision.State), decision.Reason, result)
}

// finish records the outcome and returns it.
func (c *Controller) finish(action schemas.Action, state, reason string, result schemas.ActionResult) schemas.ActionResult {
	c.history.Append(result)
	if c.auditLog != nil {
		c.auditLog.RecordAction(c.sessionID, action, state, reason, &result)
	}
	return result
}

// dispatch routes the action to the surface. Coordinates are scaled and
// bounds-checked first; out-of-bounds targets are refused, never clamped,
// since a clamped click lands somewhere the model did not intend.
func (c *Controller) dispatch(ctx context.Context, action schemas.Action) schemas.ActionResult {
	switch a := action.(type) {
	case schemas.Click:
		x, y := c.scale(a.X, a.Y)
		if err := c.checkBounds(x, y); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		if err := c.surface.Click(ctx, x, y, a.ButtonOrDefault(), a.ClicksOrDefault()); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		return schemas.OKResult(action, fmt.Sprintf("clicked at (%d,%d)", x, y))

	case schemas.MoveMouse:
		x, y := c.scale(a.X, a.Y)
		if err := c.checkBounds(x, y); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		if err := c.surface.MoveMouse(ctx, x, y, a.Duration); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		return schemas.OKResult(action, fmt.Sprintf("moved to (%d,%d)", x, y))

	case schemas.TypeText:
		interval := a.Interval
		if interval <= 0 {
			interval = c.cfg.TypeInterval
		}
		if err := c.surface.TypeText(ctx, a.Text, interval); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		return schemas.OKResult(action, fmt.Sprintf("typed %d characters", len(a.Text)))

	case schemas.KeyPress:
		if err := c.surface.PressKey(ctx, a.Key, a.PressesOrDefault()); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		return schemas.OKResult(action, "pressed "+a.Key)

	case schemas.Scroll:
		if err := c.surface.Scroll(ctx, a.Direction, a.AmountOrDefault()); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		return schemas.OKResult(action, "scrolled "+a.Direction)

	case schemas.Drag:
		sx, sy := c.scale(a.StartX, a.StartY)
		ex, ey := c.scale(a.EndX, a.EndY)
		if err := c.checkBounds(sx, sy); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		if err := c.checkBounds(ex, ey); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		duration := a.Duration
		if duration <= 0 {
			duration = c.cfg.DragDuration
		}
		if err := c.surface.Drag(ctx, sx, sy, ex, ey, duration); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		return schemas.OKResult(action, "drag complete")

	case schemas.Wait:
		select {
		case <-time.After(a.Duration):
			return schemas.OKResult(action, "waited "+a.Duration.String())
		case <-ctx.Done():
			return schemas.FailedResult(action, ctx.Err().Error())
		}

	case schemas.LaunchApp:
		if err := c.surface.LaunchApp(ctx, a.Name, a.Path); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		return schemas.OKResult(action, "launched "+a.Name)

	case schemas.CloseApp:
		if err := c.surface.CloseApp(ctx, a.Name); err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		return schemas.OKResult(action, "closed "+a.Name)

	case schemas.FileOperation:
		// Reaches here only after explicit approval.
		if c.shell == nil {
			return schemas.FailedResult(action, "no shell executor on this surface")
		}
		details, err := c.shell.FileOperation(ctx, a.Operation, a.Path)
		if err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		return schemas.OKResult(action, details)

	case schemas.SystemCommand:
		if c.shell == nil {
			return schemas.FailedResult(action, "no shell executor on this surface")
		}
		out, err := c.shell.Command(ctx, a.Command)
		if err != nil {
			return schemas.FailedResult(action, err.Error())
		}
		return schemas.OKResult(action, truncate(out, 500))

	case schemas.PasswordEntry:
		// The agent never holds the credential. Approval means the human
		// types it themselves; the agent just reports where.
		return schemas.OKResult(action, "credential field focused; manual entry required for "+a.Field)

	default:
		return schemas.FailedResult(action, "unsupported action type")
	}
}

// scale applies display scaling to logical coordinates.
func (c *Controller) scale(x, y int) (int, int) {
	s := c.cfg.DisplayScaling
	if s <= 0 || s == 1.0 {
		return x, y
	}
	return int(math.Round(float64(x) * s)), int(math.Round(float64(y) * s))
}

// checkBounds refuses coordinates outside the surface.
func (c *Controller) checkBounds(x, y int) error {
	w, h, err := c.surface.Bounds()
	if err != nil {
		return fmt.Errorf("surface bounds unavailable: %w", err)
	}
	if x < 0 || y < 0 || x >= w || y >= h {
		return fmt.Errorf("target (%d,%d) outside surface %dx%d", x, y, w, h)
	}
	return nil
}
