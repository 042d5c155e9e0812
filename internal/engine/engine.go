// Package engine runs decomposed tasks step by step: perceive, interpret,
// act, retry, and record. The session document is checkpointed after every
// step and the emergency stop is honored between all of them.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/audit"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/safety"
)

// partialThreshold is the completion rate at or above which a task with
// failures still counts as partially completed rather than aborted.
const partialThreshold = 0.75

// Perceiver supplies the current screen context.
type Perceiver interface {
	Perceive(ctx context.Context) (*schemas.ScreenContext, error)
}

// Executor runs one action through the safety pipeline.
type Executor interface {
	Execute(ctx context.Context, action schemas.Action) schemas.ActionResult
	SetSession(id string)
}

// Decomposer turns an instruction into steps.
type Decomposer interface {
	Decompose(ctx context.Context, instruction string) []schemas.Step
}

// Engine executes tasks.
type Engine struct {
	perceiver Perceiver
	executor  Executor
	planner   Decomposer
	tracker   *Tracker
	estop     *safety.StopMonitor
	auditLog  *audit.Log
	cfg       config.EngineConfig
	logger    *zap.Logger
}

// New wires the engine. tracker, estop and auditLog may each be nil.
func New(
	perceiver Perceiver,
	executor Executor,
	planner Decomposer,
	tracker *Tracker,
	estop *safety.StopMonitor,
	auditLog *audit.Log,
	cfg config.EngineConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		perceiver: perceiver,
		executor:  executor,
		planner:   planner,
		tracker:   tracker,
		estop:     estop,
		auditLog:  auditLog,
		cfg:       cfg,
		logger:    logger.Named("engine"),
	}
}

// Run executes the instruction end to end. The session is returned even on
// abort so callers can inspect what happened.
func (e *Engine) Run(ctx context.Context, instruction string) (*schemas.TaskSession, error) {
	now := time.Now().UTC()
	session := &schemas.TaskSession{
		ID:          schemas.NewSessionID(now),
		Instruction: instruction,
		Status:      schemas.TaskCreated,
		StartedAt:   now,
	}
	e.executor.SetSession(session.ID)
	e.checkpoint(session)

	session.Steps = e.planner.Decompose(ctx, instruction)
	session.Status = schemas.TaskRunning
	e.recordSession(session, "started")
	e.checkpoint(session)

	e.logger.Info("Task started",
		zap.String("session", session.ID),
		zap.Int("steps", len(session.Steps)))

	for i, step := range session.Steps {
		if err := e.guard(ctx); err != nil {
			return e.abort(session, err.Error()), nil
		}

		record := e.runStep(ctx, session.ID, step)
		session.Records = append(session.Records, record)
		e.checkpoint(session)

		if !record.Success && session.Critical(i) {
			return e.abort(session, fmt.Sprintf("critical step %d failed: %s", i, record.Error)), nil
		}

		if e.cfg.StepPause > 0 && i < len(session.Steps)-1 {
			select {
			case <-time.After(e.cfg.StepPause):
			case <-ctx.Done():
				return e.abort(session, "context canceled"), nil
			}
		}
	}

	e.classify(session)
	session.FinishedAt = time.Now().UTC()
	e.recordSession(session, session.Progress())
	e.checkpoint(session)

	e.logger.Info("Task finished",
		zap.String("session", session.ID),
		zap.String("status", string(session.Status)),
		zap.String("progress", session.Progress()))
	return session, nil
}

// runStep executes one step under the bounded retry policy.
func (e *Engine) runStep(ctx context.Context, sessionID string, step schemas.Step) schemas.StepRecord {
	record := schemas.StepRecord{Step: step, Timestamp: time.Now().UTC()}

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		record.Attempts = attempt + 1
		if attempt > 0 {
			e.logger.Info("Retrying step",
				zap.Int("step", step.Index),
				zap.Int("attempt", attempt+1))
			select {
			case <-time.After(e.cfg.RetryPause):
			case <-ctx.Done():
				record.Error = "context canceled"
				return record
			}
		}
		if e.estop != nil && e.estop.Triggered() {
			record.Error = "emergency stop active"
			return record
		}

		err := e.attemptStep(ctx, sessionID, step)
		if err == nil {
			record.Success = true
			record.Error = ""
			return record
		}
		record.Error = err.Error()
		e.logger.Warn("Step attempt failed",
			zap.Int("step", step.Index),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return record
}

// attemptStep performs one perceive-interpret-act pass. The screen is
// captured fresh on every attempt so retries see the current state.
func (e *Engine) attemptStep(ctx context.Context, sessionID string, step schemas.Step) error {
	screen, err := e.perceiver.Perceive(ctx)
	if err != nil {
		return fmt.Errorf("perception: %w", err)
	}
	if e.auditLog != nil {
		e.auditLog.RecordPerception(sessionID, screen)
	}

	actions, err := InterpretStep(step, screen)
	if err != nil {
		return err
	}

	for _, action := range actions {
		result := e.executor.Execute(ctx, action)
		if !result.Success {
			return fmt.Errorf("%s: %s", action.Type(), result.Error)
		}
	}
	return nil
}

// guard checks the stop conditions between steps.
func (e *Engine) guard(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("context canceled")
	}
	if e.estop != nil && e.estop.Triggered() {
		return fmt.Errorf("emergency stop active")
	}
	return nil
}

// classify assigns the terminal status from the step records.
func (e *Engine) classify(session *schemas.TaskSession) {
	rate := session.CompletionRate()
	switch {
	case len(session.Steps) > 0 && rate >= 1.0:
		session.Status = schemas.TaskCompleted
	case rate >= partialThreshold:
		session.Status = schemas.TaskPartiallyCompleted
	default:
		session.Status = schemas.TaskAborted
		session.AbortReason = fmt.Sprintf("completion rate %.2f below threshold", rate)
	}
}

func (e *Engine) abort(session *schemas.TaskSession, reason string) *schemas.TaskSession {
	session.Status = schemas.TaskAborted
	session.AbortReason = reason
	session.FinishedAt = time.Now().UTC()
	e.recordSession(session, reason)
	e.checkpoint(session)
	e.logger.Warn("Task aborted",
		zap.String("session", session.ID),
		zap.String("reason", reason))
	return session
}

func (e *Engine) checkpoint(session *schemas.TaskSession) {
	if e.tracker == nil {
		return
	}
	if err := e.tracker.Checkpoint(session); err != nil {
		e.logger.Error("Session checkpoint failed", zap.Error(err))
	}
}

func (e *Engine) recordSession(session *schemas.TaskSession, details string) {
	if e.auditLog != nil {
		e.auditLog.RecordSession(session.ID, session.Status, details)
	}
}
