// Package agent assembles the perception, safety, actuation, and execution
// layers into one runnable desktop agent. It owns the lifetimes of the
// long-lived pieces (browser surface, audit log, resource monitor,
// emergency-stop hook) so commands only deal with tasks.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/actuator"
	"github.com/kestrelhq/kestrel/internal/audit"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/engine"
	"github.com/kestrelhq/kestrel/internal/monitor"
	"github.com/kestrelhq/kestrel/internal/oracle"
	"github.com/kestrelhq/kestrel/internal/perception"
	"github.com/kestrelhq/kestrel/internal/planner"
	"github.com/kestrelhq/kestrel/internal/safety"
	"github.com/kestrelhq/kestrel/internal/surface"
)

var jsonAPI = json.ConfigCompatibleWithStandardLibrary

// Agent is the assembled system.
type Agent struct {
	cfg       config.Interface
	logger    *zap.Logger
	surface   surface.Surface
	perceiver *perception.Perceiver
	engine    *engine.Engine
	tracker   *engine.Tracker
	estop     *safety.StopMonitor
	monitor   *monitor.Monitor
	auditLog  *audit.Log

	browser *surface.Browser
}

// New builds an agent from config. The context bounds the lifetime of the
// browser surface when the browser driver is selected.
func New(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Agent, error) {
	a := &Agent{cfg: cfg, logger: logger.Named("agent")}

	// Oracle. A missing or misconfigured provider degrades the agent to
	// its deterministic paths rather than blocking it.
	var policy *oracle.Policy
	client, err := oracle.NewClient(cfg.Oracle(), logger)
	if err != nil {
		a.logger.Warn("Oracle unavailable, running deterministic-only", zap.Error(err))
	} else {
		policy = oracle.NewPolicy(client, cfg.Oracle(), logger)
	}

	// Surface.
	switch driver := cfg.Executor().Driver; driver {
	case "browser":
		browser, err := surface.NewBrowser(ctx, logger)
		if err != nil {
			return nil, fmt.Errorf("browser surface: %w", err)
		}
		a.browser = browser
		a.surface = browser
	case "desktop", "":
		a.surface = surface.NewDesktop(logger)
	default:
		return nil, fmt.Errorf("unknown executor driver %q", driver)
	}

	// Perception.
	reader := perception.NewTesseract(
		cfg.Perception().TesseractPath,
		cfg.Perception().MinOCRConfidence,
		logger,
	)
	detector := perception.NewEdgeDetector(cfg.Perception().MaxElements, logger)
	var scene perception.SceneDescriber
	if policy != nil {
		scene = perception.NewOracleScene(policy, logger)
	}
	a.perceiver = perception.New(
		a.surface, reader, detector, scene,
		cfg.Perception(), cfg.Storage(), logger,
	)

	// Safety.
	validator := safety.NewValidator(cfg.Safety(), logger)
	prompter := &safety.TerminalPrompter{In: os.Stdin, Out: os.Stderr}
	gate := safety.NewGate(prompter, cfg.Safety(), logger)
	if cfg.Safety().EmergencyStopEnabled {
		a.estop = safety.NewStopMonitor(safety.NewHotkeySource(logger), logger)
	} else {
		a.estop = safety.NewStopMonitor(nil, logger)
	}

	// Audit trail.
	auditLog, err := audit.Open(cfg.Storage().AuditFile, logger)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	a.auditLog = auditLog

	// Actuation and execution.
	shell := actuator.NewShell(0, logger)
	controller := actuator.NewController(
		a.surface, validator, gate, a.estop, auditLog, shell,
		cfg.Executor(), cfg.Safety().MaxHistory, logger,
	)
	a.tracker = engine.NewTracker(cfg.Storage().TaskLogDir, logger)
	plan := planner.New(policy, logger)
	a.engine = engine.New(
		a.perceiver, controller, plan, a.tracker, a.estop, auditLog,
		cfg.Engine(), logger,
	)

	a.monitor = monitor.New(cfg.Monitor(), logger)
	return a, nil
}

// Start arms the emergency stop and the resource monitor.
func (a *Agent) Start(ctx context.Context) {
	if a.cfg.Safety().EmergencyStopEnabled {
		a.estop.Start(ctx)
	}
	a.monitor.Start(ctx)
}

// RunTask executes one natural-language instruction to completion.
func (a *Agent) RunTask(ctx context.Context, instruction string) (*schemas.TaskSession, error) {
	if instruction == "" {
		return nil, fmt.Errorf("empty instruction")
	}
	return a.engine.Run(ctx, instruction)
}

// Observe runs a single perception cycle and returns the screen context
// without acting on it.
func (a *Agent) Observe(ctx context.Context) (*schemas.ScreenContext, error) {
	sc, err := a.perceiver.Perceive(ctx)
	if err != nil {
		return nil, err
	}
	a.auditLog.RecordPerception("", sc)
	return sc, nil
}

// Sessions lists the ids of persisted task sessions.
func (a *Agent) Sessions() ([]string, error) {
	return a.tracker.List()
}

// Session loads one persisted task session.
func (a *Agent) Session(id string) (*schemas.TaskSession, error) {
	return a.tracker.Load(id)
}

// Watch runs perception cycles at the given interval until the context is
// done, logging a summary of each. It never actuates.
func (a *Agent) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sc, err := a.Observe(ctx)
		if err != nil {
			a.logger.Warn("Perception cycle failed", zap.Error(err))
		} else {
			a.logger.Info("Perception cycle",
				zap.Float64("confidence", sc.OverallConfidence),
				zap.Int("words", len(sc.Words)),
				zap.Int("elements", len(sc.UIElements)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the agent's long-lived resources and flushes the resource
// metrics collected during the run.
func (a *Agent) Close() error {
	a.monitor.Stop()
	a.flushMetrics()
	if a.browser != nil {
		a.browser.Close()
	}
	if a.auditLog != nil {
		return a.auditLog.Close()
	}
	return nil
}

func (a *Agent) flushMetrics() {
	history := a.monitor.History()
	if len(history) == 0 {
		return
	}
	data, err := jsonAPI.MarshalIndent(history, "", "  ")
	if err != nil {
		a.logger.Warn("Metrics marshal failed", zap.Error(err))
		return
	}
	dir := a.cfg.Storage().DataDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.logger.Warn("Metrics flush failed", zap.Error(err))
		return
	}
	path := filepath.Join(dir, "metrics.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		a.logger.Warn("Metrics flush failed", zap.Error(err), zap.String("path", path))
	}
}
