package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/safety"
)

type fakePerceiver struct {
	screen *schemas.ScreenContext
	err    error
}

func (p *fakePerceiver) Perceive(context.Context) (*schemas.ScreenContext, error) {
	return p.screen, p.err
}

// fakeExecutor fails the first failFirst calls, then succeeds.
type fakeExecutor struct {
	failFirst int
	calls     int
	session   string
	actions   []schemas.Action
}

func (e *fakeExecutor) SetSession(id string) { e.session = id }

func (e *fakeExecutor) Execute(_ context.Context, action schemas.Action) schemas.ActionResult {
	e.calls++
	e.actions = append(e.actions, action)
	if e.calls <= e.failFirst {
		return schemas.FailedResult(action, "element vanished")
	}
	return schemas.OKResult(action, "done")
}

type fakePlanner struct {
	steps []string
}

func (p *fakePlanner) Decompose(_ context.Context, _ string) []schemas.Step {
	out := make([]schemas.Step, len(p.steps))
	for i, s := range p.steps {
		out[i] = schemas.Step{Index: i, Description: s}
	}
	return out
}

func testEngine(t *testing.T, perceiver Perceiver, executor Executor, planner Decomposer, cfg config.EngineConfig) (*Engine, *Tracker) {
	t.Helper()
	tracker := NewTracker(t.TempDir(), zap.NewNop())
	return New(perceiver, executor, planner, tracker, nil, nil, cfg, zap.NewNop()), tracker
}

func quickConfig() config.EngineConfig {
	return config.EngineConfig{MaxRetries: 2, RetryPause: time.Millisecond}
}

func TestEngineRunAllStepsSucceed(t *testing.T) {
	t.Parallel()
	executor := &fakeExecutor{}
	planner := &fakePlanner{steps: []string{"press enter", "wait a moment", "press escape"}}
	eng, tracker := testEngine(t, &fakePerceiver{screen: testScreen()}, executor, planner, quickConfig())

	session, err := eng.Run(context.Background(), "do the thing")
	require.NoError(t, err)

	assert.Equal(t, schemas.TaskCompleted, session.Status)
	assert.Equal(t, "3/3 steps", session.Progress())
	assert.Equal(t, session.ID, executor.session)
	assert.False(t, session.FinishedAt.IsZero())

	// Each record succeeded on the first attempt.
	require.Len(t, session.Records, 3)
	for _, rec := range session.Records {
		assert.True(t, rec.Success)
		assert.Equal(t, 1, rec.Attempts)
	}

	// The terminal state was checkpointed.
	loaded, err := tracker.Load(session.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.TaskCompleted, loaded.Status)
}

func TestEngineRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	executor := &fakeExecutor{failFirst: 1}
	planner := &fakePlanner{steps: []string{"press enter"}}
	eng, _ := testEngine(t, &fakePerceiver{screen: testScreen()}, executor, planner, quickConfig())

	session, err := eng.Run(context.Background(), "press enter")
	require.NoError(t, err)

	assert.Equal(t, schemas.TaskCompleted, session.Status)
	require.Len(t, session.Records, 1)
	assert.True(t, session.Records[0].Success)
	assert.Equal(t, 2, session.Records[0].Attempts)
}

func TestEngineCriticalFailureAborts(t *testing.T) {
	t.Parallel()
	executor := &fakeExecutor{failFirst: 1 << 30}
	planner := &fakePlanner{steps: []string{"press enter", "press tab", "press escape"}}
	eng, _ := testEngine(t, &fakePerceiver{screen: testScreen()}, executor, planner, quickConfig())

	session, err := eng.Run(context.Background(), "doomed")
	require.NoError(t, err)

	assert.Equal(t, schemas.TaskAborted, session.Status)
	assert.Contains(t, session.AbortReason, "critical step 0")
	// The remaining steps never ran.
	require.Len(t, session.Records, 1)
	assert.Equal(t, 3, session.Records[0].Attempts)
}

func TestEngineNonCriticalFailureIsPartial(t *testing.T) {
	t.Parallel()
	// Four steps: indices 0, 1 and 3 are critical, index 2 is not. Failing
	// only step 2 leaves a 0.75 completion rate.
	executor := &fakeExecutor{}
	planner := &fakePlanner{steps: []string{"press enter", "press tab", "look around aimlessly", "press escape"}}
	eng, _ := testEngine(t, &fakePerceiver{screen: testScreen()}, executor, planner, quickConfig())

	session, err := eng.Run(context.Background(), "mostly works")
	require.NoError(t, err)

	assert.Equal(t, schemas.TaskPartiallyCompleted, session.Status)
	assert.Equal(t, "3/4 steps", session.Progress())
	require.Len(t, session.Records, 4)
	assert.False(t, session.Records[2].Success)
	assert.Contains(t, session.Records[2].Error, "no rule matches")
}

func TestEngineEmergencyStopAborts(t *testing.T) {
	t.Parallel()
	estop := safety.NewStopMonitor(nil, zap.NewNop())
	estop.Trigger()

	executor := &fakeExecutor{}
	planner := &fakePlanner{steps: []string{"press enter"}}
	tracker := NewTracker(t.TempDir(), zap.NewNop())
	eng := New(&fakePerceiver{screen: testScreen()}, executor, planner, tracker, estop, nil, quickConfig(), zap.NewNop())

	session, err := eng.Run(context.Background(), "never starts")
	require.NoError(t, err)

	assert.Equal(t, schemas.TaskAborted, session.Status)
	assert.Contains(t, session.AbortReason, "emergency stop")
	assert.Zero(t, executor.calls)
}

func TestEnginePerceptionFailureAborts(t *testing.T) {
	t.Parallel()
	executor := &fakeExecutor{}
	planner := &fakePlanner{steps: []string{"click the first result"}}
	eng, _ := testEngine(t, &fakePerceiver{err: errors.New("capture failed")}, executor, planner, quickConfig())

	session, err := eng.Run(context.Background(), "blind")
	require.NoError(t, err)

	assert.Equal(t, schemas.TaskAborted, session.Status)
	require.Len(t, session.Records, 1)
	assert.Contains(t, session.Records[0].Error, "perception")
	assert.Zero(t, executor.calls)
}

func TestEngineCanceledContextAborts(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := &fakeExecutor{}
	planner := &fakePlanner{steps: []string{"press enter"}}
	eng, _ := testEngine(t, &fakePerceiver{screen: testScreen()}, executor, planner, quickConfig())

	session, err := eng.Run(ctx, "too late")
	require.NoError(t, err)

	assert.Equal(t, schemas.TaskAborted, session.Status)
	assert.Contains(t, session.AbortReason, "context canceled")
}
