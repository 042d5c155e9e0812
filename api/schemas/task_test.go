package schemas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionID(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 8, 28, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "task_20260828_140509", NewSessionID(ts))
}

func TestCompletionRate(t *testing.T) {
	t.Parallel()

	session := &TaskSession{
		Steps: []Step{{Index: 0}, {Index: 1}, {Index: 2}, {Index: 3}},
		Records: []StepRecord{
			{Success: true},
			{Success: true},
			{Success: false},
			{Success: true},
		},
	}
	assert.InDelta(t, 0.75, session.CompletionRate(), 0.001)
	assert.Equal(t, "3/4 steps", session.Progress())

	empty := &TaskSession{}
	assert.Zero(t, empty.CompletionRate())
}

func TestProgressBar(t *testing.T) {
	t.Parallel()

	session := &TaskSession{
		Steps:   []Step{{}, {}},
		Records: []StepRecord{{Success: true}, {Success: false}},
	}
	bar := session.ProgressBar()
	assert.Contains(t, bar, "1/2 steps")
	assert.Contains(t, bar, "(50%)")
	assert.Contains(t, bar, "■")
	assert.Contains(t, bar, "□")
}

func TestCriticalSteps(t *testing.T) {
	t.Parallel()

	session := &TaskSession{Steps: []Step{{}, {}, {}, {}, {}}}
	assert.True(t, session.Critical(0))
	assert.True(t, session.Critical(1))
	assert.True(t, session.Critical(4))
	assert.False(t, session.Critical(2))
	assert.False(t, session.Critical(3))

	// Every step of a short plan is critical.
	short := &TaskSession{Steps: []Step{{}, {}}}
	assert.True(t, short.Critical(0))
	assert.True(t, short.Critical(1))
}

func TestTaskStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, TaskCreated.Terminal())
	assert.False(t, TaskRunning.Terminal())
	assert.True(t, TaskCompleted.Terminal())
	assert.True(t, TaskPartiallyCompleted.Terminal())
	assert.True(t, TaskAborted.Terminal())
}
