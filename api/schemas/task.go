package schemas

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus tracks a session through its lifecycle. Transitions are
// one-way: Created -> Running -> one of the three terminal states.
type TaskStatus string

const (
	TaskCreated            TaskStatus = "created"
	TaskRunning            TaskStatus = "running"
	TaskCompleted          TaskStatus = "completed"
	TaskPartiallyCompleted TaskStatus = "partially_completed"
	TaskAborted            TaskStatus = "aborted"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskPartiallyCompleted, TaskAborted:
		return true
	}
	return false
}

// Step is one unit of work in a decomposed task.
type Step struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
}

// StepRecord captures how a single step attempt turned out, including any
// retries consumed before it settled.
type StepRecord struct {
	Step      Step      `json:"step"`
	Success   bool      `json:"success"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskSession is the persisted state of one task execution. It is written
// to disk after every step so a crash never loses more than the step in
// flight.
type TaskSession struct {
	ID          string       `json:"id"`
	Instruction string       `json:"instruction"`
	Status      TaskStatus   `json:"status"`
	Steps       []Step       `json:"steps"`
	Records     []StepRecord `json:"records"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at,omitempty"`
	AbortReason string       `json:"abort_reason,omitempty"`
}

// NewSessionID derives a session identifier from the start time, e.g.
// task_20260828_153012.
func NewSessionID(t time.Time) string {
	return "task_" + t.Format("20060102_150405")
}

// CompletionRate is the fraction of planned steps that succeeded. Zero
// planned steps yields zero.
func (s *TaskSession) CompletionRate() float64 {
	if len(s.Steps) == 0 {
		return 0
	}
	var done int
	for _, r := range s.Records {
		if r.Success {
			done++
		}
	}
	return float64(done) / float64(len(s.Steps))
}

// Progress renders a short "3/5 steps" style summary.
func (s *TaskSession) Progress() string {
	var done int
	for _, r := range s.Records {
		if r.Success {
			done++
		}
	}
	return fmt.Sprintf("%d/%d steps", done, len(s.Steps))
}

// ProgressBar renders the completion rate as a fixed-width text bar.
func (s *TaskSession) ProgressBar() string {
	const width = 30
	filled := int(width * s.CompletionRate())
	bar := strings.Repeat("■", filled) + strings.Repeat("□", width-filled)
	return fmt.Sprintf("[%s] %s (%.0f%%)", bar, s.Progress(), s.CompletionRate()*100)
}

// Critical reports whether the step at idx is one the task cannot survive
// failing: the first two steps establish context and the last one delivers
// the outcome.
func (s *TaskSession) Critical(idx int) bool {
	return idx == 0 || idx == 1 || idx == len(s.Steps)-1
}
