// internal/safety/gate.go
package safety

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/config"
)

// Prompter asks the operator a yes/no question. Implementations must honor
// ctx and return as soon as it is done.
type Prompter interface {
	Ask(ctx context.Context, prompt string) (bool, error)
}

// Gate turns confirmation-pending decisions into Approved or Denied by
// asking the operator. Silence is denial: if the prompt is not answered
// within the timeout, the action does not run. With the
// confirm_sensitive_actions flag off the gate approves without prompting.
type Gate struct {
	prompter Prompter
	prompt   bool
	timeout  time.Duration
	logger   *zap.Logger
}

// NewGate builds the gate from the safety configuration.
func NewGate(prompter Prompter, cfg config.SafetyConfig, logger *zap.Logger) *Gate {
	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gate{
		prompter: prompter,
		prompt:   cfg.ConfirmSensitiveActions,
		timeout:  timeout,
		logger:   logger.Named("safety.gate"),
	}
}

// Confirm asks the operator about the action and maps the answer onto the
// validation state machine.
func (g *Gate) Confirm(ctx context.Context, action schemas.Action, reason string) State {
	if !g.prompt {
		g.logger.Info("Confirmation prompting disabled, auto-approving",
			zap.String("action", string(action.Type())),
			zap.String("reason", reason))
		return StateApproved
	}

	prompt := fmt.Sprintf("Allow action? [%s] %s (%s)", action.Type(), action.Describe(), reason)

	askCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type answer struct {
		yes bool
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		yes, err := g.prompter.Ask(askCtx, prompt)
		ch <- answer{yes: yes, err: err}
	}()

	select {
	case a := <-ch:
		if a.err != nil {
			g.logger.Warn("Confirmation prompt failed, denying", zap.Error(a.err))
			return StateDenied
		}
		if a.yes {
			g.logger.Info("Action approved by operator", zap.String("action", string(action.Type())))
			return StateApproved
		}
		g.logger.Info("Action denied by operator", zap.String("action", string(action.Type())))
		return StateDenied
	case <-askCtx.Done():
		g.logger.Warn("Confirmation timed out, denying",
			zap.String("action", string(action.Type())),
			zap.Duration("timeout", g.timeout))
		return StateDenied
	}
}

// TerminalPrompter reads y/n answers from an input stream, the interactive
// default. Any answer other than y/yes denies. A single reader goroutine
// owns the stream for the prompter's lifetime, so a prompt that timed out
// cannot leave a second reader racing the live one for the same input.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	once  sync.Once
	lines chan promptLine

	mu    sync.Mutex
	stale int // answers still owed to prompts that expired unanswered
}

type promptLine struct {
	text string
	err  error
}

var _ Prompter = (*TerminalPrompter)(nil)

// Ask writes the prompt and blocks on one line of input. Lines typed for an
// earlier prompt that already expired are discarded, not reused as the
// answer to this one.
func (p *TerminalPrompter) Ask(ctx context.Context, prompt string) (bool, error) {
	p.once.Do(func() {
		p.lines = make(chan promptLine)
		go func() {
			r := bufio.NewReader(p.In)
			for {
				text, err := r.ReadString('\n')
				p.lines <- promptLine{text: text, err: err}
				if err != nil {
					return
				}
			}
		}()
	})

	if _, err := fmt.Fprintf(p.Out, "%s [y/N]: ", prompt); err != nil {
		return false, err
	}

	for {
		select {
		case l := <-p.lines:
			if l.err != nil && l.text == "" {
				return false, l.err
			}
			// Answers owed to expired prompts are discarded, not
			// reused for this one.
			p.mu.Lock()
			discard := p.stale > 0
			if discard {
				p.stale--
			}
			p.mu.Unlock()
			if discard {
				continue
			}
			answer := strings.ToLower(strings.TrimSpace(l.text))
			return answer == "y" || answer == "yes", nil
		case <-ctx.Done():
			p.mu.Lock()
			p.stale++
			p.mu.Unlock()
			return false, ctx.Err()
		}
	}
}
