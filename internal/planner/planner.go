// Package planner turns a natural-language instruction into an ordered
// list of executable steps. The oracle does the decomposition when it is
// reachable and produces something usable; a rule-based fallback guarantees
// the agent always has at least one step to run.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/oracle"
)

const decomposeSystemPrompt = `You are the planner of a desktop automation
agent. Break the user's task into small sequential steps, one action per
step. Reply ONLY with a numbered list, one step per line, no commentary.
Each step must be something a person could do with mouse and keyboard in a
few seconds.`

// Planner decomposes instructions into steps.
type Planner struct {
	policy   *oracle.Policy // nil disables the oracle path
	fallback *Fallback
	logger   *zap.Logger
}

// New builds the planner. policy may be nil to run fallback-only.
func New(policy *oracle.Policy, logger *zap.Logger) *Planner {
	return &Planner{
		policy:   policy,
		fallback: NewFallback(logger),
		logger:   logger.Named("planner"),
	}
}

// Decompose produces the step list for an instruction. The oracle's answer
// is accepted only when it parses into at least two distinct steps;
// anything weaker falls through to the rule-based path, which always
// returns at least one step.
func (p *Planner) Decompose(ctx context.Context, instruction string) []schemas.Step {
	instruction = strings.TrimSpace(instruction)

	if p.policy != nil {
		out := p.policy.Generate(ctx, oracle.Request{
			SystemPrompt: decomposeSystemPrompt,
			UserPrompt:   fmt.Sprintf("Task: %s", instruction),
		})
		if out.Kind != oracle.Failure {
			if steps := parseNumberedList(out.Content); len(steps) >= 2 {
				p.logger.Info("Task decomposed by oracle",
					zap.Int("steps", len(steps)),
					zap.Bool("degraded", out.Kind == oracle.DegradedSuccess))
				return steps
			}
			p.logger.Warn("Oracle plan unusable, falling back",
				zap.String("instruction", instruction))
		} else {
			p.logger.Warn("Oracle decomposition failed, falling back",
				zap.Error(out.Err))
		}
	}

	return p.fallback.Plan(instruction)
}

// lineStart matches numbered or bulleted list prefixes.
var lineStart = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*`)

// parseNumberedList extracts steps from a numbered or bulleted reply.
// Duplicate lines are collapsed; unnumbered prose lines are ignored.
func parseNumberedList(reply string) []schemas.Step {
	seen := make(map[string]bool)
	var steps []schemas.Step

	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !lineStart.MatchString(trimmed) {
			continue
		}
		text := strings.TrimSpace(lineStart.ReplaceAllString(trimmed, ""))
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true
		steps = append(steps, schemas.Step{Index: len(steps), Description: text})
	}
	return steps
}
