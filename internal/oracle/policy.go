// internal/oracle/policy.go
package oracle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kestrelhq/kestrel/internal/config"
)

// OutcomeKind classifies how a generation attempt sequence ended.
type OutcomeKind int

const (
	// Success: the full prompt was answered.
	Success OutcomeKind = iota
	// DegradedSuccess: an answer was produced, but only after the prompt
	// was shrunk. Callers should treat the result as lower fidelity.
	DegradedSuccess
	// Failure: every attempt, including the minimal prompt, failed.
	Failure
)

// Outcome is the result of a Policy.Generate call.
type Outcome struct {
	Kind     OutcomeKind
	Content  string
	Attempts int
	Err      error
}

// reductions are the fractions of the original prompt trimmed away on
// successive timeout retries.
var reductions = []float64{0.25, 0.50, 0.75}

// minimalPrompt is the last-ditch request sent when even the most shrunk
// prompt times out.
const minimalPrompt = "Answer briefly: what should be done next?"

// Policy wraps a Client with timeout-driven prompt shrinking and request
// rate limiting. Long prompts that keep timing out are progressively
// reduced; if the model answers a reduced prompt the outcome is flagged as
// degraded rather than silently treated as complete.
type Policy struct {
	client      Client
	limiter     *rate.Limiter
	maxAttempts int
	logger      *zap.Logger
}

// NewPolicy builds a Policy from the oracle configuration.
func NewPolicy(client Client, cfg config.OracleConfig, logger *zap.Logger) *Policy {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = len(reductions) + 2
	}
	return &Policy{
		client:      client,
		limiter:     rate.NewLimiter(limit, 1),
		maxAttempts: maxAttempts,
		logger:      logger.Named("oracle.policy"),
	}
}

// Generate runs the request through the shrink-retry ladder. Non-timeout
// errors abort immediately; timeouts consume the reduction steps, then the
// minimal prompt, before the outcome is declared a Failure. The total number
// of attempts is capped by oracle.max_attempts; when the budget is smaller
// than the full ladder the reduction steps are truncated so the minimal
// prompt still gets the last slot.
func (p *Policy) Generate(ctx context.Context, req Request) Outcome {
	original := req.UserPrompt
	attempts := 0

	steps := reductions
	if n := p.maxAttempts - 2; n < len(steps) {
		if n < 0 {
			n = 0
		}
		steps = steps[:n]
	}

	try := func(r Request) (string, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter interrupted: %w", err)
		}
		attempts++
		return p.client.Generate(ctx, r)
	}

	content, err := try(req)
	if err == nil {
		return Outcome{Kind: Success, Content: content, Attempts: attempts}
	}
	if !errors.Is(err, ErrTimeout) {
		return Outcome{Kind: Failure, Attempts: attempts, Err: err}
	}

	for _, frac := range steps {
		shrunk := req
		shrunk.UserPrompt = ShrinkPrompt(original, frac)
		p.logger.Warn("Retrying with reduced prompt",
			zap.Float64("reduction", frac),
			zap.Int("original_len", len(original)),
			zap.Int("reduced_len", len(shrunk.UserPrompt)))

		content, err = try(shrunk)
		if err == nil {
			return Outcome{Kind: DegradedSuccess, Content: content, Attempts: attempts}
		}
		if !errors.Is(err, ErrTimeout) {
			return Outcome{Kind: Failure, Attempts: attempts, Err: err}
		}
	}

	if attempts >= p.maxAttempts {
		return Outcome{Kind: Failure, Attempts: attempts, Err: err}
	}

	// Final attempt with a token-sized prompt.
	final := req
	final.UserPrompt = minimalPrompt
	final.Images = nil
	content, err = try(final)
	if err == nil {
		return Outcome{Kind: DegradedSuccess, Content: content, Attempts: attempts}
	}
	return Outcome{Kind: Failure, Attempts: attempts, Err: err}
}

// ShrinkPrompt removes frac of the prompt, keeping the head and tail and
// eliding the middle. The retained budget is split 40% to the prefix and
// 60% to the suffix, since instructions tend to cluster at both ends but
// the most recent context usually matters more.
func ShrinkPrompt(prompt string, frac float64) string {
	if frac <= 0 || len(prompt) == 0 {
		return prompt
	}
	if frac >= 1 {
		frac = 0.75
	}
	keep := int(float64(len(prompt)) * (1 - frac))
	if keep >= len(prompt) {
		return prompt
	}
	if keep < 16 {
		keep = 16
		if keep >= len(prompt) {
			return prompt
		}
	}

	head := int(float64(keep) * 0.4)
	tail := keep - head
	return prompt[:head] + "\n...[elided]...\n" + prompt[len(prompt)-tail:]
}
