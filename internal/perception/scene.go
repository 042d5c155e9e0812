// internal/perception/scene.go
package perception

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/internal/oracle"
)

// SceneDescriber produces a one-paragraph natural-language reading of the
// frame.
type SceneDescriber interface {
	Describe(ctx context.Context, img image.Image) (string, error)
}

const sceneSystemPrompt = `You are the eyes of a desktop automation agent.
Describe the screenshot in one short paragraph: which application is in the
foreground, what state it is in, and anything a user would need to know
before acting. Be concrete. Do not speculate about content you cannot see.`

// OracleScene describes frames through the vision-capable oracle model.
type OracleScene struct {
	policy *oracle.Policy
	logger *zap.Logger
}

var _ SceneDescriber = (*OracleScene)(nil)

// NewOracleScene builds the describer on top of the shrink-retry policy so
// slow vision models degrade instead of stalling the whole perception pass.
func NewOracleScene(policy *oracle.Policy, logger *zap.Logger) *OracleScene {
	return &OracleScene{policy: policy, logger: logger.Named("perception.scene")}
}

// Describe encodes the frame and asks the vision model for a reading. A
// degraded answer is still returned; only outright failure is an error.
func (s *OracleScene) Describe(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("frame encode failed: %w", err)
	}

	out := s.policy.Generate(ctx, oracle.Request{
		SystemPrompt: sceneSystemPrompt,
		UserPrompt:   "Describe this screenshot.",
		Images:       [][]byte{buf.Bytes()},
	})
	switch out.Kind {
	case oracle.Failure:
		return "", fmt.Errorf("scene description failed after %d attempts: %w", out.Attempts, out.Err)
	case oracle.DegradedSuccess:
		s.logger.Warn("Scene description degraded", zap.Int("attempts", out.Attempts))
	}
	return strings.TrimSpace(out.Content), nil
}
