// Package oracle talks to the reasoning model behind the agent: scene
// description, task decomposition, and free-form queries. Backends share a
// small Client interface so the rest of the agent never knows which
// provider is configured.
package oracle

import (
	"context"
	"errors"
	"time"

	json "github.com/json-iterator/go"
)

var jsonAPI = json.ConfigCompatibleWithStandardLibrary

// Request carries one generation call to a backend. Images are raw encoded
// bytes (PNG) for vision-capable models.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Images       [][]byte
	ForceJSON    bool
}

// Client is the provider-neutral generation interface.
type Client interface {
	// Generate produces a completion for the request. Implementations
	// honor ctx cancellation and apply their own transport timeouts.
	Generate(ctx context.Context, req Request) (string, error)
}

// ErrTimeout marks a generation attempt that exceeded its deadline. The
// shrink-retry policy keys off this to decide whether reducing the prompt
// is worth another attempt.
var ErrTimeout = errors.New("oracle: generation timed out")

// AdaptiveTimeout scales the base timeout by prompt length: long prompts
// get proportionally more time before the attempt is declared dead.
func AdaptiveTimeout(base time.Duration, promptLen int) time.Duration {
	switch {
	case promptLen > 3000:
		return time.Duration(float64(base) * 2.0)
	case promptLen > 1000:
		return time.Duration(float64(base) * 1.5)
	}
	return base
}
