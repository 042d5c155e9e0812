// internal/oracle/factory.go
package oracle

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/internal/config"
)

// NewClient is a factory function that creates a Client based on the
// configured provider.
func NewClient(cfg config.OracleConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaClient(cfg, logger), nil
	case "openai":
		return NewOpenAIClient(cfg, logger)
	case "gemini":
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported oracle provider configured: '%s'. Supported: [ollama openai gemini]", cfg.Provider)
	}
}
