// internal/oracle/ollama.go
package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/internal/config"
)

// OllamaClient implements Client against a local Ollama server. It is the
// default backend: no API key, everything stays on the machine.
type OllamaClient struct {
	host        string
	model       string
	visionModel string
	baseTimeout time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
}

// -- Ollama API request/response structures (internal to this file) --

type ollamaRequestPayload struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Images  []string       `json:"images,omitempty"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponsePayload struct {
	Model         string `json:"model"`
	Response      string `json:"response"`
	Done          bool   `json:"done"`
	EvalCount     int    `json:"eval_count"`
	PromptEvalCnt int    `json:"prompt_eval_count"`
}

// NewOllamaClient initializes the client.
func NewOllamaClient(cfg config.OracleConfig, logger *zap.Logger) *OllamaClient {
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	return &OllamaClient{
		host:        host,
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		baseTimeout: cfg.BaseTimeout,
		// Per-attempt deadlines come from AdaptiveTimeout, not the
		// transport, so the http.Client carries none.
		httpClient: &http.Client{},
		logger:     logger.Named("oracle.ollama"),
	}
}

// Generate sends the prompt to /api/generate and returns the completion.
// Vision requests (req.Images non-empty) are routed to the vision model.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	payload := ollamaRequestPayload{
		Model:  c.model,
		Prompt: req.UserPrompt,
		System: req.SystemPrompt,
		Stream: false,
	}
	if len(req.Images) > 0 {
		payload.Model = c.visionModel
		for _, img := range req.Images {
			payload.Images = append(payload.Images, base64.StdEncoding.EncodeToString(img))
		}
	}
	if req.ForceJSON {
		payload.Format = "json"
	}

	body, err := jsonAPI.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	timeout := AdaptiveTimeout(c.baseTimeout, len(req.UserPrompt))
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.host+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(startTime)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("Ollama generation timed out",
				zap.Duration("timeout", timeout),
				zap.Int("prompt_len", len(req.UserPrompt)))
			return "", ErrTimeout
		}
		return "", fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var responsePayload ollamaResponsePayload
	if err := jsonAPI.Unmarshal(respBody, &responsePayload); err != nil {
		return "", fmt.Errorf("failed to decode response payload: %w", err)
	}

	c.logger.Info("Generation complete (Ollama)",
		zap.String("model", payload.Model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", responsePayload.PromptEvalCnt),
		zap.Int("completion_tokens", responsePayload.EvalCount),
	)

	return responsePayload.Response, nil
}
