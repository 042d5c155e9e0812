// internal/oracle/openai.go
package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/internal/config"
)

// OpenAIClient implements Client over the OpenAI chat completions API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	visionModel string
	baseTimeout time.Duration
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.OracleConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Host != "" {
		clientCfg.BaseURL = cfg.Host
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		baseTimeout: cfg.BaseTimeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("oracle.openai"),
	}, nil
}

// Generate sends the prompt as a chat completion and returns the first
// choice. Image parts switch the call to the vision model.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	model := c.model
	userMsg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	}
	if len(req.Images) > 0 {
		model = c.visionModel
		parts := []openai.ChatMessagePart{{
			Type: openai.ChatMessagePartTypeText,
			Text: req.UserPrompt,
		}}
		for _, img := range req.Images {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
				},
			})
		}
		userMsg = openai.ChatCompletionMessage{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: parts,
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			userMsg,
		},
	}
	if req.ForceJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	timeout := AdaptiveTimeout(c.baseTimeout, len(req.UserPrompt))
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(attemptCtx, chatReq)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("OpenAI generation timed out",
				zap.Duration("timeout", timeout),
				zap.Int("prompt_len", len(req.UserPrompt)))
			return "", ErrTimeout
		}
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}

	c.logger.Info("Generation complete (OpenAI)",
		zap.String("model", model),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}
