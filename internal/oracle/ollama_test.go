// internal/oracle/ollama_test.go
package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/internal/config"
)

func TestOllamaClientGenerate(t *testing.T) {
	t.Parallel()

	t.Run("sends prompt and returns response", func(t *testing.T) {
		t.Parallel()

		var got ollamaRequestPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/generate", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(ollamaResponsePayload{
				Response: "a desktop with a browser window open",
				Done:     true,
			})
		}))
		defer server.Close()

		client := NewOllamaClient(config.OracleConfig{
			Host:        server.URL,
			Model:       "llama3.2",
			VisionModel: "llava",
			BaseTimeout: 10 * time.Second,
		}, zap.NewNop())

		content, err := client.Generate(context.Background(), Request{
			SystemPrompt: "You describe screens.",
			UserPrompt:   "What is on screen?",
		})
		require.NoError(t, err)

		assert.Equal(t, "a desktop with a browser window open", content)
		assert.Equal(t, "llama3.2", got.Model)
		assert.Equal(t, "What is on screen?", got.Prompt)
		assert.Equal(t, "You describe screens.", got.System)
		assert.False(t, got.Stream)
	})

	t.Run("images switch to the vision model", func(t *testing.T) {
		t.Parallel()

		var got ollamaRequestPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(ollamaResponsePayload{Response: "ok", Done: true})
		}))
		defer server.Close()

		client := NewOllamaClient(config.OracleConfig{
			Host:        server.URL,
			Model:       "llama3.2",
			VisionModel: "llava",
			BaseTimeout: 10 * time.Second,
		}, zap.NewNop())

		_, err := client.Generate(context.Background(), Request{
			UserPrompt: "Describe this screenshot.",
			Images:     [][]byte{{0x89, 0x50, 0x4e, 0x47}},
		})
		require.NoError(t, err)

		assert.Equal(t, "llava", got.Model)
		require.Len(t, got.Images, 1)
	})

	t.Run("slow server yields ErrTimeout", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer server.Close()

		client := NewOllamaClient(config.OracleConfig{
			Host:        server.URL,
			Model:       "llama3.2",
			BaseTimeout: 50 * time.Millisecond,
		}, zap.NewNop())

		_, err := client.Generate(context.Background(), Request{UserPrompt: "hi"})
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("server error surfaces status", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()

		client := NewOllamaClient(config.OracleConfig{
			Host:        server.URL,
			Model:       "missing",
			BaseTimeout: 10 * time.Second,
		}, zap.NewNop())

		_, err := client.Generate(context.Background(), Request{UserPrompt: "hi"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})
}

func TestNewClientFactory(t *testing.T) {
	t.Parallel()

	t.Run("ollama needs no key", func(t *testing.T) {
		t.Parallel()
		client, err := NewClient(config.OracleConfig{Provider: "ollama"}, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &OllamaClient{}, client)
	})

	t.Run("openai requires a key", func(t *testing.T) {
		t.Parallel()
		_, err := NewClient(config.OracleConfig{Provider: "openai"}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewClient(config.OracleConfig{Provider: "clippy"}, zap.NewNop())
		assert.Error(t, err)
	})
}
