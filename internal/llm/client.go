// Package llm wraps the chat-completion API behind a small interface so the
// planner, decomposer, and execution loop can be tested against a scripted
// fake. The production implementation retries transient failures with
// exponential backoff and bounds every call with a timeout.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kestrelhq/kestrel/internal/config"
	"github.com/kestrelhq/kestrel/internal/logging"
)

var logger = logging.New("llm")

// Role constants for chat messages.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Client is the completion interface consumed by the rest of Kestrel.
// wantJSON requests a JSON-object response format when the backend supports
// it; extraction still tolerates prose-wrapped output either way.
type Client interface {
	Complete(ctx context.Context, messages []Message, wantJSON bool) (string, error)
	Model() string
}

// ErrNoAPIKey is returned when the configured key environment variable is
// unset or empty.
var ErrNoAPIKey = errors.New("llm: API key not set")

// OpenAIClient is the production Client backed by the OpenAI-compatible chat
// completion API.
type OpenAIClient struct {
	api         *openai.Client
	model       string
	maxRetries  int
	timeout     time.Duration
	temperature float32
}

// NewClient builds an OpenAIClient from configuration. The API key is read
// from the environment variable named by cfg.APIKeyEnv, never from the
// config file itself.
func NewClient(cfg *config.Config) (*OpenAIClient, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: export %s", ErrNoAPIKey, cfg.APIKeyEnv)
	}

	apiCfg := openai.DefaultConfig(key)
	if cfg.APIBaseURL != "" {
		apiCfg.BaseURL = cfg.APIBaseURL
	}

	return &OpenAIClient{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		maxRetries:  cfg.LLM.MaxRetries,
		timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		temperature: float32(cfg.LLM.Temperature),
	}, nil
}

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string { return c.model }

// SetModel switches the model used by subsequent completions.
func (c *OpenAIClient) SetModel(model string) { c.model = model }

// Complete sends the messages and returns the assistant's text. Transient
// failures (rate limits, 5xx, network errors, timeouts) are retried up to
// maxRetries times with exponential backoff; other errors fail immediately.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, wantJSON bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(messages),
		Temperature: c.temperature,
	}
	if wantJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			logger.Warn("retrying completion", "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.api.CreateChatCompletion(callCtx, req)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("llm: empty response from model %s", c.model)
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !isTransient(err) || ctx.Err() != nil {
			return "", fmt.Errorf("llm: completion failed: %w", err)
		}
	}
	return "", fmt.Errorf("llm: completion failed after %d retries: %w", c.maxRetries, lastErr)
}

// toChatMessages converts Kestrel messages to the client library's type.
func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// isTransient reports whether an error is worth retrying: rate limits,
// server-side errors, network failures, and per-call timeouts. Client errors
// such as invalid requests or bad credentials are permanent.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
