package llm

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/kestrel/internal/config"
)

// ---- Message builders -------------------------------------------------------

func TestMessageBuilders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Message{Role: RoleSystem, Content: "rules"}, System("rules"))
	assert.Equal(t, Message{Role: RoleUser, Content: "ask"}, User("ask"))
	assert.Equal(t, Message{Role: RoleAssistant, Content: "reply"}, Assistant("reply"))
}

func TestToChatMessages(t *testing.T) {
	t.Parallel()

	in := []Message{System("a"), User("b")}
	out := toChatMessages(in)
	require.Len(t, out, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, out[0].Role)
	assert.Equal(t, "a", out[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, out[1].Role)
	assert.Equal(t, "b", out[1].Content)
}

// ---- NewClient --------------------------------------------------------------

func TestNewClient_MissingKey(t *testing.T) {
	cfg := config.NewDefaults()
	cfg.APIKeyEnv = "KESTREL_TEST_MISSING_KEY"
	t.Setenv(cfg.APIKeyEnv, "")

	_, err := NewClient(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAPIKey)
	assert.Contains(t, err.Error(), "KESTREL_TEST_MISSING_KEY")
}

func TestNewClient_UsesConfiguredModel(t *testing.T) {
	cfg := config.NewDefaults()
	cfg.APIKeyEnv = "KESTREL_TEST_KEY"
	cfg.Model = "test-model"
	t.Setenv(cfg.APIKeyEnv, "sk-test")

	client, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "test-model", client.Model())

	client.SetModel("other-model")
	assert.Equal(t, "other-model", client.Model())
}

// ---- isTransient ------------------------------------------------------------

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}
