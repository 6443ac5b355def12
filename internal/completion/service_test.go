package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"flyingpigai/pkg/config"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(baseURL string) *Service {
	return NewService(&config.Config{
		ProxyBaseURL: baseURL,
		ProxyAPIKey:  "sk-123456",
	})
}

func TestCompleteResolvesModelAndReturnsAnswer(t *testing.T) {
	var gotRequest openai.ChatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: "здравствуйте",
				}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	svc := newTestService(srv.URL + "/v1")

	answer, err := svc.Complete(context.Background(), "привет", "zhipuai", 0.7)
	require.NoError(t, err)
	assert.Equal(t, "здравствуйте", answer)

	assert.Equal(t, "glm-4-flash", gotRequest.Model)
	require.Len(t, gotRequest.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, gotRequest.Messages[0].Role)
	assert.Equal(t, "привет", gotRequest.Messages[0].Content)
	assert.InDelta(t, 0.7, gotRequest.Temperature, 0.001)
}

func TestCompleteUnknownIdentifier(t *testing.T) {
	svc := newTestService("http://localhost:9090/v1")

	_, err := svc.Complete(context.Background(), "привет", "нет-такого", 1.0)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	svc := newTestService(srv.URL + "/v1")

	_, err := svc.Complete(context.Background(), "привет", "deepseek", 1.0)
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestCompleteTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "нет ключа"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := newTestService(srv.URL + "/v1")

	_, err := svc.Complete(context.Background(), "привет", "zhipuai", 1.0)
	assert.Error(t, err)
}
