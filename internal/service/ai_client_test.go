package service_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"story-weaver/internal/config"
	"story-weaver/internal/models"
	"story-weaver/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func clientConfig(clientType, baseURL string) *config.Config {
	return &config.Config{
		AIClientType: clientType,
		AIBaseURL:    baseURL,
		AIModel:      "test-model",
		AIAPIKey:     "test-key",
		AITimeout:    5 * time.Second,
	}
}

func temperature(v float64) service.GenerationParams {
	return service.GenerationParams{Temperature: &v}
}

func TestNewAIClient_UnknownType(t *testing.T) {
	_, err := service.NewAIClient(clientConfig("gemini-native", "http://localhost"), zap.NewNop())
	assert.Error(t, err)
}

func TestOpenAIClient_GenerateText(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","model":"test-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"storySegment\":\"Hi\",\"choices\":[]}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	}))
	defer srv.Close()

	client, err := service.NewAIClient(clientConfig(config.AIClientOpenAI, srv.URL), zap.NewNop())
	require.NoError(t, err)

	image := &models.ImagePart{MIMEType: "image/png", Data: "AAAA"}
	text, usage, err := client.GenerateText(context.Background(), "system", "user input", image, temperature(0.8))
	require.NoError(t, err)
	assert.Equal(t, `{"storySegment":"Hi","choices":[]}`, text)
	assert.Equal(t, 15, usage.TotalTokens)
	assert.False(t, usage.Estimated)

	format := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "story_segment", format["json_schema"].(map[string]any)["name"])

	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	raw, _ := json.Marshal(user["content"])
	assert.Contains(t, string(raw), "data:image/png;base64,AAAA")
	assert.Contains(t, string(raw), "user input")
}

func TestOpenAIClient_Errors(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"auth"}}`)
		}))
		defer srv.Close()

		client, err := service.NewAIClient(clientConfig(config.AIClientOpenAI, srv.URL), zap.NewNop())
		require.NoError(t, err)
		_, _, err = client.GenerateText(context.Background(), "system", "user", nil, temperature(0.8))
		assert.True(t, errors.Is(err, models.ErrGenerationFailed))
	})

	t.Run("empty response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[]}`)
		}))
		defer srv.Close()

		client, err := service.NewAIClient(clientConfig(config.AIClientOpenAI, srv.URL), zap.NewNop())
		require.NoError(t, err)
		_, _, err = client.GenerateText(context.Background(), "system", "user", nil, temperature(0.8))
		assert.True(t, errors.Is(err, models.ErrMalformedResponse))
	})
}

func TestOllamaClient_GenerateText(t *testing.T) {
	raw := []byte{1, 2, 3}
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"test-model","created_at":"2024-01-01T00:00:00Z",
			"message":{"role":"assistant","content":"{\"storySegment\":\"Hi\",\"choices\":[\"Go\"]}"},
			"done":true,"prompt_eval_count":3,"eval_count":4}`+"\n")
	}))
	defer srv.Close()

	client, err := service.NewAIClient(clientConfig(config.AIClientOllama, srv.URL+"/v1"), zap.NewNop())
	require.NoError(t, err)

	image := &models.ImagePart{MIMEType: "image/png", Data: base64.StdEncoding.EncodeToString(raw), Raw: raw}
	text, usage, err := client.GenerateText(context.Background(), "system", "user", image, temperature(0.8))
	require.NoError(t, err)
	assert.Equal(t, `{"storySegment":"Hi","choices":["Go"]}`, text)
	assert.Equal(t, 7, usage.TotalTokens)

	assert.Equal(t, false, captured["stream"])
	assert.Equal(t, 0.8, captured["options"].(map[string]any)["temperature"])
	assert.Equal(t, "object", captured["format"].(map[string]any)["type"])

	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	images := messages[1].(map[string]any)["images"].([]any)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), images[0])
}
