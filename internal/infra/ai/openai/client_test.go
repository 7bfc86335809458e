package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/openai"
)

func TestClient_Analyze(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"suggestions\":[]}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := openai.NewClient("sk-test", srv.URL, "gpt-4o", 0.2, 500)
	out, err := c.Analyze(context.Background(), analysis.InferenceRequest{Path: "main.go", Content: "package main"})
	require.NoError(t, err)
	assert.Equal(t, `{"suggestions":[]}`, out)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.EqualValues(t, 500, got["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].(map[string]any)["content"], "main.go")
}

func TestClient_Analyze_ReasoningModelUsesCompletionTokens(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{}"}}]}`))
	}))
	defer srv.Close()

	c := openai.NewClient("sk-test", srv.URL, "o3-mini", 0.7, 0)
	_, err := c.Analyze(context.Background(), analysis.InferenceRequest{Path: "a.py"})
	require.NoError(t, err)

	assert.EqualValues(t, 2000, got["max_completion_tokens"])
	assert.NotContains(t, got, "max_tokens")
}

func TestClient_Analyze_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	_, err := openai.NewClient("sk-test", srv.URL, "", 0, 0).Analyze(context.Background(), analysis.InferenceRequest{Path: "a.go"})
	assert.ErrorContains(t, err, "chat completion")
}
