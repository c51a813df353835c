package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendSimpleText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req MessagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "you are helpful", req.System)
		require.Len(t, req.Messages, 1)

		resp := MessagesResponse{
			ID: "msg_1", Type: "message", Role: roleAssistant,
			StopReason: "end_turn",
			Content:    []ContentBlock{{Type: blockText, Text: "Hello there."}},
			Usage:      Usage{InputTokens: 10, OutputTokens: 5},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	messages := []Message{{Role: roleUser, Content: []ContentBlock{{Type: blockText, Text: "hi"}}}}

	resp, err := client.Send(context.Background(), "you are helpful", messages, nil)
	require.NoError(t, err)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "Hello there.", resp.Content[0].Text)
	assert.Equal(t, 10, resp.Usage.InputTokens)
}

func TestClient_SendReturnsErrorOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	_, err := client.Send(context.Background(), "sys", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewClient_AppliesDefaults(t *testing.T) {
	client := NewClient(Config{APIKey: "key"})
	assert.Equal(t, DefaultModel, client.model)
	assert.Equal(t, DefaultEndpoint, client.endpoint)
	assert.Equal(t, DefaultMaxTokens, client.maxTokens)
	assert.Equal(t, DefaultTemperature, client.temperature)
}

func TestNewClient_HonorsExplicitConfig(t *testing.T) {
	client := NewClient(Config{APIKey: "key", Model: "claude-x", Endpoint: "http://example.test", MaxTokens: 500, Temperature: 0.2})
	assert.Equal(t, "claude-x", client.model)
	assert.Equal(t, "http://example.test", client.endpoint)
	assert.Equal(t, 500, client.maxTokens)
	assert.Equal(t, 0.2, client.temperature)
}
