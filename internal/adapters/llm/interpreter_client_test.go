package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
)

func TestInterpreterClient_ReturnsToolCallsFromResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req MessagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "Sage walks to the library.", req.Messages[0].Content[0].Text)

		resp := MessagesResponse{
			StopReason: stopReasonToolUse,
			Content: []ContentBlock{
				{Type: blockToolUse, Name: "move_to", Input: map[string]any{"destination": "library"}},
			},
			Usage: Usage{InputTokens: 12, OutputTokens: 4},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewInterpreterClient(NewClient(Config{APIKey: "k", Endpoint: server.URL}))
	tools := []interpreter.ObservationAction{
		{Name: "move_to", Description: "move to a location", InputSchema: interpreter.ToolSchema{
			Type: "object", Properties: map[string]interpreter.PropertySchema{"destination": {Type: "string"}},
		}},
	}

	calls, usage, err := client.Interpret(context.Background(), "Sage walks to the library.", tools)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "move_to", calls[0].Name)
	assert.Equal(t, "library", calls[0].Input["destination"])
	assert.Equal(t, 12, usage.InputTokens)
}

func TestInterpreterClient_NoToolCallsWhenNoneMade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := MessagesResponse{StopReason: "end_turn", Content: nil}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewInterpreterClient(NewClient(Config{APIKey: "k", Endpoint: server.URL}))
	calls, _, err := client.Interpret(context.Background(), "Sage hums quietly.", nil)
	require.NoError(t, err)
	assert.Empty(t, calls)
}
