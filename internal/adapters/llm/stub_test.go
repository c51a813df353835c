package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime/phases"
)

func TestStubProvider_NarratesBySituation(t *testing.T) {
	provider := NewStubProvider()
	toolCtx := phases.NewToolContext()

	out, err := provider.ExecuteTurn(context.Background(), testAgentContext(), toolCtx, nil)
	require.NoError(t, err)
	assert.Contains(t, out.Narrative, "Sage")
	assert.Contains(t, out.Narrative, "garden")

	withInvite := testAgentContext()
	withInvite.PendingInvite = &domain.Invitation{Inviter: "River"}
	out, err = provider.ExecuteTurn(context.Background(), withInvite, toolCtx, nil)
	require.NoError(t, err)
	assert.Contains(t, out.Narrative, "invitation")
}

func TestStubInterpreterClient_NeverCallsTools(t *testing.T) {
	client := NewStubInterpreterClient()
	calls, usage, err := client.Interpret(context.Background(), "Sage waves.", nil)
	require.NoError(t, err)
	assert.Empty(t, calls)
	assert.Zero(t, usage.InputTokens)
}
