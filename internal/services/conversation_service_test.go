package services

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy/internal/domain"
)

func newTestService() *ConversationService {
	return NewConversationService(rand.New(rand.NewSource(1)))
}

func TestConversationService_InviteAcceptStartsConversation(t *testing.T) {
	s := newTestService()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	invite := s.CreateInvite("alice", "bob", "plaza", domain.PrivacyPublic, 10, now)
	assert.Equal(t, domain.AgentName("alice"), invite.Inviter)
	assert.Equal(t, 12, invite.ExpiresAtTick)

	result, ok := s.AcceptInvite("bob", 10)
	require.True(t, ok)
	assert.True(t, result.Started)
	assert.True(t, result.Conversation.HasParticipant("alice"))
	assert.True(t, result.Conversation.HasParticipant("bob"))

	assert.True(t, s.IsInConversation("alice"))
	assert.True(t, s.IsInConversation("bob"))
}

func TestConversationService_SecondInviteAcceptJoinsNotStarts(t *testing.T) {
	s := newTestService()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	s.CreateInvite("alice", "bob", "plaza", domain.PrivacyPublic, 10, now)
	first, _ := s.AcceptInvite("bob", 10)

	invite := s.CreateInvite("alice", "carol", "plaza", domain.PrivacyPublic, 10, now)
	assert.Equal(t, first.Conversation.ID, invite.ConversationID)

	second, ok := s.AcceptInvite("carol", 10)
	require.True(t, ok)
	assert.False(t, second.Started)
	assert.Len(t, second.Conversation.Participants, 3)
}

func TestConversationService_DeclineInviteDiscards(t *testing.T) {
	s := newTestService()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s.CreateInvite("alice", "bob", "plaza", domain.PrivacyPublic, 10, now)

	invite, ok := s.DeclineInvite("bob")
	require.True(t, ok)
	assert.Equal(t, domain.AgentName("alice"), invite.Inviter)

	_, ok = s.GetPendingInvite("bob")
	assert.False(t, ok)
}

func TestConversationService_ExpireInvitesAtTick(t *testing.T) {
	s := newTestService()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s.CreateInvite("alice", "bob", "plaza", domain.PrivacyPublic, 10, now)

	expired := s.ExpireInvitesAtTick(11)
	assert.Empty(t, expired)

	expired = s.ExpireInvitesAtTick(12)
	require.Len(t, expired, 1)
	assert.Equal(t, domain.AgentName("bob"), expired[0].Invitee)
}

func TestConversationService_LeaveConversationEndsWhenBelowTwo(t *testing.T) {
	s := newTestService()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s.CreateInvite("alice", "bob", "plaza", domain.PrivacyPublic, 10, now)
	result, _ := s.AcceptInvite("bob", 10)

	_, ended, ok := s.LeaveConversation("bob", result.Conversation.ID)
	require.True(t, ok)
	assert.True(t, ended)

	_, exists := s.GetConversation(result.Conversation.ID)
	assert.False(t, exists)
	assert.False(t, s.IsInConversation("alice"))
}

func TestConversationService_GetNextSpeakerPrefersExplicit(t *testing.T) {
	s := newTestService()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s.CreateInvite("alice", "bob", "plaza", domain.PrivacyPublic, 10, now)
	result, _ := s.AcceptInvite("bob", 10)

	s.SetNextSpeaker(result.Conversation.ID, "bob")
	speaker, ok := s.GetNextSpeaker(result.Conversation.ID)
	require.True(t, ok)
	assert.Equal(t, domain.AgentName("bob"), speaker)
}

func TestConversationService_GetNextSpeakerExcludesLastSpeaker(t *testing.T) {
	s := newTestService()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s.CreateInvite("alice", "bob", "plaza", domain.PrivacyPublic, 10, now)
	result, _ := s.AcceptInvite("bob", 10)

	s.AddTurn(result.Conversation.ID, domain.ConversationTurn{Speaker: "alice", Narrative: "hi", Tick: 10, Timestamp: now})

	speaker, ok := s.GetNextSpeaker(result.Conversation.ID)
	require.True(t, ok)
	assert.Equal(t, domain.AgentName("bob"), speaker)
}
