package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/tarsy/internal/domain"
)

func TestScheduler_PopEventsAt_OrdersByDueTimeThenPriority(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	s.ScheduleAgentTurn("alice", "plaza", base)
	s.ScheduleInviteResponse("bob", "plaza", base)
	s.ScheduleConversationTurn("conv-1", "plaza", base)

	due, ok := s.GetEarliestDueTime()
	assert.True(t, ok)
	assert.True(t, due.Equal(base))

	events := s.PopEventsAt(base)
	assert.Len(t, events, 3)
	assert.Equal(t, EventInviteResponse, events[0].EventType)
	assert.Equal(t, EventConversationTurn, events[1].EventType)
	assert.Equal(t, EventAgentTurn, events[2].EventType)

	_, ok = s.GetEarliestDueTime()
	assert.False(t, ok)
}

func TestScheduler_DueTimeIsPrimarySortKey(t *testing.T) {
	s := New()
	earlier := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	later := earlier.Add(5 * time.Minute)

	s.ScheduleAgentTurn("alice", "plaza", later)
	s.ScheduleInviteResponse("bob", "plaza", earlier)

	events := s.PopEventsUpTo(later)
	assert.Len(t, events, 2)
	assert.Equal(t, domain.AgentName("bob"), domain.AgentName(events[0].TargetID))
	assert.Equal(t, domain.AgentName("alice"), domain.AgentName(events[1].TargetID))
}

func TestScheduler_CancelAgentEvents(t *testing.T) {
	s := New()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	s.ScheduleAgentTurn("alice", "plaza", now)
	s.ScheduleInviteResponse("alice", "plaza", now.Add(time.Minute))
	s.ScheduleAgentTurn("bob", "plaza", now)

	s.CancelAgentEvents("alice")

	assert.False(t, s.HasPendingEvent("alice"))
	assert.True(t, s.HasPendingAgentTurn("bob"))

	remaining := s.PopEventsUpTo(now.Add(time.Hour))
	assert.Len(t, remaining, 1)
	assert.Equal(t, "bob", remaining[0].TargetID)
}

func TestScheduler_ForcedNextClearedOnRecordTurn(t *testing.T) {
	s := New()

	s.ForceNextTurn("alice")
	agent, ok := s.GetForcedNext()
	assert.True(t, ok)
	assert.Equal(t, domain.AgentName("alice"), agent)

	s.RecordTurn("alice")
	_, ok = s.GetForcedNext()
	assert.False(t, ok)
	assert.Equal(t, 1, s.GetTurnCount("alice"))
}

func TestScheduler_SkipCountsDecrementToZeroAndClear(t *testing.T) {
	s := New()

	s.SkipTurns("alice", 2)
	assert.Equal(t, 2, s.GetSkipCount("alice"))

	s.DecrementSkip("alice")
	assert.Equal(t, 1, s.GetSkipCount("alice"))

	s.DecrementSkip("alice")
	assert.Equal(t, 0, s.GetSkipCount("alice"))
}

func TestScheduler_ClearAllModifiers(t *testing.T) {
	s := New()

	s.ForceNextTurn("alice")
	s.SkipTurns("bob", 3)

	s.ClearAllModifiers()

	_, ok := s.GetForcedNext()
	assert.False(t, ok)
	assert.Equal(t, 0, s.GetSkipCount("bob"))
}

func TestScheduler_LastLocationSpeaker(t *testing.T) {
	s := New()

	_, ok := s.GetLastLocationSpeaker("plaza")
	assert.False(t, ok)

	s.RecordLocationSpeaker("plaza", "alice")
	speaker, ok := s.GetLastLocationSpeaker("plaza")
	assert.True(t, ok)
	assert.Equal(t, domain.AgentName("alice"), speaker)
}

func TestScheduler_StateRoundTrip(t *testing.T) {
	s := New()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	s.ScheduleAgentTurn("alice", "plaza", now)
	s.ForceNextTurn("bob")
	s.SkipTurns("carol", 3)
	s.RecordTurn("alice")
	s.RecordLocationSpeaker("plaza", "alice")

	state := s.ToState()

	restored := New()
	restored.LoadState(state)

	assert.True(t, restored.HasPendingAgentTurn("alice"))
	forced, ok := restored.GetForcedNext()
	assert.True(t, ok)
	assert.Equal(t, domain.AgentName("bob"), forced)
	assert.Equal(t, 3, restored.GetSkipCount("carol"))
	assert.Equal(t, 1, restored.GetTurnCount("alice"))
	speaker, ok := restored.GetLastLocationSpeaker("plaza")
	assert.True(t, ok)
	assert.Equal(t, domain.AgentName("alice"), speaker)
}
