// Package storage holds the durable, file-based event log and snapshot
// store the engine recovers from: an append-only NDJSON event log,
// periodic full JSON snapshots, and cold archive segments. Recovery is
// deterministic: load the latest snapshot, then replay every event with
// a tick greater than the snapshot's tick.
package storage

import (
	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
)

// VillageSnapshot is the full, serializable state of the simulation at
// a point in time: everything ApplyEffectsPhase can mutate.
type VillageSnapshot struct {
	World          domain.WorldSnapshot
	Agents         map[domain.AgentName]domain.AgentSnapshot
	Conversations  map[domain.ConversationID]domain.Conversation
	PendingInvites map[domain.AgentName]domain.Invitation
	Scheduler      scheduler.State
	UnseenEndings  map[domain.AgentName][]domain.UnseenConversationEnding
}

// Tick is a convenience accessor mirroring the world's tick.
func (v VillageSnapshot) Tick() int {
	return v.World.Tick
}
