package services

import (
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/tarsy/internal/domain"
)

// ConversationContext is a read-only summary of a conversation from one
// participant's point of view, used to brief an acting agent.
type ConversationContext struct {
	Conversation      domain.Conversation
	UnseenHistory     []domain.ConversationTurn
	IsOpener          bool
	ParticipantCount  int
	IsGroup           bool
	OtherParticipants []domain.AgentName
}

// ConversationService is an in-memory index of active conversations and
// pending invitations, with per-agent lookup indexes rebuilt on load.
type ConversationService struct {
	conversations     map[domain.ConversationID]domain.Conversation
	pendingInvites    map[domain.AgentName]domain.Invitation // invitee -> invitation
	agentConversations map[domain.AgentName]map[domain.ConversationID]struct{}

	rng *rand.Rand
}

// NewConversationService returns an empty service. rng may be nil, in
// which case a time-seeded source is used (not used for anything
// replay-sensitive: next-speaker selection happens within a tick and is
// re-derivable from the recorded ConversationNextSpeakerSetEvent).
func NewConversationService(rng *rand.Rand) *ConversationService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ConversationService{
		conversations:       make(map[domain.ConversationID]domain.Conversation),
		pendingInvites:      make(map[domain.AgentName]domain.Invitation),
		agentConversations:  make(map[domain.AgentName]map[domain.ConversationID]struct{}),
		rng:                 rng,
	}
}

// LoadState replaces the service's contents wholesale and rebuilds the
// per-agent index.
func (s *ConversationService) LoadState(conversations map[domain.ConversationID]domain.Conversation, pendingInvites map[domain.AgentName]domain.Invitation) {
	s.conversations = make(map[domain.ConversationID]domain.Conversation, len(conversations))
	for k, v := range conversations {
		s.conversations[k] = v
	}
	s.pendingInvites = make(map[domain.AgentName]domain.Invitation, len(pendingInvites))
	for k, v := range pendingInvites {
		s.pendingInvites[k] = v
	}
	s.agentConversations = make(map[domain.AgentName]map[domain.ConversationID]struct{})
	for id, conv := range s.conversations {
		for name := range conv.Participants {
			s.addParticipantToIndex(name, id)
		}
	}
}

// ToState exports the service's contents for snapshot persistence.
func (s *ConversationService) ToState() (map[domain.ConversationID]domain.Conversation, map[domain.AgentName]domain.Invitation) {
	conversations := make(map[domain.ConversationID]domain.Conversation, len(s.conversations))
	for k, v := range s.conversations {
		conversations[k] = v
	}
	invites := make(map[domain.AgentName]domain.Invitation, len(s.pendingInvites))
	for k, v := range s.pendingInvites {
		invites[k] = v
	}
	return conversations, invites
}

// --- Queries ---

func (s *ConversationService) GetConversation(id domain.ConversationID) (domain.Conversation, bool) {
	c, ok := s.conversations[id]
	return c, ok
}

// GetConversationsForAgent returns every conversation agent currently
// participates in.
func (s *ConversationService) GetConversationsForAgent(agent domain.AgentName) []domain.Conversation {
	ids := s.agentConversations[agent]
	out := make([]domain.Conversation, 0, len(ids))
	for id := range ids {
		if c, ok := s.conversations[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// GetConversationsAtLocation returns conversations at loc. When
// publicOnly is true, private conversations are excluded.
func (s *ConversationService) GetConversationsAtLocation(loc domain.LocationID, publicOnly bool) []domain.Conversation {
	var out []domain.Conversation
	for _, c := range s.conversations {
		if c.Location != loc {
			continue
		}
		if publicOnly && c.Privacy != domain.PrivacyPublic {
			continue
		}
		out = append(out, c)
	}
	return out
}

// GetPendingInvite returns agent's pending invite, if any.
func (s *ConversationService) GetPendingInvite(agent domain.AgentName) (domain.Invitation, bool) {
	inv, ok := s.pendingInvites[agent]
	return inv, ok
}

// GetAllPendingInvites returns every pending invite, keyed by invitee.
func (s *ConversationService) GetAllPendingInvites() map[domain.AgentName]domain.Invitation {
	out := make(map[domain.AgentName]domain.Invitation, len(s.pendingInvites))
	for k, v := range s.pendingInvites {
		out[k] = v
	}
	return out
}

// GetAllConversations returns every active conversation.
func (s *ConversationService) GetAllConversations() []domain.Conversation {
	out := make([]domain.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	return out
}

// IsInConversation reports whether agent participates in any
// conversation.
func (s *ConversationService) IsInConversation(agent domain.AgentName) bool {
	return len(s.agentConversations[agent]) > 0
}

// IsInSpecificConversation reports whether agent participates in id.
func (s *ConversationService) IsInSpecificConversation(agent domain.AgentName, id domain.ConversationID) bool {
	_, ok := s.agentConversations[agent][id]
	return ok
}

// GetConversationContext summarizes conversation id from agent's point
// of view, as of lastSeenIndex turns already observed.
func (s *ConversationService) GetConversationContext(agent domain.AgentName, id domain.ConversationID, lastSeenIndex int) (ConversationContext, bool) {
	conv, ok := s.conversations[id]
	if !ok {
		return ConversationContext{}, false
	}
	var unseen []domain.ConversationTurn
	if lastSeenIndex < len(conv.History) {
		unseen = conv.History[lastSeenIndex:]
	}
	others := make([]domain.AgentName, 0, len(conv.Participants)-1)
	for name := range conv.Participants {
		if name != agent {
			others = append(others, name)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })

	return ConversationContext{
		Conversation:      conv,
		UnseenHistory:     unseen,
		IsOpener:          len(conv.History) == 0,
		ParticipantCount:  len(conv.Participants),
		IsGroup:           len(conv.Participants) > 2,
		OtherParticipants: others,
	}, true
}

// --- Commands ---

// CreateInvite records a pending invitation, reusing inviter's existing
// conversation at loc if they are already in one there rather than
// minting a new id.
func (s *ConversationService) CreateInvite(inviter, invitee domain.AgentName, loc domain.LocationID, privacy domain.Privacy, tick int, invitedAt time.Time) domain.Invitation {
	convID := domain.ConversationID(uuid.New().String()[:8])
	for id := range s.agentConversations[inviter] {
		if conv, ok := s.conversations[id]; ok && conv.Location == loc {
			convID = id
			break
		}
	}

	invite := domain.Invitation{
		ConversationID: convID,
		Inviter:        inviter,
		Invitee:        invitee,
		Location:       loc,
		Privacy:        privacy,
		CreatedAtTick:  tick,
		ExpiresAtTick:  tick + domain.InviteExpiryTicks,
		InvitedAt:      invitedAt,
	}
	s.pendingInvites[invitee] = invite
	return invite
}

// AcceptResult reports whether accepting an invite started a brand new
// conversation or joined an existing one.
type AcceptResult struct {
	Conversation domain.Conversation
	Started      bool
}

// AcceptInvite consumes invitee's pending invite and adds them to the
// target conversation, creating it if this is the first acceptance.
func (s *ConversationService) AcceptInvite(invitee domain.AgentName, tick int) (AcceptResult, bool) {
	invite, ok := s.pendingInvites[invitee]
	if !ok {
		return AcceptResult{}, false
	}
	delete(s.pendingInvites, invitee)

	conv, exists := s.conversations[invite.ConversationID]
	started := false
	if !exists {
		conv = domain.Conversation{
			ID:            invite.ConversationID,
			Location:      invite.Location,
			Privacy:       invite.Privacy,
			Participants:  map[domain.AgentName]struct{}{},
			StartedAtTick: tick,
			CreatedBy:     invite.Inviter,
		}
		conv = conv.WithParticipant(invite.Inviter)
		s.addParticipantToIndex(invite.Inviter, conv.ID)
		started = true
	}
	conv = conv.WithParticipant(invitee)
	s.conversations[conv.ID] = conv
	s.addParticipantToIndex(invitee, conv.ID)

	return AcceptResult{Conversation: conv, Started: started}, true
}

// DeclineInvite discards invitee's pending invite, returning it.
func (s *ConversationService) DeclineInvite(invitee domain.AgentName) (domain.Invitation, bool) {
	invite, ok := s.pendingInvites[invitee]
	if !ok {
		return domain.Invitation{}, false
	}
	delete(s.pendingInvites, invitee)
	return invite, true
}

// ExpireInvite discards invitee's pending invite unconditionally,
// without a tick check. Used for explicit (e.g. observer-triggered)
// expiry, distinct from ExpireInvitesAtTick's automatic sweep.
func (s *ConversationService) ExpireInvite(invitee domain.AgentName) (domain.Invitation, bool) {
	invite, ok := s.pendingInvites[invitee]
	if !ok {
		return domain.Invitation{}, false
	}
	delete(s.pendingInvites, invitee)
	return invite, true
}

// ExpireInvitesAtTick discards and returns every pending invite whose
// expiry tick has passed as of currentTick. Must run after all other
// effects for the tick have been processed.
func (s *ConversationService) ExpireInvitesAtTick(currentTick int) []domain.Invitation {
	var expired []domain.Invitation
	for invitee, invite := range s.pendingInvites {
		if invite.Expired(currentTick) {
			expired = append(expired, invite)
			delete(s.pendingInvites, invitee)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Invitee < expired[j].Invitee })
	return expired
}

// JoinConversation adds agent to a public conversation directly,
// without an invite. Returns false if the conversation does not exist
// or is private.
func (s *ConversationService) JoinConversation(agent domain.AgentName, id domain.ConversationID) (domain.Conversation, bool) {
	conv, ok := s.conversations[id]
	if !ok || conv.Privacy != domain.PrivacyPublic {
		return domain.Conversation{}, false
	}
	conv = conv.WithParticipant(agent)
	s.conversations[id] = conv
	s.addParticipantToIndex(agent, id)
	return conv, true
}

// LeaveConversation removes agent from a conversation. If fewer than
// two participants remain, the conversation is also ended and removed.
func (s *ConversationService) LeaveConversation(agent domain.AgentName, id domain.ConversationID) (conv domain.Conversation, ended bool, ok bool) {
	conv, ok = s.conversations[id]
	if !ok {
		return domain.Conversation{}, false, false
	}
	conv = conv.WithoutParticipant(agent)
	s.removeParticipantFromIndex(agent, id)

	if len(conv.Participants) < 2 {
		s.removeConversationFromAllIndexes(id)
		delete(s.conversations, id)
		return conv, true, true
	}
	s.conversations[id] = conv
	return conv, false, true
}

// AddTurn appends a turn to conversation id's history.
func (s *ConversationService) AddTurn(id domain.ConversationID, turn domain.ConversationTurn) (domain.Conversation, bool) {
	conv, ok := s.conversations[id]
	if !ok {
		return domain.Conversation{}, false
	}
	conv = conv.WithTurn(turn)
	s.conversations[id] = conv
	return conv, true
}

// SetNextSpeaker records who should speak next in conversation id.
func (s *ConversationService) SetNextSpeaker(id domain.ConversationID, speaker domain.AgentName) (domain.Conversation, bool) {
	conv, ok := s.conversations[id]
	if !ok {
		return domain.Conversation{}, false
	}
	conv = conv.WithNextSpeaker(speaker)
	s.conversations[id] = conv
	return conv, true
}

// GetNextSpeaker resolves who should speak next: the conversation's
// explicit NextSpeaker if set, else a random participant excluding the
// last speaker.
func (s *ConversationService) GetNextSpeaker(id domain.ConversationID) (domain.AgentName, bool) {
	conv, ok := s.conversations[id]
	if !ok {
		return "", false
	}
	if conv.NextSpeaker != nil {
		return *conv.NextSpeaker, true
	}

	var lastSpeaker domain.AgentName
	if len(conv.History) > 0 {
		lastSpeaker = conv.History[len(conv.History)-1].Speaker
	}

	candidates := make([]domain.AgentName, 0, len(conv.Participants))
	for name := range conv.Participants {
		if name != lastSpeaker {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		for name := range conv.Participants {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	return candidates[s.rng.Intn(len(candidates))], true
}

// EndConversation removes conversation id outright.
func (s *ConversationService) EndConversation(id domain.ConversationID) (domain.Conversation, bool) {
	conv, ok := s.conversations[id]
	if !ok {
		return domain.Conversation{}, false
	}
	s.removeConversationFromAllIndexes(id)
	delete(s.conversations, id)
	return conv, true
}

// --- Index management ---

func (s *ConversationService) addParticipantToIndex(agent domain.AgentName, id domain.ConversationID) {
	set, ok := s.agentConversations[agent]
	if !ok {
		set = make(map[domain.ConversationID]struct{})
		s.agentConversations[agent] = set
	}
	set[id] = struct{}{}
}

func (s *ConversationService) removeParticipantFromIndex(agent domain.AgentName, id domain.ConversationID) {
	set, ok := s.agentConversations[agent]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(s.agentConversations, agent)
	}
}

func (s *ConversationService) removeConversationFromAllIndexes(id domain.ConversationID) {
	conv, ok := s.conversations[id]
	if !ok {
		return
	}
	for name := range conv.Participants {
		s.removeParticipantFromIndex(name, id)
	}
}
