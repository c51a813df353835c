// Package domain holds the immutable value types that make up the
// village's state: identifiers, time, world, agents, conversations,
// effects, and events. Nothing in this package mutates in place; every
// update constructs a new value.
package domain

// AgentName, LocationID, and ConversationID are distinct nominal string
// types so the compiler catches accidental interchange between them.
type AgentName string

type LocationID string

type ConversationID string

// Privacy is the visibility of a conversation.
type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

// InviteExpiryTicks is how many ticks an invite remains valid before
// expiring.
const InviteExpiryTicks = 2
