// Package permission answers whether a user may act on a conversation or reach another user.
// Negative answers are values, not errors. A failing store answers "no".
package permission

import (
	"context"
	"dm-lab/domain/messaging"
	"dm-lab/errors"
	"dm-lab/repositories"
	"log/slog"
	"strings"
)

const (
	ReasonSelf    = "you cannot message yourself"
	ReasonBlocked = "you cannot message this user"
	ReasonUnknown = "messaging is unavailable for this user"
)

// Decision carries a human readable reason when CanMessage is false.
type Decision struct {
	CanMessage bool   `json:"can_message"`
	Reason     string `json:"reason,omitempty"`
}

type Gate struct {
	conversations repositories.IConversationRepository
	relationships repositories.IRelationshipRepository
	log           *slog.Logger
}

func NewGate(conversations repositories.IConversationRepository,
	relationships repositories.IRelationshipRepository, log *slog.Logger) *Gate {
	return &Gate{conversations: conversations, relationships: relationships, log: log}
}

// CanMessage never reveals which side of a block exists.
func (g *Gate) CanMessage(_ context.Context, senderID, recipientID messaging.UserID) Decision {
	if strings.TrimSpace(senderID) == strings.TrimSpace(recipientID) {
		return Decision{Reason: ReasonSelf}
	}
	blocked, err := g.relationships.IsBlockedEitherWay(senderID, recipientID)
	if err != nil {
		g.log.Error("Block lookup failed", "sender_id", senderID, "recipient_id", recipientID, "error", err)
		return Decision{Reason: ReasonUnknown}
	}
	if blocked {
		return Decision{Reason: ReasonBlocked}
	}
	return Decision{CanMessage: true}
}

func (g *Gate) IsActiveParticipant(_ context.Context, conversationID messaging.ConversationID, userID messaging.UserID) bool {
	p, ok := g.participant(conversationID, userID)
	return ok && p.IsActive()
}

// IsGroupAdmin is false for 1:1 conversations, which have no admin.
func (g *Gate) IsGroupAdmin(_ context.Context, conversationID messaging.ConversationID, userID messaging.UserID) bool {
	p, ok := g.participant(conversationID, userID)
	if !ok || !p.IsActive() || p.Role != messaging.RoleAdmin {
		return false
	}
	conversation, err := g.conversations.Get(conversationID, userID)
	if err != nil {
		g.log.Error("Conversation lookup failed", "conversation_id", conversationID, "error", err)
		return false
	}
	return conversation.IsGroup
}

func (g *Gate) participant(conversationID messaging.ConversationID, userID messaging.UserID) (messaging.Participant, bool) {
	p, err := g.conversations.Participant(conversationID, userID)
	if errors.Is(err, errors.ErrNotFound) {
		return p, false
	}
	if err != nil {
		g.log.Error("Participant lookup failed", "conversation_id", conversationID, "user_id", userID, "error", err)
		return p, false
	}
	return p, true
}
