// Package messaging contains the core concepts of direct messaging.
// No storage, network or transport logic should be added here.
package messaging

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID = uuid.UUID

type UserID = string

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParticipantStatus is the acceptance state of a conversation invite.
// It is unrelated to the social graph follow status.
type ParticipantStatus string

const (
	StatusAccepted ParticipantStatus = "accepted"
	StatusPending  ParticipantStatus = "pending"
)

type Conversation struct {
	ID        ConversationID `json:"id"`
	IsGroup   bool           `json:"is_group"`
	Name      *string        `json:"name,omitempty"`
	CreatedBy UserID         `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type Participant struct {
	ConversationID ConversationID    `json:"conversation_id"`
	UserID         UserID            `json:"user_id"`
	Role           Role              `json:"role"`
	Status         ParticipantStatus `json:"status"`
	JoinedAt       time.Time         `json:"joined_at"`
	LeftAt         *time.Time        `json:"left_at,omitempty"`
	IsMuted        bool              `json:"is_muted"`
	LastReadAt     *time.Time        `json:"last_read_at,omitempty"`
}

func (p Participant) IsActive() bool {
	return p.LeftAt == nil
}

// ConversationView is a conversation as seen by one of its participants.
type ConversationView struct {
	Conversation
	Participants []ParticipantView `json:"participants,omitempty"`
	LastMessage  *Message          `json:"last_message,omitempty"`
	UnreadCount  int               `json:"unread_count"`
	IsMuted      bool              `json:"is_muted"`
	Status       ParticipantStatus `json:"status"`
}

// ParticipantView is a participant hydrated with its public profile.
type ParticipantView struct {
	Participant
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}
