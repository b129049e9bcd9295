package messaging

import (
	"time"

	"github.com/google/uuid"
)

const (
	MaxContentLength = 5000
	Tombstone        = "[message deleted]"
)

type MessageID = uuid.UUID

// Message is ordered inside its conversation by Seq, which the store assigns monotonically.
type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	SenderID       UserID         `json:"sender_id"`
	Content        string         `json:"content"`
	Seq            uint64         `json:"seq"`
	CreatedAt      time.Time      `json:"created_at"`
	EditedAt       *time.Time     `json:"edited_at,omitempty"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Redacted returns the message as it may leave the store: deleted content is replaced by the tombstone.
func (m Message) Redacted() Message {
	if m.IsDeleted() {
		m.Content = Tombstone
	}
	return m
}

type ModerationResult struct {
	Approved   bool     `json:"approved"`
	Reason     string   `json:"reason,omitempty"`
	Categories []string `json:"categories,omitempty"`
	// Degraded is set when the classifier could not answer and the policy default was applied.
	Degraded bool `json:"-"`
}
