package messaging

import "time"

type SendMessageCommand struct {
	ConversationID ConversationID
	SenderID       UserID `validate:"required"`
	Content        string
}

type EditMessageCommand struct {
	MessageID MessageID
	CallerID  UserID `validate:"required"`
	Content   string
}

type CreateConversationCommand struct {
	CallerID       UserID   `validate:"required"`
	ParticipantIDs []UserID `validate:"required,min=1,dive,required,max=128"`
	Name           *string  `validate:"omitempty,max=100"`
	IsGroup        bool
}

type UpdateConversationCommand struct {
	ConversationID ConversationID
	CallerID       UserID  `validate:"required"`
	Name           *string `validate:"omitempty,max=100"`
	IsMuted        *bool
}

type ListMessagesQuery struct {
	ConversationID ConversationID
	RequesterID    UserID `validate:"required"`
	Limit          int    `validate:"gte=0,lte=100"`
	// Before is the id of the oldest message already seen. Empty means start from the newest.
	Before string
}

type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type MarkReadCommand struct {
	ConversationID ConversationID
	UserID         UserID `validate:"required"`
	At             time.Time
}

type UpdateProfileCommand struct {
	UserID              UserID     `validate:"required"`
	DisplayName         string     `validate:"required,max=64"`
	AvatarURL           string     `validate:"omitempty,url"`
	AllowFriendRequests bool
	Visibility          Visibility `validate:"required,oneof=public friends private"`
}
