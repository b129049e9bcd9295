package messaging

import "time"

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityFriends Visibility = "friends"
	VisibilityPrivate Visibility = "private"
)

type Profile struct {
	UserID              UserID     `json:"user_id"`
	DisplayName         string     `json:"display_name"`
	AvatarURL           string     `json:"avatar_url,omitempty"`
	AllowFriendRequests bool       `json:"allow_friend_requests"`
	Visibility          Visibility `json:"profile_visibility"`
}

// DefaultProfile is used for users the profile directory does not know yet.
func DefaultProfile(userID UserID) Profile {
	return Profile{
		UserID:              userID,
		DisplayName:         userID,
		AllowFriendRequests: true,
		Visibility:          VisibilityPublic,
	}
}

// RequiresApproval reports whether a direct conversation opened towards this user must be accepted first.
func (p Profile) RequiresApproval() bool {
	return p.Visibility != VisibilityPublic || !p.AllowFriendRequests
}

type NotificationType string

const NotificationConversationRequest NotificationType = "conversation_request"

type Notification struct {
	ID        string            `json:"id"`
	UserID    UserID            `json:"user_id"`
	Type      NotificationType  `json:"type"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
