package services

import (
	"context"
	"dm-lab/contract"
	"dm-lab/domain/messaging"
	"dm-lab/errors"
	"dm-lab/moderation"
	"dm-lab/permission"
	"dm-lab/repositories"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

type IMessagingService interface {
	SendMessage(ctx context.Context, cmd messaging.SendMessageCommand) (messaging.Message, error)
	EditMessage(ctx context.Context, cmd messaging.EditMessageCommand) (messaging.Message, error)
	DeleteMessage(ctx context.Context, messageID messaging.MessageID, callerID messaging.UserID) (messaging.Message, error)
	ListMessages(ctx context.Context, query messaging.ListMessagesQuery) (messaging.MessagePage, error)
	SearchMessages(ctx context.Context, conversationID messaging.ConversationID, userID messaging.UserID, terms string, limit int) ([]messaging.Message, error)
	MarkRead(ctx context.Context, cmd messaging.MarkReadCommand) error

	CreateConversation(ctx context.Context, cmd messaging.CreateConversationCommand) (messaging.ConversationView, bool, error)
	GetConversation(ctx context.Context, conversationID messaging.ConversationID, userID messaging.UserID) (messaging.ConversationView, error)
	ListConversations(ctx context.Context, userID messaging.UserID) ([]messaging.ConversationView, error)
	UpdateConversation(ctx context.Context, cmd messaging.UpdateConversationCommand) (messaging.ConversationView, error)
	LeaveConversation(ctx context.Context, conversationID messaging.ConversationID, userID messaging.UserID) error
	AcceptConversation(ctx context.Context, conversationID messaging.ConversationID, userID messaging.UserID) error
	AddParticipant(ctx context.Context, conversationID messaging.ConversationID, callerID, userID messaging.UserID) (messaging.ConversationView, error)

	CanMessageUser(ctx context.Context, senderID, recipientID messaging.UserID) permission.Decision
	BlockUser(ctx context.Context, blockerID, blockedID messaging.UserID) error
	UnblockUser(ctx context.Context, blockerID, blockedID messaging.UserID) error
	UpdateProfile(ctx context.Context, cmd messaging.UpdateProfileCommand) (messaging.Profile, error)
	ListNotifications(ctx context.Context, userID messaging.UserID, limit int) ([]messaging.Notification, error)
}

var _ IMessagingService = (*MessagingService)(nil)

// Stores groups the persistence collaborators of the facade.
type Stores struct {
	Conversations repositories.IConversationRepository
	Messages      repositories.IMessageRepository
	Index         repositories.IMessageIndex
	Profiles      repositories.IProfileRepository
	Relationships repositories.IRelationshipRepository
	Notifications repositories.INotificationRepository
}

type Limits struct {
	MaxContentLength int
	DefaultPageSize  int
}

// MessagingService composes the gates and the stores.
// Every operation runs validate, then authorize, then moderate, then persist, and stops at the first failure.
type MessagingService struct {
	stores      Stores
	permissions *permission.Gate
	moderation  *moderation.Gate
	notifier    contract.Notifier
	limits      Limits
	log         *slog.Logger
}

func NewMessagingService(stores Stores, permissions *permission.Gate, moderationGate *moderation.Gate,
	notifier contract.Notifier, limits Limits, log *slog.Logger) *MessagingService {
	if limits.MaxContentLength <= 0 || limits.MaxContentLength > messaging.MaxContentLength {
		limits.MaxContentLength = messaging.MaxContentLength
	}
	if limits.DefaultPageSize <= 0 || limits.DefaultPageSize > repositories.MaxPageSize {
		limits.DefaultPageSize = repositories.DefaultPageSize
	}
	return &MessagingService{
		stores:      stores,
		permissions: permissions,
		moderation:  moderationGate,
		notifier:    notifier,
		limits:      limits,
		log:         log,
	}
}

func (s *MessagingService) SendMessage(ctx context.Context, cmd messaging.SendMessageCommand) (messaging.Message, error) {
	if err := validateStruct(cmd); err != nil {
		return messaging.Message{}, err
	}
	content := strings.TrimSpace(cmd.Content)
	if err := s.validateContent(content); err != nil {
		return messaging.Message{}, err
	}
	if !s.permissions.IsActiveParticipant(ctx, cmd.ConversationID, cmd.SenderID) {
		return messaging.Message{}, errors.ErrForbidden
	}
	if err := s.moderateContent(ctx, content); err != nil {
		return messaging.Message{}, err
	}

	msg, err := s.stores.Messages.Send(repositories.NewMessage{
		ConversationID: cmd.ConversationID,
		SenderID:       cmd.SenderID,
		Content:        content,
	})
	if err != nil {
		return messaging.Message{}, err
	}
	s.index(msg)
	return msg, nil
}

func (s *MessagingService) EditMessage(ctx context.Context, cmd messaging.EditMessageCommand) (messaging.Message, error) {
	if err := validateStruct(cmd); err != nil {
		return messaging.Message{}, err
	}
	content := strings.TrimSpace(cmd.Content)
	if err := s.validateContent(content); err != nil {
		return messaging.Message{}, err
	}
	current, err := s.stores.Messages.Get(cmd.MessageID)
	if err != nil {
		return messaging.Message{}, err
	}
	if current.IsDeleted() {
		return messaging.Message{}, errors.ErrNotFound
	}
	if current.SenderID != cmd.CallerID {
		return messaging.Message{}, errors.ErrForbidden
	}
	if err = s.moderateContent(ctx, content); err != nil {
		return messaging.Message{}, err
	}

	// The store re-checks ownership and deletion inside its transaction
	msg, err := s.stores.Messages.Edit(cmd.MessageID, cmd.CallerID, content)
	if err != nil {
		return messaging.Message{}, err
	}
	s.index(msg)
	return msg, nil
}

func (s *MessagingService) DeleteMessage(_ context.Context, messageID messaging.MessageID, callerID messaging.UserID) (messaging.Message, error) {
	msg, err := s.stores.Messages.SoftDelete(messageID, callerID)
	if err != nil {
		return messaging.Message{}, err
	}
	if err = s.stores.Index.Remove(messageID); err != nil {
		s.log.Error("Removing deleted message from index failed", "message_id", messageID, "error", err)
	}
	return msg, nil
}

func (s *MessagingService) ListMessages(_ context.Context, query messaging.ListMessagesQuery) (messaging.MessagePage, error) {
	if err := validateStruct(query); err != nil {
		return messaging.MessagePage{}, err
	}
	limit := query.Limit
	if limit == 0 {
		limit = s.limits.DefaultPageSize
	}
	messages, cursor, err := s.stores.Messages.List(query.ConversationID, query.RequesterID, limit, query.Before)
	if err != nil {
		return messaging.MessagePage{}, err
	}
	return messaging.MessagePage{Messages: messages, NextCursor: cursor}, nil
}

// SearchMessages returns matching live messages, best match first.
func (s *MessagingService) SearchMessages(ctx context.Context, conversationID messaging.ConversationID,
	userID messaging.UserID, terms string, limit int) ([]messaging.Message, error) {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return nil, errors.Validation("search terms must not be empty")
	}
	if !s.permissions.IsActiveParticipant(ctx, conversationID, userID) {
		return nil, errors.ErrForbidden
	}
	ids, err := s.stores.Index.Search(ctx, conversationID, terms, limit)
	if err != nil {
		return nil, err
	}
	messages := make([]messaging.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.stores.Messages.Get(id)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// The index may lag behind a delete
		if msg.IsDeleted() || msg.ConversationID != conversationID {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *MessagingService) MarkRead(_ context.Context, cmd messaging.MarkReadCommand) error {
	if err := validateStruct(cmd); err != nil {
		return err
	}
	return s.stores.Messages.MarkRead(cmd.ConversationID, cmd.UserID, cmd.At)
}

// CreateConversation returns the existing conversation with created=false when an active 1:1 already
// links both users.
func (s *MessagingService) CreateConversation(ctx context.Context, cmd messaging.CreateConversationCommand) (messaging.ConversationView, bool, error) {
	if err := validateStruct(cmd); err != nil {
		return messaging.ConversationView{}, false, err
	}
	ids := repositories.NormalizeParticipants(cmd.CallerID, cmd.ParticipantIDs)
	newConversation := repositories.NewConversation{
		ParticipantIDs: ids,
		IsGroup:        cmd.IsGroup,
		CreatedBy:      cmd.CallerID,
	}

	var pendingRecipient messaging.UserID
	if cmd.IsGroup {
		name := strings.TrimSpace(lo.FromPtr(cmd.Name))
		if name == "" {
			return messaging.ConversationView{}, false, errors.Validation("a group needs a name")
		}
		if err := s.moderateStrict(ctx, name); err != nil {
			return messaging.ConversationView{}, false, err
		}
		newConversation.Name = &name
	} else {
		if len(ids) != 2 {
			return messaging.ConversationView{}, false, errors.Validation("a direct conversation needs exactly one other participant")
		}
		recipientID := ids[1]
		if decision := s.permissions.CanMessage(ctx, cmd.CallerID, recipientID); !decision.CanMessage {
			return messaging.ConversationView{}, false, fmt.Errorf("%w: %s", errors.ErrForbidden, decision.Reason)
		}
		profile, err := s.stores.Profiles.Get(recipientID)
		if err != nil {
			return messaging.ConversationView{}, false, err
		}
		if profile.RequiresApproval() {
			newConversation.PendingUserIDs = []messaging.UserID{recipientID}
			pendingRecipient = recipientID
		}
	}

	conversation, created, err := s.stores.Conversations.Create(newConversation)
	if err != nil {
		return messaging.ConversationView{}, false, err
	}
	if created && pendingRecipient != "" {
		s.notifier.Notify(pendingRecipient, messaging.NotificationConversationRequest, map[string]string{
			"conversation_id": conversation.ID.String(),
			"requester_id":    cmd.CallerID,
		})
	}
	view, err := s.GetConversation(ctx, conversation.ID, cmd.CallerID)
	return view, created, err
}

// GetConversation hydrates the conversation with the active participants' profiles.
func (s *MessagingService) GetConversation(_ context.Context, conversationID messaging.ConversationID,
	userID messaging.UserID) (messaging.ConversationView, error) {
	conversation, err := s.stores.Conversations.Get(conversationID, userID)
	if err != nil {
		return messaging.ConversationView{}, err
	}
	self, err := s.stores.Conversations.Participant(conversationID, userID)
	if err != nil {
		return messaging.ConversationView{}, err
	}
	view := messaging.ConversationView{
		Conversation: conversation,
		IsMuted:      self.IsMuted,
		Status:       self.Status,
	}
	if view.LastMessage, err = s.stores.Messages.Latest(conversationID); err != nil {
		return messaging.ConversationView{}, err
	}
	if view.UnreadCount, err = s.stores.Messages.CountUnread(conversationID, userID, self.LastReadAt); err != nil {
		return messaging.ConversationView{}, err
	}
	if err = s.hydrate(&view); err != nil {
		return messaging.ConversationView{}, err
	}
	return view, nil
}

func (s *MessagingService) ListConversations(_ context.Context, userID messaging.UserID) ([]messaging.ConversationView, error) {
	views, err := s.stores.Conversations.ListForUser(userID)
	if err != nil {
		return nil, err
	}
	for i := range views {
		if err = s.hydrate(&views[i]); err != nil {
			return nil, err
		}
	}
	return views, nil
}

func (s *MessagingService) hydrate(view *messaging.ConversationView) error {
	participants, err := s.stores.Conversations.Participants(view.ID)
	if err != nil {
		return err
	}
	active := lo.Filter(participants, func(p messaging.Participant, _ int) bool { return p.IsActive() })
	profiles, err := s.stores.Profiles.GetMany(lo.Map(active, func(p messaging.Participant, _ int) messaging.UserID {
		return p.UserID
	}))
	if err != nil {
		return err
	}
	view.Participants = lo.Map(active, func(p messaging.Participant, _ int) messaging.ParticipantView {
		profile := profiles[p.UserID]
		return messaging.ParticipantView{Participant: p, DisplayName: profile.DisplayName, AvatarURL: profile.AvatarURL}
	})
	return nil
}

// UpdateConversation renames a group (admins only, fail-closed moderation) and/or changes the caller's mute flag.
func (s *MessagingService) UpdateConversation(ctx context.Context, cmd messaging.UpdateConversationCommand) (messaging.ConversationView, error) {
	if err := validateStruct(cmd); err != nil {
		return messaging.ConversationView{}, err
	}
	if cmd.Name == nil && cmd.IsMuted == nil {
		return messaging.ConversationView{}, errors.Validation("nothing to update")
	}
	if !s.permissions.IsActiveParticipant(ctx, cmd.ConversationID, cmd.CallerID) {
		return messaging.ConversationView{}, errors.ErrNotFound
	}
	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return messaging.ConversationView{}, errors.Validation("a group needs a name")
		}
		if !s.permissions.IsGroupAdmin(ctx, cmd.ConversationID, cmd.CallerID) {
			return messaging.ConversationView{}, errors.ErrForbidden
		}
		if err := s.moderateStrict(ctx, name); err != nil {
			return messaging.ConversationView{}, err
		}
		if _, err := s.stores.Conversations.UpdateName(cmd.ConversationID, cmd.CallerID, name); err != nil {
			return messaging.ConversationView{}, err
		}
	}
	if cmd.IsMuted != nil {
		if err := s.stores.Conversations.SetMuted(cmd.ConversationID, cmd.CallerID, *cmd.IsMuted); err != nil {
			return messaging.ConversationView{}, err
		}
	}
	return s.GetConversation(ctx, cmd.ConversationID, cmd.CallerID)
}

func (s *MessagingService) LeaveConversation(_ context.Context, conversationID messaging.ConversationID, userID messaging.UserID) error {
	return s.stores.Conversations.Leave(conversationID, userID)
}

func (s *MessagingService) AcceptConversation(_ context.Context, conversationID messaging.ConversationID, userID messaging.UserID) error {
	return s.stores.Conversations.Accept(conversationID, userID)
}

// AddParticipant refuses users blocked by or blocking the admin.
func (s *MessagingService) AddParticipant(ctx context.Context, conversationID messaging.ConversationID,
	callerID, userID messaging.UserID) (messaging.ConversationView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return messaging.ConversationView{}, errors.Validation("user id must not be empty")
	}
	if !s.permissions.IsGroupAdmin(ctx, conversationID, callerID) {
		return messaging.ConversationView{}, errors.ErrForbidden
	}
	if decision := s.permissions.CanMessage(ctx, callerID, userID); !decision.CanMessage {
		return messaging.ConversationView{}, fmt.Errorf("%w: %s", errors.ErrForbidden, decision.Reason)
	}
	if _, err := s.stores.Conversations.AddParticipant(conversationID, callerID, userID); err != nil {
		return messaging.ConversationView{}, err
	}
	return s.GetConversation(ctx, conversationID, callerID)
}

func (s *MessagingService) CanMessageUser(ctx context.Context, senderID, recipientID messaging.UserID) permission.Decision {
	return s.permissions.CanMessage(ctx, senderID, recipientID)
}

func (s *MessagingService) BlockUser(_ context.Context, blockerID, blockedID messaging.UserID) error {
	if strings.TrimSpace(blockedID) == "" {
		return errors.Validation("user id must not be empty")
	}
	return s.stores.Relationships.Block(blockerID, blockedID)
}

func (s *MessagingService) UnblockUser(_ context.Context, blockerID, blockedID messaging.UserID) error {
	return s.stores.Relationships.Unblock(blockerID, blockedID)
}

// UpdateProfile moderates the display name fail-closed.
func (s *MessagingService) UpdateProfile(ctx context.Context, cmd messaging.UpdateProfileCommand) (messaging.Profile, error) {
	cmd.DisplayName = strings.TrimSpace(cmd.DisplayName)
	if err := validateStruct(cmd); err != nil {
		return messaging.Profile{}, err
	}
	if err := s.moderateStrict(ctx, cmd.DisplayName); err != nil {
		return messaging.Profile{}, err
	}
	profile := messaging.Profile{
		UserID:              cmd.UserID,
		DisplayName:         cmd.DisplayName,
		AvatarURL:           cmd.AvatarURL,
		AllowFriendRequests: cmd.AllowFriendRequests,
		Visibility:          cmd.Visibility,
	}
	if err := s.stores.Profiles.Save(profile); err != nil {
		return messaging.Profile{}, err
	}
	return profile, nil
}

func (s *MessagingService) ListNotifications(_ context.Context, userID messaging.UserID, limit int) ([]messaging.Notification, error) {
	return s.stores.Notifications.List(userID, limit)
}

func (s *MessagingService) validateContent(content string) error {
	if content == "" {
		return errors.Validation("content must not be empty")
	}
	if n := utf8.RuneCountInString(content); n > s.limits.MaxContentLength {
		return errors.Validation("content is %d characters long, maximum is %d", n, s.limits.MaxContentLength)
	}
	return nil
}

// moderateContent applies the fail-open policy of message content.
func (s *MessagingService) moderateContent(ctx context.Context, content string) error {
	result := s.moderation.Moderate(ctx, content, true)
	if !result.Approved {
		return &errors.ContentRejectedError{Reason: result.Reason, Categories: result.Categories}
	}
	return nil
}

// moderateStrict applies the fail-closed policy: an unavailable classifier fails the call.
func (s *MessagingService) moderateStrict(ctx context.Context, text string) error {
	result := s.moderation.Moderate(ctx, text, false)
	switch {
	case result.Degraded && !result.Approved:
		return errors.ErrServiceUnavailable
	case !result.Approved:
		return &errors.ContentRejectedError{Reason: result.Reason, Categories: result.Categories}
	}
	return nil
}

func (s *MessagingService) index(msg messaging.Message) {
	if err := s.stores.Index.Index(msg); err != nil {
		s.log.Error("Indexing message failed", "message_id", msg.ID, "error", err)
	}
}
