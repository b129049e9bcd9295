package server

import (
	"dm-lab/auth"
	"dm-lab/domain/messaging"
	"dm-lab/errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	Name           *string  `json:"name"`
	IsGroup        bool     `json:"is_group"`
}

type updateConversationRequest struct {
	Name    *string `json:"name"`
	IsMuted *bool   `json:"is_muted"`
}

type contentRequest struct {
	Content string `json:"content"`
}

type markReadRequest struct {
	At *time.Time `json:"at"`
}

type addParticipantRequest struct {
	UserID string `json:"user_id"`
}

type updateProfileRequest struct {
	DisplayName         string               `json:"display_name"`
	AvatarURL           string               `json:"avatar_url"`
	AllowFriendRequests bool                 `json:"allow_friend_requests"`
	Visibility          messaging.Visibility `json:"profile_visibility"`
}

// fail writes the status and the caller-safe message of err.
func (s *Server) fail(c *gin.Context, err error) {
	status, message := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "route", c.FullPath(), "error", err)
	}
	body := gin.H{"error": message}
	var rejected *errors.ContentRejectedError
	if errors.As(err, &rejected) {
		body["reason"] = rejected.Reason
		body["categories"] = rejected.Categories
	}
	c.AbortWithStatusJSON(status, body)
}

func pathID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errors.Validation("invalid id %q", c.Param("id"))
	}
	return id, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Validation("%s must be a number", name)
	}
	return n, nil
}

func bind(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return errors.Validation("invalid request body")
	}
	return nil
}

func (s *Server) handleListConversations(c *gin.Context) {
	views, err := s.service.ListConversations(c.Request.Context(), auth.CallerID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

func (s *Server) handleCreateConversation(c *gin.Context) {
	var body createConversationRequest
	if err := bind(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	view, created, err := s.service.CreateConversation(c.Request.Context(), messaging.CreateConversationCommand{
		CallerID:       auth.CallerID(c),
		ParticipantIDs: body.ParticipantIDs,
		Name:           body.Name,
		IsGroup:        body.IsGroup,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, view)
}

func (s *Server) handleGetConversation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	view, err := s.service.GetConversation(c.Request.Context(), id, auth.CallerID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleUpdateConversation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var body updateConversationRequest
	if err = bind(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	view, err := s.service.UpdateConversation(c.Request.Context(), messaging.UpdateConversationCommand{
		ConversationID: id,
		CallerID:       auth.CallerID(c),
		Name:           body.Name,
		IsMuted:        body.IsMuted,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleLeaveConversation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err = s.service.LeaveConversation(c.Request.Context(), id, auth.CallerID(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAcceptConversation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err = s.service.AcceptConversation(c.Request.Context(), id, auth.CallerID(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleMarkRead accepts an empty body, meaning "read up to now".
func (s *Server) handleMarkRead(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var body markReadRequest
	if c.Request.ContentLength > 0 {
		if err = bind(c, &body); err != nil {
			s.fail(c, err)
			return
		}
	}
	cmd := messaging.MarkReadCommand{ConversationID: id, UserID: auth.CallerID(c)}
	if body.At != nil {
		cmd.At = *body.At
	}
	if err = s.service.MarkRead(c.Request.Context(), cmd); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAddParticipant(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var body addParticipantRequest
	if err = bind(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	view, err := s.service.AddParticipant(c.Request.Context(), id, auth.CallerID(c), body.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleListMessages(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err)
		return
	}
	page, err := s.service.ListMessages(c.Request.Context(), messaging.ListMessagesQuery{
		ConversationID: id,
		RequesterID:    auth.CallerID(c),
		Limit:          limit,
		Before:         c.Query("before"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleSendMessage(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var body contentRequest
	if err = bind(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	msg, err := s.service.SendMessage(c.Request.Context(), messaging.SendMessageCommand{
		ConversationID: id,
		SenderID:       auth.CallerID(c),
		Content:        body.Content,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleSearchMessages(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err)
		return
	}
	messages, err := s.service.SearchMessages(c.Request.Context(), id, auth.CallerID(c), c.Query("q"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) handleEditMessage(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var body contentRequest
	if err = bind(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	msg, err := s.service.EditMessage(c.Request.Context(), messaging.EditMessageCommand{
		MessageID: id,
		CallerID:  auth.CallerID(c),
		Content:   body.Content,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) handleDeleteMessage(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	msg, err := s.service.DeleteMessage(c.Request.Context(), id, auth.CallerID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) handleCanMessage(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.CanMessageUser(c.Request.Context(), auth.CallerID(c), c.Param("id")))
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var body updateProfileRequest
	if err := bind(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	profile, err := s.service.UpdateProfile(c.Request.Context(), messaging.UpdateProfileCommand{
		UserID:              auth.CallerID(c),
		DisplayName:         body.DisplayName,
		AvatarURL:           body.AvatarURL,
		AllowFriendRequests: body.AllowFriendRequests,
		Visibility:          body.Visibility,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleBlock(c *gin.Context) {
	if err := s.service.BlockUser(c.Request.Context(), auth.CallerID(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnblock(c *gin.Context) {
	if err := s.service.UnblockUser(c.Request.Context(), auth.CallerID(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListNotifications(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err)
		return
	}
	notifications, err := s.service.ListNotifications(c.Request.Context(), auth.CallerID(c), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}
