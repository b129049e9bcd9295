package repositories

import (
	"dm-lab/domain/messaging"
	"dm-lab/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	directParticipants   = 2
	minGroupParticipants = 3
)

type IConversationRepository interface {
	Create(conversation NewConversation) (messaging.Conversation, bool, error)
	Get(conversationID messaging.ConversationID, requesterID messaging.UserID) (messaging.Conversation, error)
	Participant(conversationID messaging.ConversationID, userID messaging.UserID) (messaging.Participant, error)
	Participants(conversationID messaging.ConversationID) ([]messaging.Participant, error)
	ListForUser(userID messaging.UserID) ([]messaging.ConversationView, error)
	Leave(conversationID messaging.ConversationID, userID messaging.UserID) error
	SetMuted(conversationID messaging.ConversationID, userID messaging.UserID, muted bool) error
	UpdateName(conversationID messaging.ConversationID, callerID messaging.UserID, name string) (messaging.Conversation, error)
	AddParticipant(conversationID messaging.ConversationID, callerID, userID messaging.UserID) (messaging.Participant, error)
	Accept(conversationID messaging.ConversationID, userID messaging.UserID) error
}

type NewConversation struct {
	ParticipantIDs []messaging.UserID
	Name           *string
	IsGroup        bool
	CreatedBy      messaging.UserID
	// PendingUserIDs must accept the invite before the conversation counts as accepted for them.
	PendingUserIDs []messaging.UserID
}

type ConversationRepository struct {
	db       *badger.DB
	log      *slog.Logger
	messages IMessageRepository
	now      func() time.Time
}

func NewConversationRepository(db *badger.DB, log *slog.Logger, messages IMessageRepository) *ConversationRepository {
	return &ConversationRepository{db: db, log: log, messages: messages, now: utcNow}
}

// NormalizeParticipants dedupes ids, drops blanks and always includes the creator.
func NormalizeParticipants(createdBy messaging.UserID, ids []messaging.UserID) []messaging.UserID {
	ids = lo.Map(ids, func(id messaging.UserID, _ int) messaging.UserID { return strings.TrimSpace(id) })
	ids = lo.Filter(ids, func(id messaging.UserID, _ int) bool { return id != "" })
	return lo.Uniq(append([]messaging.UserID{createdBy}, ids...))
}

// Create inserts a conversation and its participants. For a 1:1 conversation the pair index is read
// and written in the same transaction: when an active conversation already links both users it is
// returned with created=false. Concurrent creators conflict on the pair key, and the replayed
// transaction finds the winner's conversation.
func (c *ConversationRepository) Create(conversation NewConversation) (messaging.Conversation, bool, error) {
	ids := NormalizeParticipants(conversation.CreatedBy, conversation.ParticipantIDs)
	var name *string
	if conversation.IsGroup {
		if len(ids) < minGroupParticipants {
			return messaging.Conversation{}, false, errors.Validation(
				"a group needs at least %d distinct participants, got %d", minGroupParticipants, len(ids))
		}
		if conversation.Name == nil || strings.TrimSpace(*conversation.Name) == "" {
			return messaging.Conversation{}, false, errors.Validation("a group needs a name")
		}
		name = lo.ToPtr(strings.TrimSpace(*conversation.Name))
	} else if len(ids) != directParticipants {
		return messaging.Conversation{}, false, errors.Validation(
			"a direct conversation needs exactly %d distinct participants, got %d", directParticipants, len(ids))
	}

	var result messaging.Conversation
	var created bool
	err := update(c.db, func(txn *badger.Txn) error {
		created = false
		if !conversation.IsGroup {
			existing, found, err := c.findActivePair(txn, ids[0], ids[1])
			if err != nil {
				return err
			}
			if found {
				result = existing
				return nil
			}
		}

		now := c.now()
		result = messaging.Conversation{
			ID:        uuid.New(),
			IsGroup:   conversation.IsGroup,
			Name:      name,
			CreatedBy: conversation.CreatedBy,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := setJSON(txn, conversationKey(result.ID), result); err != nil {
			return err
		}
		for _, userID := range ids {
			role := messaging.RoleMember
			if conversation.IsGroup && userID == conversation.CreatedBy {
				role = messaging.RoleAdmin
			}
			status := messaging.StatusAccepted
			if lo.Contains(conversation.PendingUserIDs, userID) {
				status = messaging.StatusPending
			}
			if err := putParticipant(txn, messaging.Participant{
				ConversationID: result.ID,
				UserID:         userID,
				Role:           role,
				Status:         status,
				JoinedAt:       now,
			}); err != nil {
				return err
			}
		}
		if !conversation.IsGroup {
			if err := txn.Set(directPairKey(ids[0], ids[1]), []byte(result.ID.String())); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return messaging.Conversation{}, false, err
	}
	if created {
		c.log.Info("Conversation created", "conversation_id", result.ID, "is_group", result.IsGroup, "participants", len(ids))
	}
	return result, created, nil
}

// findActivePair resolves the pair index. An index pointing at a conversation one of the users
// has left is stale and ignored.
func (c *ConversationRepository) findActivePair(txn *badger.Txn, a, b messaging.UserID) (messaging.Conversation, bool, error) {
	item, err := txn.Get(directPairKey(a, b))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return messaging.Conversation{}, false, nil
	}
	if err != nil {
		return messaging.Conversation{}, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return messaging.Conversation{}, false, err
	}
	id, err := uuid.ParseBytes(raw)
	if err != nil {
		return messaging.Conversation{}, false, fmt.Errorf("corrupted pair index %s: %w", raw, err)
	}
	for _, userID := range []messaging.UserID{a, b} {
		if _, err = activeParticipant(txn, id, userID); errors.Is(err, errors.ErrForbidden) {
			return messaging.Conversation{}, false, nil
		} else if err != nil {
			return messaging.Conversation{}, false, err
		}
	}
	conversation, err := getConversation(txn, id)
	if err != nil {
		return messaging.Conversation{}, false, err
	}
	return conversation, true, nil
}

func putParticipant(txn *badger.Txn, p messaging.Participant) error {
	if err := setJSON(txn, participantKey(p.ConversationID, p.UserID), p); err != nil {
		return err
	}
	return txn.Set(membershipKey(p.UserID, p.ConversationID), nil)
}

// Get returns errors.ErrNotFound both when the conversation is missing and when the requester is
// not an active participant, so existence does not leak.
func (c *ConversationRepository) Get(conversationID messaging.ConversationID, requesterID messaging.UserID) (messaging.Conversation, error) {
	var conversation messaging.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		if _, err := activeParticipant(txn, conversationID, requesterID); err != nil {
			return errors.ErrNotFound
		}
		var err error
		conversation, err = getConversation(txn, conversationID)
		return err
	})
	return conversation, err
}

func (c *ConversationRepository) Participant(conversationID messaging.ConversationID, userID messaging.UserID) (messaging.Participant, error) {
	var p messaging.Participant
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = getParticipant(txn, conversationID, userID)
		return err
	})
	return p, err
}

// Participants returns every row of the conversation, including users who left.
func (c *ConversationRepository) Participants(conversationID messaging.ConversationID) ([]messaging.Participant, error) {
	var participants []messaging.Participant
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := participantsPrefix(conversationID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p messaging.Participant
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			participants = append(participants, p)
		}
		return nil
	})
	return participants, err
}

// ListForUser returns the user's active conversations, most recently updated first, each
// annotated with its last message and the user's unread count.
func (c *ConversationRepository) ListForUser(userID messaging.UserID) ([]messaging.ConversationView, error) {
	var views []messaging.ConversationView
	var readMarkers []*time.Time
	err := c.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := membershipsPrefix(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, ok := parseTrailingUUID(it.Item().Key(), prefix)
			if !ok {
				continue
			}
			p, err := getParticipant(txn, id, userID)
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if !p.IsActive() {
				continue
			}
			conversation, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			views = append(views, messaging.ConversationView{
				Conversation: conversation,
				IsMuted:      p.IsMuted,
				Status:       p.Status,
			})
			readMarkers = append(readMarkers, p.LastReadAt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range views {
		if views[i].LastMessage, err = c.messages.Latest(views[i].ID); err != nil {
			return nil, err
		}
		if views[i].UnreadCount, err = c.messages.CountUnread(views[i].ID, userID, readMarkers[i]); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].UpdatedAt.After(views[j].UpdatedAt)
	})
	return views, nil
}

// Leave marks the caller's row as left. Leaving twice is a no-op. The conversation and the other
// rows are untouched even when nobody remains.
func (c *ConversationRepository) Leave(conversationID messaging.ConversationID, userID messaging.UserID) error {
	left := false
	err := update(c.db, func(txn *badger.Txn) error {
		left = false
		p, err := getParticipant(txn, conversationID, userID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return nil
		}
		now := c.now()
		p.LeftAt = &now
		if err = setJSON(txn, participantKey(conversationID, userID), p); err != nil {
			return err
		}
		left = true
		return nil
	})
	if err == nil && left {
		c.log.Info("Participant left", "conversation_id", conversationID, "user_id", userID)
	}
	return err
}

func (c *ConversationRepository) SetMuted(conversationID messaging.ConversationID, userID messaging.UserID, muted bool) error {
	return update(c.db, func(txn *badger.Txn) error {
		p, err := activeParticipant(txn, conversationID, userID)
		if err != nil {
			return err
		}
		p.IsMuted = muted
		return setJSON(txn, participantKey(conversationID, userID), p)
	})
}

// UpdateName renames a group. Only an active admin may do it.
func (c *ConversationRepository) UpdateName(conversationID messaging.ConversationID, callerID messaging.UserID, name string) (messaging.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return messaging.Conversation{}, errors.Validation("a group needs a name")
	}
	var conversation messaging.Conversation
	err := update(c.db, func(txn *badger.Txn) error {
		var err error
		if conversation, err = c.requireGroupAdmin(txn, conversationID, callerID); err != nil {
			return err
		}
		conversation.Name = &name
		conversation.UpdatedAt = c.now()
		return setJSON(txn, conversationKey(conversationID), conversation)
	})
	return conversation, err
}

// AddParticipant lets a group admin add a user. A user who left earlier is re-activated on the same row.
func (c *ConversationRepository) AddParticipant(conversationID messaging.ConversationID, callerID, userID messaging.UserID) (messaging.Participant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return messaging.Participant{}, errors.Validation("user id must not be empty")
	}
	var added messaging.Participant
	err := update(c.db, func(txn *badger.Txn) error {
		if _, err := c.requireGroupAdmin(txn, conversationID, callerID); err != nil {
			return err
		}
		existing, err := getParticipant(txn, conversationID, userID)
		switch {
		case err == nil && existing.IsActive():
			added = existing
			return nil
		case err != nil && !errors.Is(err, errors.ErrNotFound):
			return err
		}
		added = messaging.Participant{
			ConversationID: conversationID,
			UserID:         userID,
			Role:           messaging.RoleMember,
			Status:         messaging.StatusAccepted,
			JoinedAt:       c.now(),
		}
		return putParticipant(txn, added)
	})
	return added, err
}

// Accept turns the caller's pending invite into an accepted membership.
func (c *ConversationRepository) Accept(conversationID messaging.ConversationID, userID messaging.UserID) error {
	return update(c.db, func(txn *badger.Txn) error {
		p, err := activeParticipant(txn, conversationID, userID)
		if err != nil {
			return err
		}
		if p.Status == messaging.StatusAccepted {
			return nil
		}
		p.Status = messaging.StatusAccepted
		return setJSON(txn, participantKey(conversationID, userID), p)
	})
}

func (c *ConversationRepository) requireGroupAdmin(txn *badger.Txn, conversationID messaging.ConversationID,
	callerID messaging.UserID) (messaging.Conversation, error) {
	p, err := activeParticipant(txn, conversationID, callerID)
	if err != nil {
		return messaging.Conversation{}, err
	}
	conversation, err := getConversation(txn, conversationID)
	if err != nil {
		return messaging.Conversation{}, err
	}
	if !conversation.IsGroup || p.Role != messaging.RoleAdmin {
		return messaging.Conversation{}, errors.ErrForbidden
	}
	return conversation, nil
}
