package repositories

import (
	"bytes"
	"dm-lab/domain/messaging"
	"dm-lab/errors"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type IMessageRepository interface {
	Send(message NewMessage) (messaging.Message, error)
	List(conversationID messaging.ConversationID, requesterID messaging.UserID, limit int, before string) ([]messaging.Message, string, error)
	Get(messageID messaging.MessageID) (messaging.Message, error)
	Edit(messageID messaging.MessageID, callerID messaging.UserID, content string) (messaging.Message, error)
	SoftDelete(messageID messaging.MessageID, callerID messaging.UserID) (messaging.Message, error)
	MarkRead(conversationID messaging.ConversationID, userID messaging.UserID, at time.Time) error
	Latest(conversationID messaging.ConversationID) (*messaging.Message, error)
	CountUnread(conversationID messaging.ConversationID, userID messaging.UserID, since *time.Time) (int, error)
}

type NewMessage struct {
	ConversationID messaging.ConversationID
	SenderID       messaging.UserID
	Content        string
}

type MessageRepository struct {
	db    *badger.DB
	log   *slog.Logger
	now   func() time.Time
	locks *conversationLocks
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log, now: utcNow, locks: &conversationLocks{}}
}

func utcNow() time.Time { return time.Now().UTC() }

// Send persists a message for an active participant and bumps the conversation's UpdatedAt.
// The sequence counter, the participant check and the insert share one transaction, so two
// concurrent sends never get the same sequence and a participant who just left cannot post.
// Sends to one conversation are serialized, other conversations proceed in parallel.
func (m *MessageRepository) Send(message NewMessage) (messaging.Message, error) {
	if err := ValidateContent(message.Content); err != nil {
		return messaging.Message{}, err
	}
	defer m.locks.lock(message.ConversationID)()
	var stored messaging.Message
	err := update(m.db, func(txn *badger.Txn) error {
		if _, err := activeParticipant(txn, message.ConversationID, message.SenderID); err != nil {
			return err
		}
		conversation, err := getConversation(txn, message.ConversationID)
		if err != nil {
			return err
		}
		seq, err := nextSequence(txn, message.ConversationID)
		if err != nil {
			return err
		}
		now := m.now()
		stored = messaging.Message{
			ID:             uuid.New(),
			ConversationID: message.ConversationID,
			SenderID:       message.SenderID,
			Content:        message.Content,
			Seq:            seq,
			CreatedAt:      now,
		}
		key := messageKey(message.ConversationID, seq)
		if err = setJSON(txn, key, stored); err != nil {
			return err
		}
		if err = txn.Set(messageRefKey(stored.ID), key); err != nil {
			return err
		}
		conversation.UpdatedAt = now
		return setJSON(txn, conversationKey(conversation.ID), conversation)
	})
	if err != nil {
		return messaging.Message{}, err
	}
	m.log.Debug("Message stored", "conversation_id", stored.ConversationID, "seq", stored.Seq)
	return stored, nil
}

func nextSequence(txn *badger.Txn, id messaging.ConversationID) (uint64, error) {
	var seq uint64
	item, err := txn.Get(sequenceKey(id))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		if err = item.Value(func(val []byte) error {
			seq = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return 0, err
		}
	}
	seq++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return seq, txn.Set(sequenceKey(id), buf)
}

// List returns at most limit messages, newest first, older than the message identified by before.
// The returned cursor is the id of the oldest message of the page, or empty when the history is exhausted.
func (m *MessageRepository) List(conversationID messaging.ConversationID, requesterID messaging.UserID,
	limit int, before string) ([]messaging.Message, string, error) {
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	var messages []messaging.Message
	err := m.db.View(func(txn *badger.Txn) error {
		if _, err := activeParticipant(txn, conversationID, requesterID); err != nil {
			return err
		}
		prefix := messagesPrefix(conversationID)
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		if before != "" {
			cursorKey, err := m.resolveCursor(txn, conversationID, before)
			if err != nil {
				return err
			}
			seekKey = cursorKey
		}

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek(seekKey)
		if before != "" && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}
		for ; it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			msg, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			messages = append(messages, msg.Redacted())
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	var cursor string
	if len(messages) == limit {
		cursor = messages[len(messages)-1].ID.String()
	}
	return messages, cursor, nil
}

func (m *MessageRepository) resolveCursor(txn *badger.Txn, conversationID messaging.ConversationID, before string) ([]byte, error) {
	id, err := uuid.Parse(before)
	if err != nil {
		return nil, errors.Validation("invalid cursor %q", before)
	}
	key, err := getMessageRef(txn, id)
	if err != nil || !bytes.HasPrefix(key, messagesPrefix(conversationID)) {
		return nil, errors.Validation("invalid cursor %q", before)
	}
	return key, nil
}

// Get returns the message as it may be shown: deleted content is tombstoned.
func (m *MessageRepository) Get(messageID messaging.MessageID) (messaging.Message, error) {
	var msg messaging.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		msg, _, err = loadMessage(txn, messageID)
		return err
	})
	return msg.Redacted(), err
}

// Edit replaces the content of a live message owned by the caller.
func (m *MessageRepository) Edit(messageID messaging.MessageID, callerID messaging.UserID, content string) (messaging.Message, error) {
	if err := ValidateContent(content); err != nil {
		return messaging.Message{}, err
	}
	return m.mutateOwn(messageID, callerID, func(msg *messaging.Message, now time.Time) {
		msg.Content = content
		msg.EditedAt = &now
	})
}

// SoftDelete tombstones a live message owned by the caller. The row is kept.
func (m *MessageRepository) SoftDelete(messageID messaging.MessageID, callerID messaging.UserID) (messaging.Message, error) {
	msg, err := m.mutateOwn(messageID, callerID, func(msg *messaging.Message, now time.Time) {
		msg.DeletedAt = &now
	})
	return msg.Redacted(), err
}

// mutateOwn applies fn to a message inside one transaction. Deleted messages are reported as
// not found, so whichever of a concurrent edit and delete commits second observes the first.
func (m *MessageRepository) mutateOwn(messageID messaging.MessageID, callerID messaging.UserID,
	fn func(msg *messaging.Message, now time.Time)) (messaging.Message, error) {
	var result messaging.Message
	err := update(m.db, func(txn *badger.Txn) error {
		msg, key, err := loadMessage(txn, messageID)
		if err != nil {
			return err
		}
		if msg.IsDeleted() {
			return errors.ErrNotFound
		}
		if msg.SenderID != callerID {
			return errors.ErrForbidden
		}
		if _, err = activeParticipant(txn, msg.ConversationID, callerID); err != nil {
			return err
		}
		fn(&msg, m.now())
		result = msg
		return setJSON(txn, key, msg)
	})
	if err != nil {
		return messaging.Message{}, err
	}
	return result, nil
}

// MarkRead moves the participant's read marker forward. A zero at means now, and a future at is
// clamped to now so the marker cannot hide messages that are not sent yet.
func (m *MessageRepository) MarkRead(conversationID messaging.ConversationID, userID messaging.UserID, at time.Time) error {
	now := m.now()
	if at.IsZero() || at.After(now) {
		at = now
	}
	at = at.UTC()
	defer m.locks.lock(conversationID)()
	return update(m.db, func(txn *badger.Txn) error {
		p, err := activeParticipant(txn, conversationID, userID)
		if err != nil {
			return err
		}
		if p.LastReadAt != nil && !at.After(*p.LastReadAt) {
			return nil
		}
		p.LastReadAt = &at
		return setJSON(txn, participantKey(conversationID, userID), p)
	})
}

// Latest returns the newest message of a conversation, tombstoned if deleted, or nil when empty.
func (m *MessageRepository) Latest(conversationID messaging.ConversationID) (*messaging.Message, error) {
	var latest *messaging.Message
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := messagesPrefix(conversationID)
		it.Seek(append(append([]byte{}, prefix...), 0xFF))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		msg, err := decodeMessage(it.Item())
		if err != nil {
			return err
		}
		msg = msg.Redacted()
		latest = &msg
		return nil
	})
	return latest, err
}

// CountUnread counts live messages from other participants created after since.
// A nil since counts the whole history.
func (m *MessageRepository) CountUnread(conversationID messaging.ConversationID, userID messaging.UserID, since *time.Time) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := messagesPrefix(conversationID)
		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			msg, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			if since != nil && !msg.CreatedAt.After(*since) {
				break
			}
			if msg.SenderID != userID && !msg.IsDeleted() {
				count++
			}
		}
		return nil
	})
	return count, err
}

// ValidateContent enforces the content bounds on already trimmed text.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.Validation("content must not be empty")
	}
	if n := utf8.RuneCountInString(content); n > messaging.MaxContentLength {
		return errors.Validation("content is %d characters long, maximum is %d", n, messaging.MaxContentLength)
	}
	return nil
}

func getMessageRef(txn *badger.Txn, id messaging.MessageID) ([]byte, error) {
	item, err := txn.Get(messageRefKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func loadMessage(txn *badger.Txn, id messaging.MessageID) (messaging.Message, []byte, error) {
	key, err := getMessageRef(txn, id)
	if err != nil {
		return messaging.Message{}, nil, err
	}
	var msg messaging.Message
	if err = getJSON(txn, key, &msg); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return msg, nil, errors.ErrNotFound
		}
		return msg, nil, err
	}
	return msg, key, nil
}

func decodeMessage(item *badger.Item) (messaging.Message, error) {
	var msg messaging.Message
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &msg)
	})
	return msg, err
}
