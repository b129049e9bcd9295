package repositories

import (
	"dm-lab/domain/messaging"
	"dm-lab/errors"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// maxTxnRetries bounds how many times a read-write transaction is replayed after badger reports
// a conflicting commit. Every replay re-reads the keys it depends on.
const (
	maxTxnRetries  = 8
	retryBaseDelay = time.Millisecond
	lockStripes    = 64
)

// Key layout. User ids are opaque strings, so they are always the last segment of a key or
// separated by a NUL byte.
const (
	conversationPrefix = "conv:"
	participantPrefix  = "part:"
	membershipPrefix   = "member:"
	directPairPrefix   = "dmpair:"
	messagePrefix      = "msg:"
	messageRefPrefix   = "msgid:"
	sequencePrefix     = "seq:"
	profilePrefix      = "profile:"
	blockPrefix        = "block:"
	notificationPrefix = "notif:"
)

func conversationKey(id messaging.ConversationID) []byte {
	return []byte(conversationPrefix + id.String())
}

func participantKey(id messaging.ConversationID, userID messaging.UserID) []byte {
	return []byte(participantPrefix + id.String() + ":" + userID)
}

func participantsPrefix(id messaging.ConversationID) []byte {
	return []byte(participantPrefix + id.String() + ":")
}

func membershipKey(userID messaging.UserID, id messaging.ConversationID) []byte {
	return []byte(membershipPrefix + userID + "\x00" + id.String())
}

func membershipsPrefix(userID messaging.UserID) []byte {
	return []byte(membershipPrefix + userID + "\x00")
}

// directPairKey is independent of argument order so both users resolve the same 1:1 conversation.
func directPairKey(a, b messaging.UserID) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(directPairPrefix + a + "\x00" + b)
}

// messageKey is formatted as "msg:{conversation}:{seq_padded}" so that a prefix scan returns
// messages in store order. 20 digits hold any uint64.
func messageKey(id messaging.ConversationID, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", messagePrefix, id, seq))
}

func messagesPrefix(id messaging.ConversationID) []byte {
	return []byte(messagePrefix + id.String() + ":")
}

func messageRefKey(id messaging.MessageID) []byte {
	return []byte(messageRefPrefix + id.String())
}

func sequenceKey(id messaging.ConversationID) []byte {
	return []byte(sequencePrefix + id.String())
}

// update runs fn in a read-write transaction and replays it when badger detects a conflict,
// sleeping a jittered, doubling delay between attempts.
// After the last attempt the conflict is reported as errors.ErrConflict.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBaseDelay << (attempt - 1)
			time.Sleep(backoff/2 + rand.N(backoff))
		}
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", errors.ErrConflict, err)
}

// conversationLocks serializes the writers of one conversation inside this process. Writers that
// share the sequence key and the conversation row then never conflict with each other.
type conversationLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *conversationLocks) lock(id messaging.ConversationID) func() {
	mu := &l.stripes[binary.BigEndian.Uint64(id[8:])%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func getParticipant(txn *badger.Txn, id messaging.ConversationID, userID messaging.UserID) (messaging.Participant, error) {
	var p messaging.Participant
	err := getJSON(txn, participantKey(id, userID), &p)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return p, errors.ErrNotFound
	}
	return p, err
}

// activeParticipant fails with errors.ErrForbidden when the user has no active row.
func activeParticipant(txn *badger.Txn, id messaging.ConversationID, userID messaging.UserID) (messaging.Participant, error) {
	p, err := getParticipant(txn, id, userID)
	if errors.Is(err, errors.ErrNotFound) || (err == nil && !p.IsActive()) {
		return p, errors.ErrForbidden
	}
	return p, err
}

func getConversation(txn *badger.Txn, id messaging.ConversationID) (messaging.Conversation, error) {
	var c messaging.Conversation
	err := getJSON(txn, conversationKey(id), &c)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return c, errors.ErrNotFound
	}
	return c, err
}

// parseTrailingUUID reads the id stored after prefix in key. Keys with a longer tail belong to
// another owner whose id shares the prefix and are rejected.
func parseTrailingUUID(key, prefix []byte) (uuid.UUID, bool) {
	tail := key[len(prefix):]
	if len(tail) != 36 {
		return uuid.Nil, false
	}
	id, err := uuid.ParseBytes(tail)
	return id, err == nil
}

// Ping reports whether the store still answers reads.
func Ping(db *badger.DB) error {
	if db.IsClosed() {
		return fmt.Errorf("%w: store is closed", errors.ErrServiceUnavailable)
	}
	return db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(conversationKey(uuid.Nil))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
