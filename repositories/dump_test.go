package repositories

import (
	"dm-lab/domain/messaging"
	"dm-lab/errors"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := f.direct(t, "alice", "bob")
	for _, content := range []string{"one", "two", "three"} {
		_, err := f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "alice", Content: content})
		req.NoError(err)
	}

	var contents []string
	err := Dump(f.db, CollectionMessages, 2, func(_ string, value []byte) error {
		var msg messaging.Message
		if err := json.Unmarshal(value, &msg); err != nil {
			return err
		}
		contents = append(contents, msg.Content)
		return nil
	})
	req.NoError(err)
	req.Equal([]string{"one", "two"}, contents)

	var keys []string
	req.NoError(Dump(f.db, CollectionParticipants, 0, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}))
	req.Len(keys, 2)

	req.ErrorIs(Dump(f.db, "sessions", 0, nil), errors.ErrValidation)
	req.Contains(Collections(), CollectionBlocks)
}

func TestPing(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	req.NoError(Ping(f.db))
	req.NoError(f.db.Close())
	req.ErrorIs(Ping(f.db), errors.ErrServiceUnavailable)
}
