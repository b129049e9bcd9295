package repositories

import (
	"dm-lab/domain/messaging"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db            *badger.DB
	messages      *MessageRepository
	conversations *ConversationRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	messages := NewMessageRepository(db, log)
	return fixture{
		db:            db,
		messages:      messages,
		conversations: NewConversationRepository(db, log, messages),
	}
}

func (f fixture) direct(t *testing.T, a, b messaging.UserID) messaging.Conversation {
	t.Helper()
	conversation, _, err := f.conversations.Create(NewConversation{
		ParticipantIDs: []messaging.UserID{b},
		CreatedBy:      a,
	})
	require.NoError(t, err)
	return conversation
}

func (f fixture) group(t *testing.T, creator messaging.UserID, name string, others ...messaging.UserID) messaging.Conversation {
	t.Helper()
	conversation, _, err := f.conversations.Create(NewConversation{
		ParticipantIDs: others,
		Name:           lo.ToPtr(name),
		IsGroup:        true,
		CreatedBy:      creator,
	})
	require.NoError(t, err)
	return conversation
}
