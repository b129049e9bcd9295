package main

import (
	"bytes"
	"dm-lab/domain/messaging"
	"dm-lab/repositories"
	"log/slog"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) *badger.DB {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelError)
	messages := repositories.NewMessageRepository(db, log)
	conversations := repositories.NewConversationRepository(db, log, messages)
	conversation, _, err := conversations.Create(repositories.NewConversation{
		ParticipantIDs: []messaging.UserID{"bob"},
		CreatedBy:      "alice",
	})
	req.NoError(err)
	sent, err := messages.Send(repositories.NewMessage{ConversationID: conversation.ID, SenderID: "alice", Content: "hello bob"})
	req.NoError(err)
	_, err = messages.SoftDelete(sent.ID, "alice")
	req.NoError(err)
	_, err = messages.Send(repositories.NewMessage{ConversationID: conversation.ID, SenderID: "bob", Content: strings.Repeat("x", 80)})
	req.NoError(err)
	req.NoError(repositories.NewRelationshipRepository(db).Block("bob", "mallory"))
	return db
}

func TestRender(t *testing.T) {
	color.Enable = false
	db := seed(t)

	tests := []struct {
		collection repositories.Collection
		wantRows   int
		contains   []string
	}{
		{repositories.CollectionConversations, 1, []string{"alice"}},
		{repositories.CollectionParticipants, 2, []string{"member", "bob"}},
		{repositories.CollectionMessages, 2, []string{"deleted", "live", strings.Repeat("x", maxCellWidth-1) + "…"}},
		{repositories.CollectionBlocks, 1, []string{"bob", "mallory"}},
		{repositories.CollectionProfiles, 0, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.collection), func(t *testing.T) {
			req := require.New(t)
			var out bytes.Buffer
			count, err := render(&out, db, tt.collection, 0)
			req.NoError(err)
			req.Equal(tt.wantRows, count)
			for _, s := range tt.contains {
				req.Contains(out.String(), s)
			}
		})
	}
}

func TestRender_UnknownCollection(t *testing.T) {
	req := require.New(t)
	_, err := render(&bytes.Buffer{}, seed(t), "sessions", 0)
	req.Error(err)
}
