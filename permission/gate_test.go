package permission_test

import (
	"context"
	"dm-lab/domain/messaging"
	"dm-lab/mocks"
	"dm-lab/permission"
	"dm-lab/repositories"
	"fmt"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type stores struct {
	conversations *repositories.ConversationRepository
	relationships *repositories.RelationshipRepository
}

func newStores(t *testing.T) stores {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return stores{
		conversations: repositories.NewConversationRepository(db, log, repositories.NewMessageRepository(db, log)),
		relationships: repositories.NewRelationshipRepository(db),
	}
}

func TestGate_CanMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newStores(t)
	gate := permission.NewGate(s.conversations, s.relationships, logs.GetLoggerFromLevel(slog.LevelDebug))

	req.Equal(permission.Decision{CanMessage: true}, gate.CanMessage(ctx, "alice", "bob"))
	req.Equal(permission.Decision{Reason: permission.ReasonSelf}, gate.CanMessage(ctx, "alice", "alice"))

	// The blocked user gets the same answer as the blocker
	req.NoError(s.relationships.Block("bob", "alice"))
	req.Equal(permission.Decision{Reason: permission.ReasonBlocked}, gate.CanMessage(ctx, "alice", "bob"))
	req.Equal(permission.Decision{Reason: permission.ReasonBlocked}, gate.CanMessage(ctx, "bob", "alice"))

	req.NoError(s.relationships.Unblock("bob", "alice"))
	req.True(gate.CanMessage(ctx, "alice", "bob").CanMessage)
}

func TestGate_CanMessage_FailsClosed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	relationships := mocks.NewMockIRelationshipRepository(ctrl)
	relationships.EXPECT().IsBlockedEitherWay("alice", "bob").Return(false, fmt.Errorf("disk error"))

	gate := permission.NewGate(newStores(t).conversations, relationships, logs.GetLoggerFromLevel(slog.LevelDebug))
	decision := gate.CanMessage(context.Background(), "alice", "bob")
	req.False(decision.CanMessage)
	req.Equal(permission.ReasonUnknown, decision.Reason)
}

func TestGate_Participation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newStores(t)
	gate := permission.NewGate(s.conversations, s.relationships, logs.GetLoggerFromLevel(slog.LevelDebug))

	direct, _, err := s.conversations.Create(repositories.NewConversation{ParticipantIDs: []messaging.UserID{"bob"}, CreatedBy: "alice"})
	req.NoError(err)
	group, _, err := s.conversations.Create(repositories.NewConversation{
		ParticipantIDs: []messaging.UserID{"bob", "clara"},
		Name:           lo.ToPtr("Trip"),
		IsGroup:        true,
		CreatedBy:      "alice",
	})
	req.NoError(err)

	tests := []struct {
		name           string
		conversationID messaging.ConversationID
		userID         messaging.UserID
		active         bool
		admin          bool
	}{
		{"direct participant", direct.ID, "alice", true, false},
		{"stranger", direct.ID, "mallory", false, false},
		{"group creator", group.ID, "alice", true, true},
		{"group member", group.ID, "bob", true, false},
		{"unknown conversation", uuid.New(), "alice", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req.Equal(tt.active, gate.IsActiveParticipant(ctx, tt.conversationID, tt.userID))
			req.Equal(tt.admin, gate.IsGroupAdmin(ctx, tt.conversationID, tt.userID))
		})
	}

	// An admin who left loses every right
	req.NoError(s.conversations.Leave(group.ID, "alice"))
	req.False(gate.IsActiveParticipant(ctx, group.ID, "alice"))
	req.False(gate.IsGroupAdmin(ctx, group.ID, "alice"))
}
