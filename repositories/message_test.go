package repositories

import (
	"dm-lab/domain/messaging"
	"dm-lab/errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_Send_And_List_Newest_First(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := f.direct(t, "alice", "bob")

	for i, sender := range []messaging.UserID{"alice", "bob", "alice"} {
		_, err := f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: sender, Content: fmt.Sprintf("m%d", i)})
		req.NoError(err)
	}

	messages, cursor, err := f.messages.List(conversation.ID, "bob", 0, "")
	req.NoError(err)
	req.Empty(cursor)
	req.Len(messages, 3)
	req.Equal("m2", messages[0].Content)
	req.Equal("m0", messages[2].Content)
	req.Greater(messages[0].Seq, messages[1].Seq)
}

func Test_Send_Bumps_Conversation_UpdatedAt(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := f.direct(t, "alice", "bob")

	msg, err := f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "alice", Content: "hi"})
	req.NoError(err)

	fetched, err := f.conversations.Get(conversation.ID, "alice")
	req.NoError(err)
	req.Equal(msg.CreatedAt, fetched.UpdatedAt)
	req.False(fetched.UpdatedAt.Before(conversation.UpdatedAt))
}

// Walking the cursor must return each message exactly once, with no gap.
func Test_List_Pagination_Is_Deterministic(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := f.direct(t, "alice", "bob")

	const total = 120
	for i := 0; i < total; i++ {
		_, err := f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "alice", Content: fmt.Sprintf("message %d", i)})
		req.NoError(err)
	}

	seen := make(map[uuid.UUID]struct{})
	var ordered []messaging.Message
	cursor := ""
	for page := 0; page < 3; page++ {
		messages, next, err := f.messages.List(conversation.ID, "bob", 50, cursor)
		req.NoError(err)
		for _, m := range messages {
			_, dup := seen[m.ID]
			req.False(dup, "message %s returned twice", m.ID)
			seen[m.ID] = struct{}{}
		}
		ordered = append(ordered, messages...)
		cursor = next
	}

	req.Len(seen, total)
	req.Empty(cursor)
	for i := 1; i < len(ordered); i++ {
		req.Equal(ordered[i-1].Seq-1, ordered[i].Seq)
	}
	req.Equal("message 119", ordered[0].Content)
	req.Equal("message 0", ordered[total-1].Content)
}

func Test_List_Rejects_Cursor_From_Another_Conversation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	first := f.direct(t, "alice", "bob")
	second := f.direct(t, "alice", "clara")

	msg, err := f.messages.Send(NewMessage{ConversationID: second.ID, SenderID: "alice", Content: "hi"})
	req.NoError(err)

	_, _, err = f.messages.List(first.ID, "alice", 10, msg.ID.String())
	req.ErrorIs(err, errors.ErrValidation)
	_, _, err = f.messages.List(first.ID, "alice", 10, "not-a-cursor")
	req.ErrorIs(err, errors.ErrValidation)
}

func Test_Non_Participant_Is_Forbidden(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := f.direct(t, "alice", "bob")

	_, err := f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "mallory", Content: "hi"})
	req.ErrorIs(err, errors.ErrForbidden)

	_, _, err = f.messages.List(conversation.ID, "mallory", 10, "")
	req.ErrorIs(err, errors.ErrForbidden)

	latest, err := f.messages.Latest(conversation.ID)
	req.NoError(err)
	req.Nil(latest)
}

func Test_Edit_And_Delete_Ownership(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := f.direct(t, "alice", "bob")
	msg, err := f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "alice", Content: "original"})
	req.NoError(err)

	// Bob is a participant but not the sender
	_, err = f.messages.Edit(msg.ID, "bob", "hijacked")
	req.ErrorIs(err, errors.ErrForbidden)
	_, err = f.messages.SoftDelete(msg.ID, "bob")
	req.ErrorIs(err, errors.ErrForbidden)

	edited, err := f.messages.Edit(msg.ID, "alice", "corrected")
	req.NoError(err)
	req.Equal("corrected", edited.Content)
	req.NotNil(edited.EditedAt)

	deleted, err := f.messages.SoftDelete(msg.ID, "alice")
	req.NoError(err)
	req.Equal(messaging.Tombstone, deleted.Content)
	req.NotNil(deleted.DeletedAt)

	messages, _, err := f.messages.List(conversation.ID, "bob", 10, "")
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(messaging.Tombstone, messages[0].Content)

	_, err = f.messages.Edit(msg.ID, "alice", "again")
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = f.messages.SoftDelete(msg.ID, "alice")
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = f.messages.Edit(uuid.New(), "alice", "ghost")
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Content_Bounds(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := f.direct(t, "alice", "bob")

	_, err := f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "alice", Content: strings.Repeat("é", messaging.MaxContentLength)})
	req.NoError(err)
	_, err = f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "alice", Content: strings.Repeat("a", messaging.MaxContentLength+1)})
	req.ErrorIs(err, errors.ErrValidation)
	_, err = f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "alice", Content: "   "})
	req.ErrorIs(err, errors.ErrValidation)
}

func Test_MarkRead_And_Unread_Count(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := f.direct(t, "alice", "bob")

	for i := 0; i < 3; i++ {
		_, err := f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "alice", Content: "ping"})
		req.NoError(err)
	}
	_, err := f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "bob", Content: "pong"})
	req.NoError(err)

	count, err := f.messages.CountUnread(conversation.ID, "bob", nil)
	req.NoError(err)
	req.Equal(3, count)

	req.NoError(f.messages.MarkRead(conversation.ID, "bob", time.Time{}))
	p, err := f.conversations.Participant(conversation.ID, "bob")
	req.NoError(err)
	req.NotNil(p.LastReadAt)

	count, err = f.messages.CountUnread(conversation.ID, "bob", p.LastReadAt)
	req.NoError(err)
	req.Zero(count)

	// The marker never moves backwards
	req.NoError(f.messages.MarkRead(conversation.ID, "bob", p.LastReadAt.Add(-time.Hour)))
	again, err := f.conversations.Participant(conversation.ID, "bob")
	req.NoError(err)
	req.Equal(*p.LastReadAt, *again.LastReadAt)

	req.ErrorIs(f.messages.MarkRead(conversation.ID, "mallory", time.Time{}), errors.ErrForbidden)
}

func Test_Concurrent_Sends_All_Succeed_With_Distinct_Seq(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := f.direct(t, "alice", "bob")

	const senders = 64
	var wg sync.WaitGroup
	results := make(chan messaging.Message, senders)
	errs := make(chan error, senders*2)
	for i := 0; i < senders; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			sender := lo.Ternary(i%2 == 0, "alice", "bob")
			msg, err := f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: sender, Content: fmt.Sprintf("m%d", i)})
			if err != nil {
				errs <- err
				return
			}
			results <- msg
		}(i)
		// Read markers of the same conversation move while messages are sent
		go func() {
			defer wg.Done()
			if err := f.messages.MarkRead(conversation.ID, "bob", time.Time{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		req.NoError(err)
	}
	seqs := make(map[uint64]struct{})
	for msg := range results {
		seqs[msg.Seq] = struct{}{}
	}
	req.Len(seqs, senders)
	for seq := uint64(1); seq <= senders; seq++ {
		req.Contains(seqs, seq)
	}

	messages, _, err := f.messages.List(conversation.ID, "alice", 100, "")
	req.NoError(err)
	req.Len(messages, senders)
}

func Test_MarkRead_Clamps_Future_Timestamp(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := f.direct(t, "alice", "bob")

	before := time.Now().UTC()
	req.NoError(f.messages.MarkRead(conversation.ID, "bob", before.AddDate(100, 0, 0)))
	p, err := f.conversations.Participant(conversation.ID, "bob")
	req.NoError(err)
	req.NotNil(p.LastReadAt)
	req.False(p.LastReadAt.After(time.Now().UTC()))

	// A message sent after the clamped marker still counts as unread
	time.Sleep(2 * time.Millisecond)
	_, err = f.messages.Send(NewMessage{ConversationID: conversation.ID, SenderID: "alice", Content: "later"})
	req.NoError(err)
	count, err := f.messages.CountUnread(conversation.ID, "bob", p.LastReadAt)
	req.NoError(err)
	req.Equal(1, count)
}
