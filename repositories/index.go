package repositories

import (
	"context"
	"dm-lab/domain/messaging"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldConversation = "conversation_id"
	fieldSender       = "sender_id"
	fieldContent      = "content"
)

// IMessageIndex keeps a full-text index of live message content. Deleted messages are removed
// from it so a search can never surface tombstoned text.
type IMessageIndex interface {
	Index(message messaging.Message) error
	Remove(messageID messaging.MessageID) error
	Search(ctx context.Context, conversationID messaging.ConversationID, terms string, limit int) ([]messaging.MessageID, error)
}

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index inserts or replaces the document of a message.
func (i *MessageIndex) Index(message messaging.Message) error {
	if message.IsDeleted() {
		return i.Remove(message.ID)
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(fieldConversation, message.ConversationID.String())).
		AddField(bluge.NewKeywordField(fieldSender, message.SenderID).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, message.Content))
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", message.ID, err)
	}
	return nil
}

func (i *MessageIndex) Remove(messageID messaging.MessageID) error {
	if err := i.writer.Delete(bluge.Identifier(messageID.String())); err != nil {
		return fmt.Errorf("remove message %s from index: %w", messageID, err)
	}
	return nil
}

// Search returns the ids of the best matching messages of one conversation, best match first.
func (i *MessageIndex) Search(ctx context.Context, conversationID messaging.ConversationID,
	terms string, limit int) ([]messaging.MessageID, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(conversationID.String()).SetField(fieldConversation)).
		AddMust(bluge.NewMatchQuery(terms).SetField(fieldContent))
	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("search conversation %s: %w", conversationID, err)
	}

	var ids []messaging.MessageID
	match, err := matches.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			if id, parseErr := uuid.ParseBytes(value); parseErr == nil {
				ids = append(ids, id)
			}
			return false
		})
		if visitErr != nil {
			return nil, visitErr
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	i.log.Debug("Search done", "conversation_id", conversationID, "hits", len(ids))
	return ids, nil
}
