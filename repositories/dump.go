package repositories

import (
	"dm-lab/errors"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// Collection names a family of records that tooling can list.
type Collection string

const (
	CollectionConversations Collection = "conversations"
	CollectionParticipants  Collection = "participants"
	CollectionMessages      Collection = "messages"
	CollectionProfiles      Collection = "profiles"
	CollectionBlocks        Collection = "blocks"
	CollectionNotifications Collection = "notifications"
)

var collectionPrefixes = map[Collection]string{
	CollectionConversations: conversationPrefix,
	CollectionParticipants:  participantPrefix,
	CollectionMessages:      messagePrefix,
	CollectionProfiles:      profilePrefix,
	CollectionBlocks:        blockPrefix,
	CollectionNotifications: notificationPrefix,
}

func Collections() []Collection {
	collections := lo.Keys(collectionPrefixes)
	sort.Slice(collections, func(i, j int) bool { return collections[i] < collections[j] })
	return collections
}

// Dump calls fn with the key and raw value of at most limit records of a collection, in key order.
// The key is given without its collection prefix. A limit <= 0 lists everything.
func Dump(db *badger.DB, collection Collection, limit int, fn func(key string, value []byte) error) error {
	prefix, ok := collectionPrefixes[collection]
	if !ok {
		return errors.Validation("unknown collection %q", collection)
	}
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		count := 0
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if limit > 0 && count == limit {
				return nil
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err = fn(string(item.Key()[len(prefix):]), value); err != nil {
				return err
			}
			count++
		}
		return nil
	})
}
