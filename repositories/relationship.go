//go:generate go run go.uber.org/mock/mockgen -source=relationship.go -destination=../mocks/mock_relationship_repository.go -package=mocks
package repositories

import (
	"dm-lab/domain/messaging"
	"dm-lab/errors"

	"github.com/dgraph-io/badger/v4"
)

// IRelationshipRepository is the boundary to the social graph. Only blocks matter to messaging.
type IRelationshipRepository interface {
	Block(blockerID, blockedID messaging.UserID) error
	Unblock(blockerID, blockedID messaging.UserID) error
	IsBlockedEitherWay(a, b messaging.UserID) (bool, error)
}

type RelationshipRepository struct {
	db *badger.DB
}

func NewRelationshipRepository(db *badger.DB) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

func blockKey(blockerID, blockedID messaging.UserID) []byte {
	return []byte(blockPrefix + blockerID + "\x00" + blockedID)
}

func (r *RelationshipRepository) Block(blockerID, blockedID messaging.UserID) error {
	if blockerID == blockedID {
		return errors.Validation("a user cannot block themselves")
	}
	return update(r.db, func(txn *badger.Txn) error {
		return txn.Set(blockKey(blockerID, blockedID), nil)
	})
}

// Unblock is idempotent.
func (r *RelationshipRepository) Unblock(blockerID, blockedID messaging.UserID) error {
	return update(r.db, func(txn *badger.Txn) error {
		return txn.Delete(blockKey(blockerID, blockedID))
	})
}

func (r *RelationshipRepository) IsBlockedEitherWay(a, b messaging.UserID) (bool, error) {
	blocked := false
	err := r.db.View(func(txn *badger.Txn) error {
		for _, key := range [][]byte{blockKey(a, b), blockKey(b, a)} {
			_, err := txn.Get(key)
			if err == nil {
				blocked = true
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	return blocked, err
}
