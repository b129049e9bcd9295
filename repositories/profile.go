package repositories

import (
	"dm-lab/domain/messaging"
	"dm-lab/errors"

	"github.com/dgraph-io/badger/v4"
)

// IProfileRepository is the boundary to the Auth/Profile collaborator.
type IProfileRepository interface {
	Get(userID messaging.UserID) (messaging.Profile, error)
	GetMany(userIDs []messaging.UserID) (map[messaging.UserID]messaging.Profile, error)
	Save(profile messaging.Profile) error
}

type ProfileRepository struct {
	db *badger.DB
}

func NewProfileRepository(db *badger.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func profileKey(userID messaging.UserID) []byte {
	return []byte(profilePrefix + userID)
}

// Get falls back to messaging.DefaultProfile for users without a stored profile.
func (r *ProfileRepository) Get(userID messaging.UserID) (messaging.Profile, error) {
	profiles, err := r.GetMany([]messaging.UserID{userID})
	if err != nil {
		return messaging.Profile{}, err
	}
	return profiles[userID], nil
}

func (r *ProfileRepository) GetMany(userIDs []messaging.UserID) (map[messaging.UserID]messaging.Profile, error) {
	profiles := make(map[messaging.UserID]messaging.Profile, len(userIDs))
	err := r.db.View(func(txn *badger.Txn) error {
		for _, userID := range userIDs {
			var p messaging.Profile
			err := getJSON(txn, profileKey(userID), &p)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				p = messaging.DefaultProfile(userID)
			case err != nil:
				return err
			}
			profiles[userID] = p
		}
		return nil
	})
	return profiles, err
}

func (r *ProfileRepository) Save(profile messaging.Profile) error {
	return update(r.db, func(txn *badger.Txn) error {
		return setJSON(txn, profileKey(profile.UserID), profile)
	})
}
