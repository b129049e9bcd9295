package repositories

import (
	"dm-lab/domain/messaging"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type INotificationRepository interface {
	Store(notification messaging.Notification) error
	List(userID messaging.UserID, limit int) ([]messaging.Notification, error)
}

// NotificationRepository is the local inbox standing in for the notification service.
type NotificationRepository struct {
	db *badger.DB
}

func NewNotificationRepository(db *badger.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func notificationsPrefix(userID messaging.UserID) []byte {
	return []byte(notificationPrefix + userID + "\x00")
}

// Store keys the notification by "notif:{user}\x00{timestamp_padded}:{id}" so the inbox reads in time order.
func (r *NotificationRepository) Store(notification messaging.Notification) error {
	key := fmt.Sprintf("%s%019d:%s",
		notificationsPrefix(notification.UserID),
		notification.CreatedAt.UnixNano(),
		notification.ID,
	)
	return update(r.db, func(txn *badger.Txn) error {
		return setJSON(txn, []byte(key), notification)
	})
}

// List returns the newest notifications first.
func (r *NotificationRepository) List(userID messaging.UserID, limit int) ([]messaging.Notification, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	var notifications []messaging.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := notificationsPrefix(userID)
		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix) && len(notifications) < limit; it.Next() {
			var n messaging.Notification
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return err
			}
			notifications = append(notifications, n)
		}
		return nil
	})
	return notifications, err
}
