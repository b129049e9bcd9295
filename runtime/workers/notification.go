package workers

import (
	"context"
	"dm-lab/contract"
	"dm-lab/domain/messaging"
	"dm-lab/repositories"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
)

var (
	_ contract.Notifier = (*NotificationDispatcher)(nil)
	_ contract.Worker   = (*NotificationWorker)(nil)
)

// NotificationDispatcher queues notifications without ever blocking the request path.
// When the queue is full the notification is dropped and logged.
type NotificationDispatcher struct {
	queue chan messaging.Notification
	log   *slog.Logger
}

func NewNotificationDispatcher(bufferSize int, log *slog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{queue: make(chan messaging.Notification, bufferSize), log: log}
}

func (d *NotificationDispatcher) Notify(userID messaging.UserID, notificationType messaging.NotificationType, payload map[string]string) {
	n := messaging.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      notificationType,
		Payload:   maps.Clone(payload),
		CreatedAt: time.Now().UTC(),
	}
	select {
	case d.queue <- n:
	default:
		d.log.Warn("Notification queue full, dropping notification", "user_id", userID, "type", notificationType)
	}
}

// Queue is read by the worker delivering notifications.
func (d *NotificationDispatcher) Queue() <-chan messaging.Notification {
	return d.queue
}

// NotificationWorker delivers queued notifications to the inbox.
// A failed delivery is logged and forgotten.
type NotificationWorker struct {
	queue <-chan messaging.Notification
	inbox repositories.INotificationRepository
	log   *slog.Logger
}

func NewNotificationWorker(queue <-chan messaging.Notification, inbox repositories.INotificationRepository, log *slog.Logger) *NotificationWorker {
	return &NotificationWorker{queue: queue, inbox: inbox, log: log}
}

func (w *NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case n, ok := <-w.queue:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			if err := w.inbox.Store(n); err != nil {
				w.log.Error("Notification delivery failed", "user_id", n.UserID, "type", n.Type, "error", err)
				continue
			}
			w.log.Debug("Notification delivered", "user_id", n.UserID, "type", n.Type)
		}
	}
}
