// Package queue carries booking notifications over RabbitMQ: a Publisher
// that acts as a notify.Sink and a Consumer that appends every received
// notification to logs/notifications.log.
package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/range-booking/internal/notify"
)

// NotificationsQueue is the default durable queue name.
const NotificationsQueue = "booking.notifications"

// NotificationEvent is the wire payload of one notification.  ID is unique
// per event so consumers can drop redeliveries.
type NotificationEvent struct {
	ID        uuid.UUID `json:"id"`
	PersonID  uint64    `json:"person_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotificationEvent stamps m with a fresh id and the given time.
func NewNotificationEvent(m notify.Message, at time.Time) NotificationEvent {
	return NotificationEvent{
		ID:        uuid.New(),
		PersonID:  m.PersonID,
		Title:     m.Title,
		Message:   m.Body,
		Severity:  string(m.Severity),
		CreatedAt: at.UTC(),
	}
}

// LogLine renders the event as one line of the notifications log.
func (e NotificationEvent) LogLine() string {
	return fmt.Sprintf("[%s] %s | id=%s | person_id=%d | title=%q | message=%q\n",
		e.CreatedAt.Format(time.RFC3339), e.Severity, e.ID, e.PersonID, e.Title, e.Message)
}
