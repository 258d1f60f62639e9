package notification

import (
	"time"
)

// Data is the free-form payload a client uses to link a notification to its subject.
type Data map[string]string

type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipient_id"`
	Topic       string     `json:"topic"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Data        Data       `json:"data"`
	DedupeKey   string     `json:"-"`
	ReadAt      *time.Time `json:"read_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (n Notification) IsRead() bool {
	return n.ReadAt != nil
}

// NewNotification is what other domains hand to Notify.
// A non-empty DedupeKey makes the notification unique per recipient.
type NewNotification struct {
	RecipientID string
	Topic       string
	Title       string
	Body        string
	Data        Data
	DedupeKey   string
	Email       bool // also send a copy by email
}

type QueryFilter struct {
	UnreadOnly bool `query:"unread"`
}
