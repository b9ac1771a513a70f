package domain

import "time"

// NotificationKind distinguishes creation from reply notifications.
type NotificationKind string

const (
	NotificationNewTicket NotificationKind = "new_ticket"
	NotificationNewReply  NotificationKind = "new_reply"
)

// Notification is handed to the delivery sink. MessageID makes delivery
// idempotent per (ticket, message).
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	TicketID    string           `json:"ticket_id"`
	MessageID   string           `json:"message_id"`
	Kind        NotificationKind `json:"kind"`
	CreatedAt   time.Time        `json:"created_at"`
}

// IdempotencyKey identifies the delivery for dedup.
func (n Notification) IdempotencyKey() string {
	return n.TicketID + ":" + n.MessageID
}
