package domain

import "time"

// Message is an immutable entry in a ticket thread.
type Message struct {
	ID        string
	TicketID  string
	SenderID  string
	Body      string
	CreatedAt time.Time
}
