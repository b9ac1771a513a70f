package events

import (
	"time"

	"github.com/inquirydesk/inquiry-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventMessagePosted  EventType = "message_posted"
	EventTicketResolved EventType = "ticket_resolved"
	EventTicketDisputed EventType = "ticket_disputed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID   string `json:"user_id"`
	Operator bool   `json:"operator,omitempty"`
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload carries the new ticket and its first message.
type TicketCreatedPayload struct {
	Ticket  domain.Ticket  `json:"ticket"`
	Message domain.Message `json:"message"`
}

// MessagePostedPayload carries the appended message and the ticket as it
// stood after the write.
type MessagePostedPayload struct {
	Ticket    domain.Ticket       `json:"ticket"`
	Message   domain.Message      `json:"message"`
	OldStatus domain.TicketStatus `json:"old_status"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Ticket    domain.Ticket       `json:"ticket"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}
