package dto

import (
	"time"

	"github.com/inquirydesk/inquiry-service/internal/domain"
)

// EntityRefPayload identifies the entity a ticket is about.
type EntityRefPayload struct {
	Type domain.EntityType `json:"type"`
	ID   string            `json:"id"`
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	TicketType   domain.TicketType `json:"ticket_type"`
	TargetID     *string           `json:"target_id"`
	EntityRef    *EntityRefPayload `json:"entity_ref"`
	Subject      string            `json:"subject"`
	FirstMessage string            `json:"first_message"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Body string `json:"body"`
}

// ProfileResponse is a best-effort identity card.
type ProfileResponse struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          string              `json:"id"`
	RequesterID string              `json:"requester_id"`
	TargetID    *string             `json:"target_id"`
	TicketType  domain.TicketType   `json:"ticket_type"`
	EntityRef   *EntityRefPayload   `json:"entity_ref,omitempty"`
	EntityName  *string             `json:"entity_name,omitempty"`
	Subject     string              `json:"subject"`
	Status      domain.TicketStatus `json:"status"`
	Direction   domain.Direction    `json:"direction"`
	Counterpart *ProfileResponse    `json:"counterpart,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	ResolvedAt  *time.Time          `json:"resolved_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Messages []TicketMessageResponse `json:"messages"`
}

// TicketMessageResponse represents thread message.
type TicketMessageResponse struct {
	ID            string           `json:"id"`
	TicketID      string           `json:"ticket_id"`
	SenderID      string           `json:"sender_id"`
	Sender        *ProfileResponse `json:"sender,omitempty"`
	Body          string           `json:"body"`
	VerifiedReply bool             `json:"verified_reply"`
	CreatedAt     time.Time        `json:"created_at"`
}

// TicketStatusResponse is returned by resolve and dispute.
type TicketStatusResponse struct {
	ID         string              `json:"id"`
	Status     domain.TicketStatus `json:"status"`
	UpdatedAt  time.Time           `json:"updated_at"`
	ResolvedAt *time.Time          `json:"resolved_at"`
}

// PageMeta describes list pagination.
type PageMeta struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Count    int `json:"count"`
}
