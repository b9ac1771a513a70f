package domain

import (
	"strconv"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusReplied  TicketStatus = "replied"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusDisputed TicketStatus = "disputed"
)

// TicketType is descriptive only; it selects presentation and default routing.
type TicketType string

const (
	TicketTypeGroupInquiry    TicketType = "group_inquiry"
	TicketTypeTrainingInquiry TicketType = "training_inquiry"
	TicketTypeEventInquiry    TicketType = "event_inquiry"
	TicketTypeSupport         TicketType = "support"
	TicketTypeGeneral         TicketType = "general"
)

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	switch t {
	case TicketTypeGroupInquiry, TicketTypeTrainingInquiry, TicketTypeEventInquiry, TicketTypeSupport, TicketTypeGeneral:
		return true
	}
	return false
}

// EntityType names the catalog an EntityRef points into.
type EntityType string

const (
	EntityTypeGroup   EntityType = "group"
	EntityTypeService EntityType = "service"
	EntityTypeEvent   EntityType = "event"
)

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	switch e {
	case EntityTypeGroup, EntityTypeService, EntityTypeEvent:
		return true
	}
	return false
}

// EntityRef anchors a ticket to a domain entity.
type EntityRef struct {
	Type EntityType
	ID   string
}

// Direction is derived per viewer: sent when the viewer opened the ticket.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Ticket is the conversation aggregate.
type Ticket struct {
	ID          string
	RequesterID string
	TargetID    *string
	Type        TicketType
	Entity      *EntityRef
	Subject     string
	Status      TicketStatus
	DedupKey    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

// DedupKey scopes the one-open-ticket rule: (requester, entity) when an
// entity is referenced, otherwise (requester, target), and the support
// queue when there is no target. Each component is tagged and length
// prefixed so distinct inputs never share a key.
func DedupKey(requesterID string, entity *EntityRef, targetID *string) string {
	var b strings.Builder
	writeKeyPart(&b, 'r', requesterID)
	switch {
	case entity != nil:
		writeKeyPart(&b, 'e', string(entity.Type))
		writeKeyPart(&b, 'i', entity.ID)
	case targetID != nil:
		writeKeyPart(&b, 't', *targetID)
	default:
		b.WriteByte('q')
	}
	return b.String()
}

func writeKeyPart(b *strings.Builder, tag byte, value string) {
	b.WriteByte(tag)
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte(':')
	b.WriteString(value)
}

// IsRequester reports whether userID opened the ticket.
func (t *Ticket) IsRequester(userID string) bool {
	return t.RequesterID == userID
}

// IsTarget reports whether userID is the ticket's named counterpart.
func (t *Ticket) IsTarget(userID string) bool {
	return t.TargetID != nil && *t.TargetID == userID
}

// DirectionFor derives the inbox direction for a viewer.
func (t *Ticket) DirectionFor(userID string) Direction {
	if t.IsRequester(userID) {
		return DirectionSent
	}
	return DirectionReceived
}

// AllowsOperators reports whether support operators act on the target's
// behalf for this ticket.
func (t *Ticket) AllowsOperators() bool {
	return t.Type == TicketTypeSupport
}
