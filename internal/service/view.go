package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/directory"
	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/repository"
)

// TicketListFilter describes inbox filters.
type TicketListFilter struct {
	Direction  *domain.Direction
	Type       *domain.TicketType
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketSummary is an inbox row as seen by one viewer.
type TicketSummary struct {
	Ticket      domain.Ticket
	Direction   domain.Direction
	Counterpart *directory.Profile
	EntityName  *string
}

// ThreadMessage is a message annotated for presentation.
type ThreadMessage struct {
	Message       domain.Message
	VerifiedReply bool
	Sender        *directory.Profile
}

// Thread is a ticket with its full message history.
type Thread struct {
	TicketSummary
	Messages []ThreadMessage
}

// ListTickets returns the viewer's tickets, newest activity first.
func (s *TicketService) ListTickets(ctx context.Context, actor Actor, filter TicketListFilter) ([]TicketSummary, error) {
	tickets, err := s.store.Repositories().Tickets.ListWithFilter(ctx, repository.TicketFilter{
		ParticipantID:       actor.UserID,
		IncludeSupportQueue: actor.Operator,
		Direction:           filter.Direction,
		Type:                filter.Type,
		SearchTerm:          filter.SearchTerm,
		Limit:               filter.Limit,
		Offset:              filter.Offset,
	})
	if err != nil {
		return nil, s.wrap(err)
	}

	ids := make([]string, 0, len(tickets))
	for i := range tickets {
		if id := counterpartID(&tickets[i], actor.UserID); id != "" {
			ids = append(ids, id)
		}
	}
	profiles := s.lookupProfiles(ctx, ids)

	out := make([]TicketSummary, 0, len(tickets))
	for i := range tickets {
		out = append(out, s.summarize(ctx, &tickets[i], actor, profiles))
	}
	return out, nil
}

// GetThread returns the ticket and its messages in canonical order.
func (s *TicketService) GetThread(ctx context.Context, actor Actor, ticketID string) (*Thread, error) {
	ticket, err := s.AuthorizeViewer(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.Repositories().Messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, s.wrap(err)
	}

	ids := []string{ticket.RequesterID}
	if ticket.TargetID != nil {
		ids = append(ids, *ticket.TargetID)
	}
	for _, m := range msgs {
		ids = append(ids, m.SenderID)
	}
	profiles := s.lookupProfiles(ctx, ids)

	thread := &Thread{
		TicketSummary: s.summarize(ctx, ticket, actor, profiles),
		Messages:      make([]ThreadMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		thread.Messages = append(thread.Messages, ThreadMessage{
			Message:       m,
			VerifiedReply: isVerifiedReply(ticket, m),
			Sender:        profileFor(profiles, m.SenderID),
		})
	}
	return thread, nil
}

func (s *TicketService) summarize(ctx context.Context, t *domain.Ticket, actor Actor, profiles map[string]directory.Profile) TicketSummary {
	summary := TicketSummary{
		Ticket:      *t,
		Direction:   t.DirectionFor(actor.UserID),
		Counterpart: profileFor(profiles, counterpartID(t, actor.UserID)),
	}
	if t.Entity != nil {
		name, ok, err := s.directory.EntityName(ctx, *t.Entity)
		if err != nil {
			s.logger.Debug("entity lookup failed", zap.String("ticket_id", t.ID), zap.Error(err))
		} else if ok {
			summary.EntityName = &name
		}
	}
	return summary
}

func (s *TicketService) lookupProfiles(ctx context.Context, ids []string) map[string]directory.Profile {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	profiles, err := s.directory.Profiles(ctx, unique)
	if err != nil {
		s.logger.Debug("profile lookup failed", zap.Int("ids", len(unique)), zap.Error(err))
		return nil
	}
	return profiles
}

// counterpartID is the other party from the viewer's side; empty for a
// queue ticket viewed by its requester.
func counterpartID(t *domain.Ticket, viewerID string) string {
	if t.IsRequester(viewerID) {
		if t.TargetID == nil {
			return ""
		}
		return *t.TargetID
	}
	return t.RequesterID
}

// isVerifiedReply marks messages from the answering side.
func isVerifiedReply(t *domain.Ticket, m domain.Message) bool {
	if t.IsTarget(m.SenderID) {
		return true
	}
	return t.AllowsOperators() && !t.IsRequester(m.SenderID)
}

func profileFor(profiles map[string]directory.Profile, id string) *directory.Profile {
	if id == "" {
		return nil
	}
	p, ok := profiles[id]
	if !ok {
		return nil
	}
	return &p
}
